package testutil

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	mu  sync.Mutex
	seq int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{}
}

func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

// AssetFixture is a compliance asset row to insert before a test
type AssetFixture struct {
	ID              string
	BuildingID      string
	Name            string
	AssessmentType  *string
	Status          *string
	LastInspectedAt *string
	NextDueDate     *string
}

// Asset creates a compliance asset fixture with no inspection history
func (f *FixtureFactory) Asset(opts ...func(*AssetFixture)) AssetFixture {
	seq := f.nextSeq()
	a := AssetFixture{
		ID:         uuid.NewString(),
		BuildingID: uuid.NewString(),
		Name:       fmt.Sprintf("Compliance asset %d", seq),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// WithBuilding sets the asset's building
func WithBuilding(buildingID string) func(*AssetFixture) {
	return func(a *AssetFixture) {
		a.BuildingID = buildingID
	}
}

// WithAssessment sets the asset's assessment type and status
func WithAssessment(assessmentType, status string) func(*AssetFixture) {
	return func(a *AssetFixture) {
		a.AssessmentType = &assessmentType
		a.Status = &status
	}
}

// WithInspection sets the last inspection and next due dates (YYYY-MM-DD)
func WithInspection(lastInspectedAt, nextDueDate string) func(*AssetFixture) {
	return func(a *AssetFixture) {
		a.LastInspectedAt = &lastInspectedAt
		a.NextDueDate = &nextDueDate
	}
}

// SampleEICR is a satisfactory EICR page as produced by OCR
const SampleEICR = `Electrical Installation Condition Report
Inspection Date: 15/07/2023
Property: Ashwood House
BS 7671:2018
Satisfactory`

// SampleFRA is a fire risk assessment page as produced by OCR
const SampleFRA = `Fire Risk Assessment
Inspection Date: 20/08/2023
Risk Rating: Moderate
Review due: 20/08/2024`
