// Package events emits compliance events for downstream consumers such as
// calendar reminders.
package events

import (
	"context"
	"time"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/pkg/logger"
	"github.com/blociq/blociq-backend/pkg/messaging"
)

// Publisher sends an event. *messaging.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// Nop drops every event. It stands in when publishing is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Emitter turns pipeline outcomes into events. Publish failures are logged
// and never fail the analysis that triggered them.
type Emitter struct {
	pub Publisher
	log *logger.Logger
}

// NewEmitter creates an emitter. A nil publisher disables publishing.
func NewEmitter(pub Publisher, log *logger.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	return &Emitter{pub: pub, log: log.WithComponent("compliance-events")}
}

// DocumentAnalyzed announces a classified document.
func (e *Emitter) DocumentAnalyzed(ctx context.Context, a *domain.Analysis, buildingID, assetID string) {
	if !a.Detection.Known() {
		return
	}
	e.publish(ctx, messaging.EventDocumentAnalyzed, messaging.DocumentAnalyzedEvent{
		BuildingID:   buildingID,
		AssetID:      assetID,
		DocumentType: a.Detection.Type,
		Score:        a.Detection.Score,
		NextDueDate:  a.Due.NextDueDate,
		Status:       a.Summary.Status,
		RegexVersion: a.RegexVersion,
	})
}

// DueDateUpdated announces a moved due date. Outcomes without a change are
// ignored.
func (e *Emitter) DueDateUpdated(ctx context.Context, outcome *domain.PatchOutcome, assessmentType string) {
	if outcome == nil || !outcome.DueDateChanged || outcome.NextDueDate == "" {
		return
	}
	e.publish(ctx, messaging.EventDueDateUpdated, messaging.DueDateUpdatedEvent{
		BuildingID:      outcome.BuildingID,
		AssetID:         outcome.AssetID,
		AssessmentType:  assessmentType,
		PreviousDueDate: outcome.PreviousDueDate,
		NextDueDate:     outcome.NextDueDate,
	})
}

// DueSoon announces an asset due within the reminder window. today is
// truncated to the day. Assets without a due date are ignored.
func (e *Emitter) DueSoon(ctx context.Context, asset domain.ComplianceAsset, today time.Time) {
	if asset.NextDueDate == nil {
		return
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	due := time.Date(asset.NextDueDate.Year(), asset.NextDueDate.Month(), asset.NextDueDate.Day(), 0, 0, 0, 0, time.UTC)
	days := int(due.Sub(day).Hours() / 24)

	var assessment string
	if asset.AssessmentType != nil {
		assessment = *asset.AssessmentType
	}
	e.publish(ctx, messaging.EventAssetDueSoon, messaging.AssetDueSoonEvent{
		BuildingID:     asset.BuildingID,
		AssetID:        asset.ID,
		AssessmentType: assessment,
		NextDueDate:    due.Format("2006-01-02"),
		DaysRemaining:  days,
		Overdue:        days < 0,
	})
}

func (e *Emitter) publish(ctx context.Context, eventType string, data any) {
	if err := e.pub.Publish(ctx, eventType, data); err != nil {
		e.log.Error().Err(err).Str("event_type", eventType).Msg("failed to publish compliance event")
	}
}
