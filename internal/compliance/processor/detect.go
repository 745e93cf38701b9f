package processor

import (
	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
)

// InspectionDateField is weighted highest during detection and is the base
// of every due-date rule.
const InspectionDateField = "inspection_date"

// Detection weights in tenths, so scores add up without float drift:
// 0.5 per detect hit, 1.0 per inspection_date hit, 0.3 per other field hit.
const (
	detectWeight         = 5
	inspectionDateWeight = 10
	fieldWeight          = 3
)

// DetectDocType scores every configured type against the pages and returns
// the best one, or Unknown with score 0 when nothing scores.
func (e *Engine) DetectDocType(pages []domain.Page) (domain.DetectionResult, error) {
	cfg, err := e.Config()
	if err != nil {
		return domain.DetectionResult{}, err
	}
	return e.detect(cfg, pages), nil
}

// DetectText is DetectDocType for unpaginated text, treated as page 1.
func (e *Engine) DetectText(text string) (domain.DetectionResult, error) {
	return e.DetectDocType(TextPages(text))
}

func (e *Engine) detect(cfg *regexmap.Config, pages []domain.Page) domain.DetectionResult {
	best := domain.DetectionResult{Type: domain.UnknownType}
	bestUnits := 0

	for _, dt := range cfg.Types {
		units := e.scoreUnits(cfg, dt, pages)
		// Strictly greater: earlier types keep ties.
		if units > bestUnits {
			bestUnits = units
			best = domain.DetectionResult{Type: dt.Name, Score: float64(units) / 10}
		}
	}
	return best
}

func (e *Engine) scoreUnits(cfg *regexmap.Config, dt *regexmap.DocumentType, pages []domain.Page) int {
	flags := cfg.Flags()
	units := detectWeight * e.matcher.Count(cfg.Defaults, flags, dt.Detect, pages)
	for _, f := range dt.Fields {
		weight := fieldWeight
		if f.Name == InspectionDateField {
			weight = inspectionDateWeight
		}
		units += weight * e.matcher.Count(cfg.Defaults, flags, f.Patterns, pages)
	}
	return units
}
