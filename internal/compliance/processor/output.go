package processor

import (
	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
)

const (
	defaultDocType = "assessment"
	unknownDocType = "unknown"
)

// ToSummaryJSON builds the read-oriented view of a processed document.
func (e *Engine) ToSummaryJSON(docType string, fields *domain.NormalisedFields, due domain.DueDates) (domain.SummaryJSON, error) {
	cfg, err := e.Config()
	if err != nil {
		return domain.SummaryJSON{}, err
	}
	return e.toSummary(cfg, docType, fields, due), nil
}

// ToCompliancePatch builds the partial update for a compliance-asset record.
// Unknown types yield the empty patch.
func (e *Engine) ToCompliancePatch(docType string, fields *domain.NormalisedFields, due domain.DueDates) (domain.CompliancePatch, error) {
	cfg, err := e.Config()
	if err != nil {
		return domain.CompliancePatch{}, err
	}
	return e.toPatch(cfg, docType, fields, due), nil
}

func (e *Engine) toSummary(cfg *regexmap.Config, docType string, fields *domain.NormalisedFields, due domain.DueDates) domain.SummaryJSON {
	dt, ok := cfg.Type(docType)
	if !ok {
		return domain.SummaryJSON{
			DocType:     unknownDocType,
			SourcePages: fields.SourcePages(),
		}
	}

	values := fields.Values()
	summary := domain.SummaryJSON{
		DocType:        docTypeOf(dt),
		AssessmentType: dt.Map.AssessmentType,
		InspectionDate: values[InspectionDateField],
		NextDueDate:    due.NextDueDate,
		Status:         status(dt, values),
		SourcePages:    fields.SourcePages(),
		Fields:         values,
	}
	if dt.Compute != nil {
		summary.NextDueHint = dt.Compute.NextDueHint
	}
	return summary
}

func (e *Engine) toPatch(cfg *regexmap.Config, docType string, fields *domain.NormalisedFields, due domain.DueDates) domain.CompliancePatch {
	dt, ok := cfg.Type(docType)
	if !ok {
		return domain.CompliancePatch{}
	}

	values := fields.Values()
	patch := domain.CompliancePatch{
		AssessmentType:  dt.Map.AssessmentType,
		DocType:         docTypeOf(dt),
		LastInspectedAt: values[InspectionDateField],
		NextDueDate:     due.NextDueDate,
		Status:          status(dt, values),
		Fields:          make(map[string]string, len(values)),
	}
	for k, v := range values {
		if k != InspectionDateField {
			patch.Fields[k] = v
		}
	}
	return patch
}

func docTypeOf(dt *regexmap.DocumentType) string {
	if dt.Map.DocType == "" {
		return defaultDocType
	}
	return dt.Map.DocType
}

// status returns the first matching rule's status, or "" when none match.
func status(dt *regexmap.DocumentType, values map[string]string) string {
	for _, rule := range dt.Map.StatusRules {
		if rule.Matches(values) {
			return rule.Status
		}
	}
	return ""
}
