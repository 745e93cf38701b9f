package processor

import (
	"regexp"
	"strconv"

	"github.com/blociq/blociq-backend/internal/compliance/dates"
	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
)

var yearsInText = regexp.MustCompile(`(?i)(\d+)\s+year`)

// ComputeDueDates derives the next due date from fields.inspection_date and
// the type's compute rule. The result is empty when the type is unknown, has
// no rule, or no inspection date was extracted.
func (e *Engine) ComputeDueDates(docType string, fields *domain.NormalisedFields) (domain.DueDates, error) {
	cfg, err := e.Config()
	if err != nil {
		return domain.DueDates{}, err
	}
	return e.computeDueDates(cfg, docType, fields), nil
}

func (e *Engine) computeDueDates(cfg *regexmap.Config, docType string, fields *domain.NormalisedFields) domain.DueDates {
	dt, ok := cfg.Type(docType)
	if !ok || dt.Compute == nil {
		return domain.DueDates{}
	}

	inspected, ok := fields.Get(InspectionDateField)
	if !ok || inspected == "" {
		return domain.DueDates{}
	}

	years, months := interval(dt.Compute, fields)
	if years == 0 && months == 0 {
		return domain.DueDates{}
	}

	var (
		next string
		err  error
	)
	if years > 0 {
		next, err = dates.AddYears(inspected, years)
	} else {
		next, err = dates.AddMonths(inspected, months)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("doc_type", docType).Msg("cannot compute due date from inspection date")
		return domain.DueDates{}
	}
	return domain.DueDates{NextDueDate: next}
}

// interval picks the offset to add, in years or months. Flat years win over
// flat months, which win over a conditional rule.
func interval(c *regexmap.Compute, fields *domain.NormalisedFields) (years, months int) {
	switch {
	case c.NextDueYears > 0:
		return c.NextDueYears, 0
	case c.NextDueMonths > 0:
		return 0, c.NextDueMonths
	case c.NextDueRule == nil:
		return 0, 0
	}

	rule := c.NextDueRule
	if rule.YearsFromField != "" {
		if text, ok := fields.Get(rule.YearsFromField); ok {
			if m := yearsInText.FindStringSubmatch(text); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
					return n, 0
				}
			}
		}
		return rule.ElseYears, rule.ElseMonths
	}

	if rule.Applies(fields.Values()) {
		return rule.Years, rule.Months
	}
	return rule.ElseYears, rule.ElseMonths
}
