package processor

import (
	"github.com/blociq/blociq-backend/internal/compliance/dates"
	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
)

// ExtractFields pulls every configured field of docType out of the pages.
// Unknown types yield an empty field set.
func (e *Engine) ExtractFields(docType string, pages []domain.Page) (*domain.NormalisedFields, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	return e.extract(cfg, docType, pages), nil
}

func (e *Engine) extract(cfg *regexmap.Config, docType string, pages []domain.Page) *domain.NormalisedFields {
	fields := domain.NewNormalisedFields()

	dt, ok := cfg.Type(docType)
	if !ok {
		return fields
	}

	flags := cfg.Flags()
	for _, f := range dt.Fields {
		matches := e.matcher.Match(cfg.Defaults, flags, f.Patterns, pages)
		if len(matches) == 0 {
			continue
		}

		if !isDateField(f.Name) {
			fields.Set(f.Name, matches[0].Value)
			for _, m := range matches {
				fields.AddSourcePage(m.Page)
			}
			continue
		}

		// Dates keep the first match that normalises; the rest only add provenance.
		found := false
		for _, m := range matches {
			iso, ok := dates.NormalizeUKDate(m.Value)
			if !ok {
				continue
			}
			if !found {
				fields.Set(f.Name, iso)
				found = true
			}
			fields.AddSourcePage(m.Page)
		}
	}

	return fields
}
