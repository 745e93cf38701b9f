// Package processor runs compliance documents through the rule set:
// type detection, field extraction, due-date computation and status mapping.
//
// Dispatch is data driven. Every behaviour is looked up by type name in the
// loaded regexmap.Config, so a new certificate type needs only a rule-set
// change. The engine holds no per-document state and is safe for concurrent
// use.
package processor

import (
	"strings"
	"time"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
	"github.com/blociq/blociq-backend/pkg/logger"
)

// ConfigSource provides the active rule set. *regexmap.Loader implements it.
type ConfigSource interface {
	Load(version string) (*regexmap.Config, error)
}

// Engine is the compliance document pipeline.
type Engine struct {
	source  ConfigSource
	matcher *Matcher
	log     *logger.Logger
	now     func() time.Time
}

// NewEngine creates an engine reading its rule set from source.
func NewEngine(source ConfigSource, log *logger.Logger) *Engine {
	log = log.WithComponent("compliance-engine")
	return &Engine{
		source:  source,
		matcher: NewMatcher(log),
		log:     log,
		now:     time.Now,
	}
}

// Config returns the active rule set. Load failures are fatal configuration
// errors and are returned unchanged.
func (e *Engine) Config() (*regexmap.Config, error) {
	return e.source.Load("")
}

// TextPages wraps raw text as a single page numbered 1.
func TextPages(text string) []domain.Page {
	return []domain.Page{{Page: 1, Text: text}}
}

// Process runs the full pipeline: detect, extract, compute due dates, then
// build the summary and patch views.
func (e *Engine) Process(pages []domain.Page) (*domain.Analysis, error) {
	start := e.now()

	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}

	detection := e.detect(cfg, pages)
	fields := e.extract(cfg, detection.Type, pages)
	due := e.computeDueDates(cfg, detection.Type, fields)

	analysis := &domain.Analysis{
		Detection:        detection,
		Fields:           fields,
		Due:              due,
		Summary:          e.toSummary(cfg, detection.Type, fields, due),
		Patch:            e.toPatch(cfg, detection.Type, fields, due),
		RegexVersion:     cfg.Tag,
		ProcessingTimeMs: e.now().Sub(start).Milliseconds(),
	}

	e.log.Debug().
		Str("doc_type", detection.Type).
		Float64("score", detection.Score).
		Int("fields_extracted", fields.Len()).
		Str("next_due_date", due.NextDueDate).
		Msg("compliance document processed")

	return analysis, nil
}

func isDateField(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "date") || strings.Contains(name, "period")
}
