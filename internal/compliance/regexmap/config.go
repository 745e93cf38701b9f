// Package regexmap holds the versioned, externally editable rule set that
// drives compliance document classification: detection patterns, field
// patterns, due-date rules and status rules per document type.
package regexmap

import (
	"github.com/blociq/blociq-backend/internal/compliance/rules"
)

const (
	// DefaultVersion is used when neither the caller nor the environment
	// selects a rule-set version.
	DefaultVersion = "v1"

	// DefaultFlags applies when a rule set does not declare defaults.flags.
	DefaultFlags = "gim"

	// MacroUKDates and MacroCurrency are whole-pattern macros that expand to
	// the corresponding defaults list.
	MacroUKDates  = "*uk_date_patterns"
	MacroCurrency = "*currency_patterns"

	// InlineUKDates and InlineCurrency may appear inside a larger pattern and
	// expand to a non-capturing alternation of the defaults list.
	InlineUKDates  = "${uk_date_patterns}"
	InlineCurrency = "${currency_patterns}"
)

// Config is a loaded rule set. It is immutable once returned by a Loader.
type Config struct {
	// Tag is the version tag the rule set was loaded as, e.g. "v1".
	Tag      string
	Version  int
	Defaults Defaults
	// Types keeps declaration order, which breaks detection ties.
	Types []*DocumentType

	byName map[string]*DocumentType
}

// Defaults are shared settings and macro pattern lists.
type Defaults struct {
	Flags            string   `yaml:"flags"`
	UKDatePatterns   []string `yaml:"uk_date_patterns"`
	CurrencyPatterns []string `yaml:"currency_patterns"`
}

// DocumentType is the rule table entry for one certificate type.
type DocumentType struct {
	Name    string
	Detect  []string
	Fields  []Field
	Compute *Compute
	Map     Mapping
}

// Field is a named extraction target with one or more patterns.
type Field struct {
	Name     string
	Patterns []string
}

// Compute describes how the next due date follows from the inspection date.
// At most one of NextDueYears, NextDueMonths and NextDueRule is set.
type Compute struct {
	NextDueYears  int      `yaml:"next_due_years"`
	NextDueMonths int      `yaml:"next_due_months"`
	NextDueRule   *DueRule `yaml:"next_due_rule"`
	NextDueHint   string   `yaml:"next_due_hint"`
}

// DueRule is a conditional due-date rule. Either When selects between the
// Years/Months and ElseYears/ElseMonths branches, or YearsFromField names a
// free-text field from which an "N year(s)" interval is read, falling back to
// ElseYears.
type DueRule struct {
	When           string `yaml:"when"`
	Years          int    `yaml:"years"`
	Months         int    `yaml:"months"`
	YearsFromField string `yaml:"years_from_field"`
	ElseYears      int    `yaml:"else_years"`
	ElseMonths     int    `yaml:"else_months"`

	cond rules.Expr
}

// Applies evaluates the rule's condition against extracted fields.
func (r *DueRule) Applies(fields map[string]string) bool {
	if r.cond == nil {
		return false
	}
	return r.cond.Eval(fields)
}

// Mapping is output metadata for a type.
type Mapping struct {
	AssessmentType string       `yaml:"assessment_type"`
	DocType        string       `yaml:"doc_type"`
	StatusRules    []StatusRule `yaml:"status_rules"`
}

// StatusRule assigns Status when its condition holds. Rules are evaluated in
// order and the first match wins.
type StatusRule struct {
	When   string `yaml:"when"`
	Status string `yaml:"status"`

	cond rules.Expr
}

// Matches evaluates the rule's condition against extracted fields.
func (r StatusRule) Matches(fields map[string]string) bool {
	if r.cond == nil {
		return false
	}
	return r.cond.Eval(fields)
}

// Type looks up a document type by name.
func (c *Config) Type(name string) (*DocumentType, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// TypeNames returns type names in declaration order.
func (c *Config) TypeNames() []string {
	names := make([]string, len(c.Types))
	for i, t := range c.Types {
		names[i] = t.Name
	}
	return names
}

// Flags returns the configured regex flags, defaulting to DefaultFlags.
func (c *Config) Flags() string {
	if c.Defaults.Flags == "" {
		return DefaultFlags
	}
	return c.Defaults.Flags
}

// Field looks up a field by name.
func (t *DocumentType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
