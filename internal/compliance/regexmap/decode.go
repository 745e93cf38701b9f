package regexmap

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blociq/blociq-backend/internal/compliance/rules"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("regex-map.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("regex-map.schema.json")
	})
	return schema, schemaErr
}

// Parse decodes and validates a rule set. tag is recorded as Config.Tag.
// The returned error, if any, is a *ConfigError.
func Parse(data []byte, tag string) (*Config, error) {
	cfg, err := parse(data, tag)
	if err != nil {
		return nil, &ConfigError{Version: tag, Err: err}
	}
	return cfg, nil
}

func parse(data []byte, tag string) (*Config, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if generic == nil {
		return nil, errors.New("rule set is empty")
	}
	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode rule set: %w", err)
	}

	cfg := &Config{
		Tag:      tag,
		Version:  raw.Version,
		Defaults: raw.Defaults,
		byName:   make(map[string]*DocumentType),
	}

	types, err := mappingPairs(&raw.Types)
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	for _, pair := range types {
		name := pair.key
		if _, dup := cfg.byName[name]; dup {
			return nil, fmt.Errorf("type %q declared twice", name)
		}
		dt, err := decodeType(name, pair.value, raw.Defaults)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", name, err)
		}
		cfg.Types = append(cfg.Types, dt)
		cfg.byName[name] = dt
	}

	return cfg, nil
}

// validateSchema checks the YAML document against the embedded JSON schema.
// The document is round-tripped through encoding/json so the validator sees
// the same value shapes it would for a JSON source.
func validateSchema(doc any) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rule set is not representable as JSON: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal rule set: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("rule set does not match schema: %w", err)
	}
	return nil
}

type rawConfig struct {
	Version  int       `yaml:"version"`
	Defaults Defaults  `yaml:"defaults"`
	Types    yaml.Node `yaml:"types"`
}

type rawType struct {
	Detect  patternList `yaml:"detect"`
	Fields  yaml.Node   `yaml:"fields"`
	Compute *Compute    `yaml:"compute"`
	Map     Mapping     `yaml:"map"`
}

func decodeType(name string, node *yaml.Node, defaults Defaults) (*DocumentType, error) {
	var raw rawType
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}

	dt := &DocumentType{
		Name:    name,
		Detect:  raw.Detect,
		Compute: raw.Compute,
		Map:     raw.Map,
	}

	fields, err := mappingPairs(&raw.Fields)
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	seen := make(map[string]bool, len(fields))
	for _, pair := range fields {
		if seen[pair.key] {
			return nil, fmt.Errorf("field %q declared twice", pair.key)
		}
		seen[pair.key] = true

		var patterns patternList
		if err := pair.value.Decode(&patterns); err != nil {
			return nil, fmt.Errorf("field %q: %w", pair.key, err)
		}
		dt.Fields = append(dt.Fields, Field{Name: pair.key, Patterns: patterns})
	}

	if err := compileRules(dt, defaults); err != nil {
		return nil, err
	}
	return dt, nil
}

func compileRules(dt *DocumentType, defaults Defaults) error {
	if err := checkMacros(dt.Detect, defaults); err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	for _, f := range dt.Fields {
		if err := checkMacros(f.Patterns, defaults); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}

	for i := range dt.Map.StatusRules {
		rule := &dt.Map.StatusRules[i]
		cond, err := rules.Parse(rule.When)
		if err != nil {
			return fmt.Errorf("status rule %d: %w", i+1, err)
		}
		rule.cond = cond
	}

	c := dt.Compute
	if c == nil {
		return nil
	}
	set := 0
	for _, present := range []bool{c.NextDueYears > 0, c.NextDueMonths > 0, c.NextDueRule != nil} {
		if present {
			set++
		}
	}
	if set > 1 {
		return errors.New("compute: only one of next_due_years, next_due_months and next_due_rule may be set")
	}

	rule := c.NextDueRule
	if rule == nil {
		return nil
	}
	switch {
	case rule.YearsFromField != "":
		if rule.When != "" {
			return errors.New("next_due_rule: when and years_from_field are mutually exclusive")
		}
	case rule.When == "":
		return errors.New("next_due_rule: when or years_from_field is required")
	default:
		cond, err := rules.Parse(rule.When)
		if err != nil {
			return fmt.Errorf("next_due_rule: %w", err)
		}
		rule.cond = cond
	}
	return nil
}

// checkMacros rejects macro references to an empty defaults list. Inline, such
// a reference would expand to an empty group that matches everywhere.
func checkMacros(patterns []string, defaults Defaults) error {
	macros := []struct {
		whole, inline, key string
		list               []string
	}{
		{MacroUKDates, InlineUKDates, "uk_date_patterns", defaults.UKDatePatterns},
		{MacroCurrency, InlineCurrency, "currency_patterns", defaults.CurrencyPatterns},
	}
	for _, p := range patterns {
		for _, m := range macros {
			if len(m.list) > 0 {
				continue
			}
			if p == m.whole || strings.Contains(p, m.inline) {
				return fmt.Errorf("pattern %q references defaults.%s, which is empty", p, m.key)
			}
		}
	}
	return nil
}

type nodePair struct {
	key   string
	value *yaml.Node
}

// mappingPairs returns the key/value pairs of a mapping node in document
// order. A zero node (key absent) yields no pairs.
func mappingPairs(node *yaml.Node) ([]nodePair, error) {
	node = resolve(node)
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	pairs := make([]nodePair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, nodePair{key: node.Content[i].Value, value: node.Content[i+1]})
	}
	return pairs, nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

// patternList accepts a single pattern, a list of patterns (nested lists from
// YAML aliases are flattened) or a mapping with a "patterns" key.
type patternList []string

func (p *patternList) UnmarshalYAML(value *yaml.Node) error {
	value = resolve(value)
	switch value.Kind {
	case yaml.ScalarNode:
		*p = patternList{value.Value}
		return nil
	case yaml.SequenceNode:
		var out patternList
		for _, item := range value.Content {
			var nested patternList
			if err := nested.UnmarshalYAML(item); err != nil {
				return err
			}
			out = append(out, nested...)
		}
		*p = out
		return nil
	case yaml.MappingNode:
		var wrapped struct {
			Patterns patternList `yaml:"patterns"`
		}
		if err := value.Decode(&wrapped); err != nil {
			return err
		}
		*p = wrapped.Patterns
		return nil
	default:
		return fmt.Errorf("line %d: expected a pattern or list of patterns", value.Line)
	}
}
