package regexmap_test

import (
	"errors"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
	"github.com/blociq/blociq-backend/internal/compliance/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
version: 2
defaults:
  flags: im
  uk_date_patterns: &dates
    - '\d{1,2}/\d{1,2}/\d{4}'
  currency_patterns:
    - '£[\d,]+'
types:
  Zeta:
    detect: 'zeta certificate'
    fields:
      inspection_date: *dates
      grade: ['Grade:\s*(\w+)', 'Rating:\s*(\w+)']
      amounts:
        patterns:
          - '*currency_patterns'
          - *dates
    compute:
      next_due_months: 3
    map:
      assessment_type: ZetaCheck
      status_rules:
        - when: "grade in ['A','B']"
          status: Compliant
        - when: "true"
          status: Review
  Alpha:
    detect: ['alpha']
    fields:
      kind: 'Kind:\s*(\w+)'
    compute:
      next_due_rule:
        when: "kind=='fast'"
        months: 1
        else_years: 1
    map:
      doc_type: other
`

func mapFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestLoader_LoadShippedRuleSet(t *testing.T) {
	loader := regexmap.NewDirLoader("../../../config/compliance")

	cfg, err := loader.Load("v1")
	require.NoError(t, err)

	assert.Equal(t, "v1", cfg.Tag)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "gim", cfg.Flags())
	assert.Equal(t, []string{
		"EICR", "FRA", "FRAEW_EWS1", "EmergencyLighting", "FireAlarm",
		"LiftLOLER", "WaterRisk", "Asbestos", "GasSafety", "Insurance",
	}, cfg.TypeNames())

	eicr, ok := cfg.Type("EICR")
	require.True(t, ok)
	assert.Equal(t, "inspection_date", eicr.Fields[0].Name)
	require.NotNil(t, eicr.Compute)
	assert.Equal(t, 5, eicr.Compute.NextDueYears)
	assert.Equal(t, "EICR", eicr.Map.AssessmentType)
	require.NotEmpty(t, eicr.Map.StatusRules)
	assert.True(t, eicr.Map.StatusRules[0].Matches(map[string]string{"result": "Unsatisfactory"}))

	lift, ok := cfg.Type("LiftLOLER")
	require.True(t, ok)
	require.NotNil(t, lift.Compute.NextDueRule)
	assert.True(t, lift.Compute.NextDueRule.Applies(map[string]string{"lift_type": "passenger"}))
	assert.False(t, lift.Compute.NextDueRule.Applies(map[string]string{"lift_type": "goods"}))

	water, ok := cfg.Type("WaterRisk")
	require.True(t, ok)
	assert.Equal(t, "review", water.Compute.NextDueRule.YearsFromField)
	assert.Equal(t, 2, water.Compute.NextDueRule.ElseYears)

	insurance, ok := cfg.Type("Insurance")
	require.True(t, ok)
	assert.Nil(t, insurance.Compute)
	assert.Equal(t, "insurance", insurance.Map.DocType)
	assert.Empty(t, insurance.Map.AssessmentType)
}

func TestLoader_PatternShapesAndOrder(t *testing.T) {
	loader := regexmap.NewLoader(mapFS(map[string]string{
		"rules/regex-map.v2.yaml": minimalYAML,
	}), "rules")

	cfg, err := loader.Load("v2")
	require.NoError(t, err)

	assert.Equal(t, []string{"Zeta", "Alpha"}, cfg.TypeNames())
	assert.Equal(t, "im", cfg.Flags())

	zeta, _ := cfg.Type("Zeta")
	assert.Equal(t, []string{"zeta certificate"}, zeta.Detect)

	names := make([]string, len(zeta.Fields))
	for i, f := range zeta.Fields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"inspection_date", "grade", "amounts"}, names)

	date, _ := zeta.Field("inspection_date")
	assert.Equal(t, []string{`\d{1,2}/\d{1,2}/\d{4}`}, date.Patterns)

	amounts, _ := zeta.Field("amounts")
	assert.Equal(t, []string{regexmap.MacroCurrency, `\d{1,2}/\d{1,2}/\d{4}`}, amounts.Patterns)

	assert.Equal(t, "Review", zeta.Map.StatusRules[1].Status)
	assert.True(t, zeta.Map.StatusRules[1].Matches(nil))

	_, ok := zeta.Field("missing")
	assert.False(t, ok)
}

func TestLoader_CachesFirstLoad(t *testing.T) {
	fsys := mapFS(map[string]string{"regex-map.v2.yaml": minimalYAML})
	loader := regexmap.NewLoader(fsys, ".")

	first, err := loader.Load("v2")
	require.NoError(t, err)

	// A different version is ignored while the cache is populated.
	second, err := loader.Load("v7")
	require.NoError(t, err)
	assert.Same(t, first, second)

	loader.Clear()
	_, err = loader.Load("v7")
	require.Error(t, err)
	assert.ErrorIs(t, err, regexmap.ErrConfigLoad)
}

func TestLoader_ConcurrentLoadsShareConfig(t *testing.T) {
	loader := regexmap.NewLoader(mapFS(map[string]string{"regex-map.v2.yaml": minimalYAML}), ".")

	const workers = 16
	results := make([]*regexmap.Config, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := loader.Load("v2")
			assert.NoError(t, err)
			results[i] = cfg
		}(i)
	}
	wg.Wait()

	for _, cfg := range results {
		assert.Same(t, results[0], cfg)
	}
}

func TestLoader_VersionResolution(t *testing.T) {
	fsys := mapFS(map[string]string{
		"regex-map.v1.yaml": minimalYAML,
		"regex-map.v3.yaml": minimalYAML,
		"regex-map.v4.yaml": minimalYAML,
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv(regexmap.EnvVersion, "")
		cfg, err := regexmap.NewLoader(fsys, ".").Load("")
		require.NoError(t, err)
		assert.Equal(t, regexmap.DefaultVersion, cfg.Tag)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(regexmap.EnvVersion, "v3")
		cfg, err := regexmap.NewLoader(fsys, ".").Load("")
		require.NoError(t, err)
		assert.Equal(t, "v3", cfg.Tag)
	})

	t.Run("loader option beats environment", func(t *testing.T) {
		t.Setenv(regexmap.EnvVersion, "v3")
		cfg, err := regexmap.NewLoader(fsys, ".", regexmap.WithVersion("v4")).Load("")
		require.NoError(t, err)
		assert.Equal(t, "v4", cfg.Tag)
	})

	t.Run("explicit argument wins", func(t *testing.T) {
		t.Setenv(regexmap.EnvVersion, "v3")
		cfg, err := regexmap.NewLoader(fsys, ".", regexmap.WithVersion("v4")).Load("v1")
		require.NoError(t, err)
		assert.Equal(t, "v1", cfg.Tag)
	})
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "version: 1\ntypes: [unclosed"},
		{"empty document", ""},
		{"missing types", "version: 1\n"},
		{"unknown top-level key", "version: 1\nextras: true\ntypes:\n  A:\n    detect: a\n"},
		{"status rule without status", "version: 1\ntypes:\n  A:\n    map:\n      status_rules:\n        - when: 'true'\n"},
		{"bad flags", "version: 1\ndefaults:\n  flags: gx\ntypes:\n  A:\n    detect: a\n"},
		{"negative interval", "version: 1\ntypes:\n  A:\n    compute:\n      next_due_years: -1\n"},
		{"two compute rules", "version: 1\ntypes:\n  A:\n    compute:\n      next_due_years: 1\n      next_due_months: 6\n"},
		{"rule without condition", "version: 1\ntypes:\n  A:\n    compute:\n      next_due_rule:\n        years: 1\n"},
		{"duplicate field", "version: 1\ntypes:\n  A:\n    fields:\n      x: a\n      x: b\n"},
		{"inline macro with empty list", "version: 1\ntypes:\n  A:\n    fields:\n      d: 'Date:\\s*(${uk_date_patterns})'\n"},
		{"list macro with empty list", "version: 1\ndefaults:\n  currency_patterns: []\ntypes:\n  A:\n    detect: '*currency_patterns'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := regexmap.NewLoader(mapFS(map[string]string{"regex-map.v1.yaml": tt.body}), ".")
			_, err := loader.Load("v1")
			require.Error(t, err)
			assert.ErrorIs(t, err, regexmap.ErrConfigLoad)

			var cfgErr *regexmap.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "v1", cfgErr.Version)
		})
	}
}

func TestLoader_MissingFile(t *testing.T) {
	loader := regexmap.NewLoader(fstest.MapFS{}, "config/compliance")
	_, err := loader.Load("v1")
	require.Error(t, err)
	assert.ErrorIs(t, err, regexmap.ErrConfigLoad)
	assert.Contains(t, err.Error(), "config/compliance/regex-map.v1.yaml")
}

func TestParse_InvalidCondition(t *testing.T) {
	body := "version: 1\ntypes:\n  A:\n    map:\n      status_rules:\n        - when: \"result = 'x'\"\n          status: Bad\n"
	_, err := regexmap.Parse([]byte(body), "inline")
	require.Error(t, err)

	var syntaxErr *rules.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
	assert.ErrorIs(t, err, regexmap.ErrConfigLoad)
}

func TestParse_MacroWithEmptyDefaults(t *testing.T) {
	body := "version: 1\ndefaults:\n  uk_date_patterns: ['\\d{4}']\ntypes:\n  A:\n    fields:\n      total: 'Total:\\s*(${currency_patterns})'\n"
	_, err := regexmap.Parse([]byte(body), "inline")
	require.Error(t, err)
	assert.ErrorIs(t, err, regexmap.ErrConfigLoad)
	assert.ErrorContains(t, err, `field "total"`)
	assert.ErrorContains(t, err, "defaults.currency_patterns")

	body = "version: 1\ndefaults:\n  uk_date_patterns: ['\\d{4}']\ntypes:\n  A:\n    fields:\n      year: 'Year:\\s*(${uk_date_patterns})'\n"
	_, err = regexmap.Parse([]byte(body), "inline")
	assert.NoError(t, err)
}
