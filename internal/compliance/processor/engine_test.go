package processor_test

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/processor"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
	"github.com/blociq/blociq-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedRules = "../../../config/compliance"

var sampleDocuments = map[string]string{
	"EICR": `
		Electrical Installation Condition Report
		Inspection Date: 15/07/2023
		Property: Ashwood House
		BS 7671:2018
		Satisfactory
		No Category 1 issues`,
	"FRA": `
		Fire Risk Assessment
		Inspection Date: 20/08/2023
		Risk Rating: Moderate
		Review due: 20/08/2024`,
	"FRAEW_EWS1": `
		EWS1 Certificate
		External Wall System Assessment
		Class: A1
		Inspection Date: 10/09/2023`,
	"EmergencyLighting": `
		Emergency Lighting Test Certificate
		Monthly Function Test
		Inspection Date: 5/10/2023
		Annual Duration Test`,
	"FireAlarm": `
		Fire Alarm System Test
		BS 5839
		Inspection Date: 12/11/2023
		Weekly testing`,
	"Asbestos": `
		Asbestos Survey Report
		Management Survey
		Inspection Date: 25/12/2023
		Asbestos Register`,
	"WaterRisk": `
		Legionella Risk Assessment
		HSG274
		Inspection Date: 15/01/2024
		Review within 2 years`,
	"Insurance": `
		Schedule of Insurance
		Policy Number: ABC123/2024
		Insured By: Property Management Ltd
		Period From: 1/1/2024
		Period To: 31/12/2024
		Buildings Sum Insured: £500,000`,
	"LiftLOLER": `
		LOLER Thorough Examination Report
		Passenger lift
		Date of Thorough Examination: 12/11/2023
		Safe to operate: Yes`,
	"GasSafety": `
		Landlord Gas Safety Record (CP12)
		Gas Safe Registration No: 123456
		Date of Check: 03/03/2024
		Safe to use: Yes`,
}

func newEngine(t *testing.T) *processor.Engine {
	t.Helper()
	loader := regexmap.NewDirLoader(shippedRules, regexmap.WithVersion("v1"))
	return processor.NewEngine(loader, logger.Nop())
}

func newEngineFS(t *testing.T, yaml string, log *logger.Logger) *processor.Engine {
	t.Helper()
	fsys := fstest.MapFS{
		"rules/regex-map.v1.yaml": &fstest.MapFile{Data: []byte(yaml)},
	}
	loader := regexmap.NewLoader(fsys, "rules", regexmap.WithVersion("v1"))
	return processor.NewEngine(loader, log)
}

func TestDetectDocType(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		want  string
		score float64
	}{
		{"EICR", 2.3},
		{"FRA", 2.1},
		{"FRAEW_EWS1", 2.3},
		{"EmergencyLighting", 3.1},
		{"FireAlarm", 2.5},
		{"Asbestos", 2.8},
		{"WaterRisk", 2.3},
		{"Insurance", 3.0},
		{"LiftLOLER", 3.1},
		{"GasSafety", 2.6},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := engine.DetectText(sampleDocuments[tt.want])
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.score, got.Score)
			assert.True(t, got.Known())
		})
	}
}

func TestDetectDocType_Unknown(t *testing.T) {
	engine := newEngine(t)

	for _, text := range []string{
		"This is just some random text with no compliance markers.",
		"",
	} {
		got, err := engine.DetectText(text)
		require.NoError(t, err)
		assert.Equal(t, domain.DetectionResult{Type: domain.UnknownType, Score: 0}, got)
		assert.False(t, got.Known())
	}
}

func TestDetectDocType_TieKeepsDeclarationOrder(t *testing.T) {
	engine := newEngineFS(t, `
version: 1
types:
  First:
    detect: 'shared marker'
  Second:
    detect: 'shared marker'
`, logger.Nop())

	got, err := engine.DetectText("a shared marker here")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Type)
	assert.Equal(t, 0.5, got.Score)
}

func TestExtractFields(t *testing.T) {
	engine := newEngine(t)

	t.Run("EICR", func(t *testing.T) {
		fields, err := engine.ExtractFields("EICR", processor.TextPages(sampleDocuments["EICR"]))
		require.NoError(t, err)

		assert.Equal(t, map[string]string{
			"inspection_date": "2023-07-15",
			"result":          "Satisfactory",
		}, fields.Values())
		assert.Equal(t, []int{1}, fields.SourcePages())
	})

	t.Run("EICR with observations", func(t *testing.T) {
		text := "EICR\nInspection Date: 15/07/2023\nOverall: Unsatisfactory\nC1: 2\nC2 observations: 3\n" +
			"Certificate No: EC-2023/001\nContractor: Sparks Ltd"
		fields, err := engine.ExtractFields("EICR", processor.TextPages(text))
		require.NoError(t, err)

		assert.Equal(t, map[string]string{
			"inspection_date":    "2023-07-15",
			"result":             "Unsatisfactory",
			"C1":                 "2",
			"C2":                 "3",
			"certificate_number": "EC-2023/001",
			"contractor":         "Sparks Ltd",
		}, fields.Values())
	})

	t.Run("FRA", func(t *testing.T) {
		fields, err := engine.ExtractFields("FRA", processor.TextPages(sampleDocuments["FRA"]))
		require.NoError(t, err)

		assert.Equal(t, map[string]string{
			"inspection_date": "2023-08-20",
			"risk_rating":     "Moderate",
			"review_date":     "2024-08-20",
		}, fields.Values())
	})

	t.Run("Insurance", func(t *testing.T) {
		text := "Policy No: ABC123/2024\nPeriod From: 1/1/2024\nPeriod To: 31/12/2024\nBuildings Sum Insured: £500,000"
		fields, err := engine.ExtractFields("Insurance", processor.TextPages(text))
		require.NoError(t, err)

		assert.Equal(t, map[string]string{
			"policy_number":         "ABC123/2024",
			"period_from":           "2024-01-01",
			"period_to":             "2024-12-31",
			"buildings_sum_insured": "£500,000",
		}, fields.Values())
	})

	t.Run("source pages follow the matching page", func(t *testing.T) {
		pages := []domain.Page{
			{Page: 1, Text: "Electrical Installation Condition Report"},
			{Page: 2, Text: "Inspection Date: 15/07/2023\nSatisfactory"},
		}
		fields, err := engine.ExtractFields("EICR", pages)
		require.NoError(t, err)

		v, ok := fields.Get("inspection_date")
		require.True(t, ok)
		assert.Equal(t, "2023-07-15", v)
		assert.Equal(t, []int{2}, fields.SourcePages())
	})

	t.Run("unparseable date is dropped", func(t *testing.T) {
		fields, err := engine.ExtractFields("FRA", processor.TextPages("Inspection Date: 31/02/2023\nRisk Rating: Low"))
		require.NoError(t, err)

		_, ok := fields.Get("inspection_date")
		assert.False(t, ok)
		assert.Equal(t, "Low", fields.Values()["risk_rating"])
	})

	t.Run("unknown type", func(t *testing.T) {
		fields, err := engine.ExtractFields("Nope", processor.TextPages(sampleDocuments["EICR"]))
		require.NoError(t, err)
		assert.Equal(t, 0, fields.Len())
		assert.Empty(t, fields.SourcePages())
	})
}

func TestComputeDueDates(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name    string
		docType string
		fields  map[string]string
		want    string
	}{
		{"EICR five years", "EICR", map[string]string{"inspection_date": "2023-07-15"}, "2028-07-15"},
		{"FRA annual", "FRA", map[string]string{"inspection_date": "2023-08-20"}, "2024-08-20"},
		{"fire alarm six months", "FireAlarm", map[string]string{"inspection_date": "2023-11-12"}, "2024-05-12"},
		{"emergency lighting annual duration", "EmergencyLighting",
			map[string]string{"inspection_date": "2023-10-05", "test_type": "Annual Duration"}, "2024-10-05"},
		{"emergency lighting monthly", "EmergencyLighting",
			map[string]string{"inspection_date": "2023-10-05", "test_type": "Monthly Function"}, "2023-11-05"},
		{"passenger lift", "LiftLOLER",
			map[string]string{"inspection_date": "2023-11-12", "lift_type": "Passenger"}, "2024-05-12"},
		{"goods lift", "LiftLOLER",
			map[string]string{"inspection_date": "2023-11-12", "lift_type": "goods"}, "2024-11-12"},
		{"water risk stated review", "WaterRisk",
			map[string]string{"inspection_date": "2024-01-15", "review": "3 years"}, "2027-01-15"},
		{"water risk default review", "WaterRisk",
			map[string]string{"inspection_date": "2024-01-15"}, "2026-01-15"},
		{"water risk unparseable review", "WaterRisk",
			map[string]string{"inspection_date": "2024-01-15", "review": "annually"}, "2026-01-15"},
		{"gas safety from leap day", "GasSafety", map[string]string{"inspection_date": "2024-02-29"}, "2025-03-01"},
		{"missing inspection date", "EICR", map[string]string{"result": "Satisfactory"}, ""},
		{"no compute rule", "Insurance", map[string]string{"inspection_date": "2024-01-01"}, ""},
		{"unknown type", domain.UnknownType, map[string]string{"inspection_date": "2024-01-01"}, ""},
		{"malformed inspection date", "EICR", map[string]string{"inspection_date": "15/07/2023"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.ComputeDueDates(tt.docType, domain.FieldsOf(tt.fields))
			require.NoError(t, err)
			assert.Equal(t, domain.DueDates{NextDueDate: tt.want}, got)
		})
	}
}

func TestToSummaryJSON(t *testing.T) {
	engine := newEngine(t)

	t.Run("EICR satisfactory", func(t *testing.T) {
		fields := domain.FieldsOf(map[string]string{
			"inspection_date": "2023-07-15",
			"result":          "Satisfactory",
		}, 1)
		summary, err := engine.ToSummaryJSON("EICR", fields, domain.DueDates{NextDueDate: "2028-07-15"})
		require.NoError(t, err)

		assert.Equal(t, "assessment", summary.DocType)
		assert.Equal(t, "EICR", summary.AssessmentType)
		assert.Equal(t, "2023-07-15", summary.InspectionDate)
		assert.Equal(t, "2028-07-15", summary.NextDueDate)
		assert.Equal(t, "Compliant", summary.Status)
		assert.NotEmpty(t, summary.NextDueHint)
		assert.Equal(t, []int{1}, summary.SourcePages)
		assert.Equal(t, "Satisfactory", summary.Fields["result"])
	})

	t.Run("EICR with C1 observations", func(t *testing.T) {
		fields := domain.FieldsOf(map[string]string{
			"inspection_date": "2023-07-15",
			"result":          "Satisfactory",
			"C1":              "2",
		})
		summary, err := engine.ToSummaryJSON("EICR", fields, domain.DueDates{})
		require.NoError(t, err)
		assert.Equal(t, "ActionRequired", summary.Status)
	})

	t.Run("no status rule matches", func(t *testing.T) {
		summary, err := engine.ToSummaryJSON("FireAlarm", domain.FieldsOf(nil), domain.DueDates{})
		require.NoError(t, err)
		assert.Empty(t, summary.Status)
	})

	t.Run("insurance", func(t *testing.T) {
		fields := domain.FieldsOf(map[string]string{"policy_number": "ABC123/2024"}, 1)
		summary, err := engine.ToSummaryJSON("Insurance", fields, domain.DueDates{})
		require.NoError(t, err)

		assert.Equal(t, "insurance", summary.DocType)
		assert.Empty(t, summary.AssessmentType)

		raw, err := json.Marshal(summary)
		require.NoError(t, err)
		assert.JSONEq(t, `{"doc_type":"insurance","policy_number":"ABC123/2024","source_pages":[1]}`, string(raw))
	})

	t.Run("unknown", func(t *testing.T) {
		summary, err := engine.ToSummaryJSON(domain.UnknownType, domain.FieldsOf(map[string]string{"x": "y"}), domain.DueDates{})
		require.NoError(t, err)

		raw, err := json.Marshal(summary)
		require.NoError(t, err)
		assert.JSONEq(t, `{"doc_type":"unknown","source_pages":[]}`, string(raw))
	})
}

func TestToCompliancePatch(t *testing.T) {
	engine := newEngine(t)

	t.Run("EICR unsatisfactory", func(t *testing.T) {
		fields := domain.FieldsOf(map[string]string{
			"inspection_date": "2023-07-15",
			"result":          "Unsatisfactory",
			"C1":              "2",
		}, 1)
		patch, err := engine.ToCompliancePatch("EICR", fields, domain.DueDates{NextDueDate: "2028-07-15"})
		require.NoError(t, err)

		raw, err := json.Marshal(patch)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"assessment_type": "EICR",
			"doc_type": "assessment",
			"last_inspected_at": "2023-07-15",
			"next_due_date": "2028-07-15",
			"status": "ActionRequired",
			"result": "Unsatisfactory",
			"C1": "2"
		}`, string(raw))
		assert.NotContains(t, patch.Fields, "inspection_date")
	})

	t.Run("unknown type is empty", func(t *testing.T) {
		patch, err := engine.ToCompliancePatch(domain.UnknownType, domain.FieldsOf(map[string]string{"a": "b"}), domain.DueDates{})
		require.NoError(t, err)
		assert.True(t, patch.IsEmpty())

		raw, err := json.Marshal(patch)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(raw))
	})
}

func TestProcess(t *testing.T) {
	engine := newEngine(t)

	for docType, text := range sampleDocuments {
		t.Run(docType, func(t *testing.T) {
			analysis, err := engine.Process(processor.TextPages(text))
			require.NoError(t, err)

			assert.Equal(t, docType, analysis.Detection.Type)
			assert.Equal(t, "v1", analysis.RegexVersion)

			// Summary and patch describe the same document.
			assert.Equal(t, analysis.Summary.NextDueDate, analysis.Patch.NextDueDate)
			assert.Equal(t, analysis.Summary.InspectionDate, analysis.Patch.LastInspectedAt)
			assert.Equal(t, analysis.Summary.Status, analysis.Patch.Status)
			assert.Equal(t, analysis.Summary.DocType, analysis.Patch.DocType)
			assert.Equal(t, analysis.Due.NextDueDate, analysis.Summary.NextDueDate)
		})
	}

	t.Run("lift", func(t *testing.T) {
		analysis, err := engine.Process(processor.TextPages(sampleDocuments["LiftLOLER"]))
		require.NoError(t, err)
		assert.Equal(t, "2024-05-12", analysis.Due.NextDueDate)
		assert.Equal(t, "Compliant", analysis.Summary.Status)
	})

	t.Run("water risk review", func(t *testing.T) {
		analysis, err := engine.Process(processor.TextPages(sampleDocuments["WaterRisk"]))
		require.NoError(t, err)
		v, _ := analysis.Fields.Get("review")
		assert.Equal(t, "2 years", v)
		assert.Equal(t, "2026-01-15", analysis.Due.NextDueDate)
	})

	t.Run("unknown", func(t *testing.T) {
		analysis, err := engine.Process(processor.TextPages("nothing to see"))
		require.NoError(t, err)
		assert.Equal(t, domain.UnknownType, analysis.Detection.Type)
		assert.Equal(t, 0, analysis.Fields.Len())
		assert.Empty(t, analysis.Due.NextDueDate)
		assert.Equal(t, "unknown", analysis.Summary.DocType)
		assert.True(t, analysis.Patch.IsEmpty())
	})
}

func TestProcess_Idempotent(t *testing.T) {
	engine := newEngine(t)
	pages := processor.TextPages(sampleDocuments["EICR"])

	first, err := engine.Process(pages)
	require.NoError(t, err)
	second, err := engine.Process(pages)
	require.NoError(t, err)

	a, err := json.Marshal(first.Summary)
	require.NoError(t, err)
	b, err := json.Marshal(second.Summary)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, first.Patch, second.Patch)
}

func TestProcess_Concurrent(t *testing.T) {
	engine := newEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docType := "EICR"
			if i%2 == 0 {
				docType = "GasSafety"
			}
			analysis, err := engine.Process(processor.TextPages(sampleDocuments[docType]))
			if err != nil {
				errs <- err
				return
			}
			if analysis.Detection.Type != docType {
				errs <- assert.AnError
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestProcess_InvalidPatternSkipped(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "test")

	engine := newEngineFS(t, `
version: 1
types:
  Widget:
    detect:
      - 'widget(?=s)'
      - 'widget report'
    fields:
      serial: 'Serial:\s*(\w+)'
`, log)

	for i := 0; i < 2; i++ {
		analysis, err := engine.Process(processor.TextPages("Widget Report\nSerial: W42"))
		require.NoError(t, err)
		assert.Equal(t, "Widget", analysis.Detection.Type)
		assert.Equal(t, 0.8, analysis.Detection.Score)
		v, _ := analysis.Fields.Get("serial")
		assert.Equal(t, "W42", v)
	}

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("skipping invalid pattern")))
}

func TestProcess_MacroExpansion(t *testing.T) {
	engine := newEngineFS(t, `
version: 1
defaults:
  uk_date_patterns:
    - '\d{1,2}/\d{1,2}/\d{4}'
  currency_patterns:
    - '£[\d,]+'
types:
  Receipt:
    detect: 'receipt'
    fields:
      paid_date: '*uk_date_patterns'
      total: 'Total:\s*(${currency_patterns})'
`, logger.Nop())

	fields, err := engine.ExtractFields("Receipt", processor.TextPages("Receipt\nPaid 3/4/2024\nTotal: £1,250"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"paid_date": "2024-04-03",
		"total":     "£1,250",
	}, fields.Values())
}

func TestEngine_ConfigErrorPropagates(t *testing.T) {
	engine := newEngineFS(t, "types: [not, a, mapping]", logger.Nop())

	_, err := engine.Process(processor.TextPages("anything"))
	require.Error(t, err)
	assert.ErrorIs(t, err, regexmap.ErrConfigLoad)

	_, err = engine.DetectText("anything")
	assert.ErrorIs(t, err, regexmap.ErrConfigLoad)
}
