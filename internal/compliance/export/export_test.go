package export_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/export"
)

func TestWorkbook(t *testing.T) {
	fields := domain.FieldsOf(map[string]string{
		"inspection_date": "2023-07-15",
		"result":          "Satisfactory",
	}, 1)
	fields.AddSourcePage(3)

	rows := []export.Row{
		{
			Name: "eicr.pdf",
			Analysis: &domain.Analysis{
				Detection: domain.DetectionResult{Type: "EICR", Score: 2.3},
				Fields:    fields,
				Summary: domain.SummaryJSON{
					DocType:        "assessment",
					AssessmentType: "EICR",
					InspectionDate: "2023-07-15",
					NextDueDate:    "2028-07-15",
					Status:         "Compliant",
				},
				RegexVersion: "v1",
			},
		},
		{Name: "skipped.pdf"},
		{
			Name: "notes.txt",
			Analysis: &domain.Analysis{
				Detection:    domain.DetectionResult{Type: domain.UnknownType},
				Fields:       domain.NewNormalisedFields(),
				Summary:      domain.SummaryJSON{DocType: "unknown"},
				RegexVersion: "v1",
			},
		},
	}

	data, err := export.Workbook(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	docs, err := f.GetRows(export.SheetDocuments)
	require.NoError(t, err)
	require.Len(t, docs, 3, "documents without an analysis leave no gap")
	assert.Equal(t, "Document", docs[0][0])
	assert.Equal(t, []string{"eicr.pdf", "EICR", "2.3", "EICR", "2023-07-15", "2028-07-15", "", "Compliant", "1,3", "v1"}, docs[1])
	assert.Equal(t, "notes.txt", docs[2][0])
	assert.Equal(t, domain.UnknownType, docs[2][1])

	fieldRows, err := f.GetRows(export.SheetFields)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Document", "Field", "Value"},
		{"eicr.pdf", "inspection_date", "2023-07-15"},
		{"eicr.pdf", "result", "Satisfactory"},
	}, fieldRows)
}

func TestWorkbook_Empty(t *testing.T) {
	data, err := export.Workbook(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.SheetDocuments, export.SheetFields}, f.GetSheetList())
}
