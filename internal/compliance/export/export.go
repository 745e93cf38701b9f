// Package export renders analysed documents as an XLSX workbook for
// building managers who track compliance in spreadsheets.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
)

const (
	SheetDocuments = "Documents"
	SheetFields    = "Fields"
)

var documentHeaders = []string{
	"Document",
	"Type",
	"Score",
	"Assessment Type",
	"Inspection Date",
	"Next Due Date",
	"Next Due Hint",
	"Status",
	"Source Pages",
	"Regex Version",
}

var fieldHeaders = []string{"Document", "Field", "Value"}

// Row is one analysed document. Name is usually the source file name.
type Row struct {
	Name     string
	Analysis *domain.Analysis
}

// Workbook returns the XLSX bytes for rows. The Documents sheet has one line
// per analysed document, rows without an analysis are skipped. The Fields
// sheet lists every extracted field.
func Workbook(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDocuments); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetFields); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	if err := writeRow(f, SheetDocuments, 1, toAny(documentHeaders)); err != nil {
		return nil, err
	}
	if err := writeRow(f, SheetFields, 1, toAny(fieldHeaders)); err != nil {
		return nil, err
	}

	docRow, fieldRow := 2, 2
	for _, r := range rows {
		a := r.Analysis
		if a == nil {
			continue
		}
		if err := writeRow(f, SheetDocuments, docRow, []any{
			r.Name,
			a.Detection.Type,
			a.Detection.Score,
			a.Summary.AssessmentType,
			a.Summary.InspectionDate,
			a.Summary.NextDueDate,
			a.Summary.NextDueHint,
			a.Summary.Status,
			joinPages(a.Fields.SourcePages()),
			a.RegexVersion,
		}); err != nil {
			return nil, err
		}
		docRow++

		for _, name := range a.Fields.Names() {
			value, _ := a.Fields.Get(name)
			if err := writeRow(f, SheetFields, fieldRow, []any{r.Name, name, value}); err != nil {
				return nil, err
			}
			fieldRow++
		}
	}

	_ = f.SetColWidth(SheetDocuments, "A", "A", 32)
	_ = f.SetColWidth(SheetDocuments, "B", "D", 18)
	_ = f.SetColWidth(SheetDocuments, "E", "F", 14)
	_ = f.SetColWidth(SheetDocuments, "G", "G", 40)
	_ = f.SetColWidth(SheetFields, "A", "B", 28)
	_ = f.SetColWidth(SheetFields, "C", "C", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
