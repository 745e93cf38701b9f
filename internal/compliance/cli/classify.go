package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/export"
)

const (
	formatJSON = "json"
	formatXLSX = "xlsx"
)

// pageBreak separates pages in text dumps produced by pdftotext.
const pageBreak = "\f"

type classified struct {
	File     string           `json:"file"`
	Analysis *domain.Analysis `json:"analysis"`
}

func newClassifyCommand(opts *options) *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Run text files through the pipeline",
		Long: `Classify text files and extract their fields. Form feeds split a
file into pages, as written by pdftotext.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatXLSX {
				return fmt.Errorf("unknown format %q: want json or xlsx", format)
			}
			if format == formatXLSX && out == "" {
				return fmt.Errorf("--out is required for xlsx output")
			}

			engine := opts.engine(cmd)
			results := make([]classified, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				analysis, err := engine.Process(SplitPages(string(data)))
				if err != nil {
					return err
				}
				results = append(results, classified{File: filepath.Base(path), Analysis: analysis})
			}

			if format == formatXLSX {
				rows := make([]export.Row, len(results))
				for i, r := range results {
					rows[i] = export.Row{Name: r.File, Analysis: r.Analysis}
				}
				data, err := export.Workbook(rows)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				cmd.Printf("wrote %d documents to %s\n", len(rows), out)
				return nil
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format: json or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout for json)")
	return cmd
}

// SplitPages splits text on form feeds into pages numbered from 1. Blank
// pages keep their number so provenance matches the source.
func SplitPages(text string) []domain.Page {
	parts := strings.Split(text, pageBreak)
	pages := make([]domain.Page, 0, len(parts))
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, domain.Page{Page: i + 1, Text: p})
	}
	return pages
}
