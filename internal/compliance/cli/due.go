package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
)

func newDueCommand(opts *options) *cobra.Command {
	var docType, inspection string
	var extra []string

	cmd := &cobra.Command{
		Use:   "due",
		Short: "Compute the next due date for an inspection",
		Example: `  regexmap due --type EICR --inspection 2023-07-15
  regexmap due --type WaterRisk --inspection 2024-01-15 --field review="2 years"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fields := domain.NewNormalisedFields()
			fields.Set("inspection_date", inspection)
			for _, kv := range extra {
				name, value, ok := strings.Cut(kv, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid --field %q: want name=value", kv)
				}
				fields.Set(name, value)
			}

			due, err := opts.engine(cmd).ComputeDueDates(docType, fields)
			if err != nil {
				return err
			}
			if due.NextDueDate == "" {
				return fmt.Errorf("no due date rule for %s with the given fields", docType)
			}
			cmd.Println(due.NextDueDate)
			return nil
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", "", "Document type name")
	cmd.Flags().StringVarP(&inspection, "inspection", "i", "", "Inspection date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&extra, "field", nil, "Additional extracted field as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("inspection")
	return cmd
}
