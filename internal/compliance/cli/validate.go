package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader := opts.loader(cmd)
			cfg, err := loader.Load("")
			if err != nil {
				return err
			}
			cmd.Printf("%s: %s OK (%d types)\n", loader.ResolveVersion(""), opts.dir, len(cfg.Types))
			return nil
		},
	}
}

func newTypesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List configured document types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loader(cmd).Load("")
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tASSESSMENT\tFIELDS\tDUE")
			for _, dt := range cfg.Types {
				due := "-"
				if c := dt.Compute; c != nil {
					switch {
					case c.NextDueYears > 0:
						due = fmt.Sprintf("%dy", c.NextDueYears)
					case c.NextDueMonths > 0:
						due = fmt.Sprintf("%dm", c.NextDueMonths)
					case c.NextDueRule != nil:
						due = "rule"
					}
				}
				assessment := dt.Map.AssessmentType
				if assessment == "" {
					assessment = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", dt.Name, assessment, len(dt.Fields), due)
			}
			return w.Flush()
		},
	}
}
