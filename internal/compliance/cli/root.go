// Package cli implements the regexmap command: offline validation of rule
// sets and classification of text files against them.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/blociq/blociq-backend/internal/compliance/processor"
	"github.com/blociq/blociq-backend/internal/compliance/regexmap"
	"github.com/blociq/blociq-backend/pkg/logger"
)

type options struct {
	dir      string
	version  string
	logLevel string
}

// NewRootCommand builds the regexmap command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "regexmap",
		Short:         "Validate compliance rule sets and classify documents offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.dir, "dir", "d", "config/compliance", "Directory holding regex-map.<version>.yaml files")
	root.PersistentFlags().StringVarP(&opts.version, "version", "v", "", "Rule-set version (default: $COMPLIANCE_REGEX_VERSION or v1)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level for diagnostics written to stderr")

	root.AddCommand(
		newValidateCommand(opts),
		newTypesCommand(opts),
		newClassifyCommand(opts),
		newDueCommand(opts),
	)
	return root
}

func (o *options) logger(cmd *cobra.Command) *logger.Logger {
	return logger.NewWithWriter(cmd.ErrOrStderr(), "regexmap").WithLevel(o.logLevel)
}

func (o *options) loader(cmd *cobra.Command) *regexmap.Loader {
	return regexmap.NewDirLoader(o.dir,
		regexmap.WithVersion(o.version),
		regexmap.WithLogger(o.logger(cmd)),
	)
}

func (o *options) engine(cmd *cobra.Command) *processor.Engine {
	return processor.NewEngine(o.loader(cmd), o.logger(cmd))
}
