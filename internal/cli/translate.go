package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/geoquery/internal/odata"
	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Table  string
	Filter string
}

// TranslationResult is a translated filter.
type TranslationResult struct {
	Filter     string `json:"filter"`
	Expression string `json:"expression"`
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate an OData filter to a condition",
		Long: `Translate an OData $filter expression into a query condition and print
it with literals inlined.

With --schema and --table, member names resolve against the table and
literals are converted to the field types; without them any member name
is accepted as a column.

Example:
  geoquery translate --filter "Age gt 18 and Name eq 'Bob'"
  geoquery translate --schema schema.yaml -t /People --filter "age ge 21"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "catalog path of the table to resolve members against")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "OData $filter expression (required)")

	return cmd
}

func runTranslate(opts *TranslateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Filter == "" {
		return formatter.Fail(ExitCommandError, "invalid flags", NewExitError(ExitCommandError, "--filter is required"))
	}

	var def *record.Definition
	if opts.Table != "" {
		var err error
		if def, _, err = loadSchema(opts.RootOptions, opts.Table); err != nil {
			return formatter.Fail(exitCodeFor(err), "loading schema", err)
		}
	}

	expr, err := odata.ParseFilter(opts.Filter)
	if err != nil {
		return formatter.Fail(ExitFailure, "parsing filter", err)
	}
	cond, err := odata.TranslateCondition(expr, def)
	if err != nil {
		return formatter.Fail(ExitFailure, "translating filter", err)
	}
	if def != nil {
		if cond, err = query.BindCondition(cond, def); err != nil {
			return formatter.Fail(ExitFailure, "binding filter", err)
		}
	}

	result := TranslationResult{Filter: opts.Filter, Expression: query.Format(cond)}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(result.Expression)
}
