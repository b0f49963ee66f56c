package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/geoquery/internal/record"
	"github.com/roach88/geoquery/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	FilterOptions
	StoreOptions
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run an OData query against a record store",
		Long: `Run an OData query against a SQLite or PostgreSQL database or a file
geodatabase and print the matching records.

Tables declared in the schema are created when missing. Code table fields
print their display values.

Example:
  geoquery query --schema schema.yaml --db parcels.db -t /Parcels \
    --filter "STATUS eq 'Active'" --orderby "AREA desc" --top 10
  geoquery query --schema schema.yaml --backend filegdb --db parcels.gdb -t /Parcels`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	opts.FilterOptions.register(cmd.Flags())
	opts.StoreOptions.register(cmd.Flags())

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Table == "" {
		return formatter.Fail(ExitCommandError, "invalid flags", NewExitError(ExitCommandError, "--table is required"))
	}
	def, defs, err := loadSchema(opts.RootOptions, opts.Table)
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "loading schema", err)
	}
	q, err := opts.query(def)
	if err != nil {
		return formatter.Fail(ExitFailure, "parsing query", err)
	}

	ctx := cmd.Context()
	st, err := openStore(ctx, opts.RootOptions, &opts.StoreOptions, defs)
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "opening store", err)
	}
	defer st.Close()

	formatter.VerboseLog("Query: %s", q)
	reader, err := st.Query(ctx, q)
	if err != nil {
		return formatter.Fail(ExitFailure, "running query", err)
	}
	records, err := store.Collect(reader)
	if err != nil {
		return formatter.Fail(ExitFailure, "reading records", err)
	}
	formatter.VerboseLog("%d record(s)", len(records))

	fields := q.SelectFields(def)
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = recordRow(def, r, fields)
	}
	return formatter.Table(fields, rows)
}

// recordRow renders the named fields of r as text.
func recordRow(def *record.Definition, r *record.Record, fields []string) []string {
	row := make([]string, len(fields))
	for i, name := range fields {
		f, ok := def.Field(name)
		if !ok {
			continue
		}
		v := r.Value(name)
		if f.CodeTable != nil && v != nil {
			if display, ok := f.CodeTable.Value(v); ok {
				row[i] = fmt.Sprint(display)
				continue
			}
		}
		row[i] = f.ToString(v)
	}
	return row
}
