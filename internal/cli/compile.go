package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/geoquery/internal/filegdb"
	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/querysql"
	"github.com/roach88/geoquery/internal/record"
)

// DialectFileGDB names the geodatabase filter grammar for --dialect.
const DialectFileGDB = "filegdb"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	FilterOptions
	Dialect string
}

// CompilationResult is the compiled form of a query.
type CompilationResult struct {
	Dialect    string `json:"dialect"`
	SQL        string `json:"sql,omitempty"`
	Where      string `json:"where,omitempty"`
	Parameters []any  `json:"parameters,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile an OData filter to a backend dialect",
		Long: `Compile an OData $filter, $orderby, $top and $skip against a schema
table and print the statement a record store would run.

SQL dialects print a parameterized SELECT and its parameters; the filegdb
dialect prints the literal-inlined where clause.

Example:
  geoquery compile --schema schema.yaml -t /Parcels --dialect oracle \
    --filter "AREA gt 100 and STATUS eq 'Active'" --orderby NAME --top 5 --skip 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, cmd)
		},
	}

	opts.FilterOptions.register(cmd.Flags())
	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", string(querysql.SQLite), "target dialect (sqlite|postgres|oracle|filegdb)")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if opts.Table == "" {
		return formatter.Fail(ExitCommandError, "invalid flags", NewExitError(ExitCommandError, "--table is required"))
	}
	def, _, err := loadSchema(opts.RootOptions, opts.Table)
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "loading schema", err)
	}
	q, err := opts.query(def)
	if err != nil {
		return formatter.Fail(ExitFailure, "parsing query", err)
	}
	formatter.VerboseLog("Query: %s", q)

	var result CompilationResult
	if opts.Dialect == DialectFileGDB {
		result, err = compileFileGDB(q)
	} else {
		result, err = compileSQL(opts.Dialect, q, def)
	}
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "compiling query", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	outputCompilation(formatter, result)
	return nil
}

func compileSQL(dialect string, q *query.Query, def *record.Definition) (CompilationResult, error) {
	d, err := querysql.ParseDialect(dialect)
	if err != nil {
		return CompilationResult{}, NewExitError(ExitCommandError, "invalid --dialect: "+err.Error())
	}
	sql, params, err := querysql.NewCompiler(d).Compile(q, def)
	if err != nil {
		return CompilationResult{}, err
	}
	return CompilationResult{Dialect: string(d), SQL: sql, Parameters: params}, nil
}

func compileFileGDB(q *query.Query) (CompilationResult, error) {
	result := CompilationResult{Dialect: DialectFileGDB}
	if q.Where == nil {
		return result, nil
	}
	where, err := filegdb.WhereClause(q.Where)
	if err != nil {
		return result, err
	}
	result.Where = where
	return result, nil
}

func outputCompilation(formatter *OutputFormatter, result CompilationResult) {
	w := formatter.Writer
	if result.Dialect == DialectFileGDB {
		if result.Where == "" {
			fmt.Fprintln(w, "(no filter)")
		} else {
			fmt.Fprintln(w, result.Where)
		}
		return
	}

	fmt.Fprintln(w, result.SQL)
	if len(result.Parameters) == 0 {
		return
	}
	fmt.Fprintln(w, "Parameters:")
	for i, p := range result.Parameters {
		fmt.Fprintf(w, "  %d: %s\n", i+1, query.FormatLiteral(p, nil))
	}
}
