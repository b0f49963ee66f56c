package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/geoquery/internal/record"
	"github.com/roach88/geoquery/internal/store"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	StoreOptions
	Table string
}

// LoadResult summarizes a load.
type LoadResult struct {
	Table    string `json:"table"`
	Inserted int    `json:"inserted"`
	Failed   int    `json:"failed"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <records-file>",
		Short: "Insert records from a YAML or JSON file",
		Long: `Insert records into a table of a record store.

The records file is a YAML or JSON list of objects keyed by field name.
Code table fields accept either the stored identifier or the display
value. Records the store rejects are reported and skipped; the rest are
committed together.

Example:
  geoquery load --schema schema.yaml --db parcels.db -t /Parcels parcels.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "catalog path of the table (required)")
	opts.StoreOptions.register(cmd.Flags())

	return cmd
}

func runLoad(opts *LoadOptions, file string, cmd *cobra.Command) error {
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
	records, err := readRecords(opts.Fs, file, def)
	if err != nil {
		return formatter.Fail(ExitCommandError, "reading records", err)
	}
	formatter.VerboseLog("Read %d record(s) from %s", len(records), file)

	ctx := cmd.Context()
	st, err := openStore(ctx, opts.RootOptions, &opts.StoreOptions, defs)
	if err != nil {
		return formatter.Fail(exitCodeFor(err), "opening store", err)
	}
	defer st.Close()

	w, err := st.Writer(ctx, def.Path)
	if err != nil {
		return formatter.Fail(ExitFailure, "opening writer", err)
	}
	res, err := store.NewBatchWriter(w, opts.Logger).Write(ctx, records)
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return formatter.Fail(ExitFailure, "writing records", err)
	}

	result := LoadResult{Table: def.Path, Inserted: res.Inserted, Failed: res.Failed}
	if formatter.Format == "json" {
		err = formatter.Success(result)
	} else {
		err = formatter.Success(fmt.Sprintf("Inserted %d record(s) into %s, %d failed", result.Inserted, result.Table, result.Failed))
	}
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", result.Failed))
	}
	return nil
}

// readRecords decodes a list of field maps into New records of def.
func readRecords(fs afero.Fs, file string, def *record.Definition) ([]*record.Record, error) {
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}

	records := make([]*record.Record, 0, len(rows))
	var errs []error
	for i, row := range rows {
		r := record.NewRecord(def)
		for name, v := range row {
			f, ok := def.LookupField(name)
			if !ok {
				errs = append(errs, fmt.Errorf("record %d: unknown field %s", i+1, name))
				continue
			}
			if ct := f.CodeTable; ct != nil && v != nil {
				if id, ok := ct.Identifier(v); ok {
					v = id
				}
			}
			if err := r.Set(f.Name, v); err != nil {
				errs = append(errs, fmt.Errorf("record %d: %w", i+1, err))
			}
		}
		records = append(records, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return records, nil
}
