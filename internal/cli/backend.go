package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/roach88/geoquery/internal/filegdb"
	"github.com/roach88/geoquery/internal/filegdb/sqlitegdb"
	"github.com/roach88/geoquery/internal/odata"
	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/querysql"
	"github.com/roach88/geoquery/internal/record"
	"github.com/roach88/geoquery/internal/schema"
	"github.com/roach88/geoquery/internal/store"
)

// Backends accepted by --backend.
const (
	BackendSQL     = "sql"
	BackendFileGDB = "filegdb"
)

// FilterOptions holds the flags that describe a query.
type FilterOptions struct {
	Table   string
	Filter  string
	OrderBy string
	Select  string
	Top     int
	Skip    int
}

func (o *FilterOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Table, "table", "t", "", "catalog path of the table (required)")
	fs.StringVar(&o.Filter, "filter", "", "OData $filter expression")
	fs.StringVar(&o.OrderBy, "orderby", "", "OData $orderby, e.g. \"NAME desc, AREA\"")
	fs.StringVar(&o.Select, "select", "", "comma separated fields to project")
	fs.IntVar(&o.Top, "top", -1, "maximum number of records (-1 for all)")
	fs.IntVar(&o.Skip, "skip", 0, "number of records to skip")
}

// values converts the flags to OData system query options.
func (o *FilterOptions) values() url.Values {
	v := url.Values{}
	set := func(name, value string) {
		if value != "" {
			v.Set(name, value)
		}
	}
	set(odata.OptionFilter, o.Filter)
	set(odata.OptionOrderBy, o.OrderBy)
	set(odata.OptionSelect, o.Select)
	if o.Top >= 0 {
		v.Set(odata.OptionTop, strconv.Itoa(o.Top))
	}
	if o.Skip != 0 {
		v.Set(odata.OptionSkip, strconv.Itoa(o.Skip))
	}
	return v
}

// query parses the flags into a query bound to def.
func (o *FilterOptions) query(def *record.Definition) (*query.Query, error) {
	return odata.ParseQuery(def.Path, o.values(), def)
}

// loadSchema reads the schema file and returns every definition along with
// the one for table.
func loadSchema(opts *RootOptions, table string) (*record.Definition, []*record.Definition, error) {
	if opts.Schema == "" {
		return nil, nil, NewExitError(ExitCommandError, "--schema is required")
	}
	defs, err := schema.Load(opts.Fs, opts.Schema)
	if err != nil {
		return nil, nil, err
	}
	if table == "" {
		return nil, defs, nil
	}
	for _, def := range defs {
		if def.Path == table {
			return def, defs, nil
		}
	}
	return nil, nil, WrapExitError(ExitCommandError, "unknown table",
		query.NewSchemaError("", fmt.Sprintf("table %s not found in %s", table, opts.Schema), nil))
}

// StoreOptions selects and locates a backend.
type StoreOptions struct {
	Database string
	Backend  string
	Dialect  string
}

func (o *StoreOptions) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.Database, "db", "", "database file, or DSN for postgres (required)")
	fs.StringVar(&o.Backend, "backend", BackendSQL, "record store backend (sql|filegdb)")
	fs.StringVar(&o.Dialect, "dialect", string(querysql.SQLite), "SQL dialect of the sql backend (sqlite|postgres)")
}

// openStore opens the selected backend over defs and creates missing tables.
func openStore(ctx context.Context, opts *RootOptions, so *StoreOptions, defs []*record.Definition) (store.RecordStore, error) {
	if so.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required")
	}
	switch so.Backend {
	case BackendSQL:
		d, err := querysql.ParseDialect(so.Dialect)
		if err != nil {
			return nil, NewExitError(ExitCommandError, "invalid --dialect: "+err.Error())
		}
		var s *store.SQLStore
		switch d {
		case querysql.SQLite:
			s, err = store.OpenSQLite(so.Database, defs...)
		case querysql.Postgres:
			s, err = store.OpenPostgres(so.Database, defs...)
		default:
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("the sql backend cannot connect to %s", d))
		}
		if err != nil {
			return nil, err
		}
		s.SetLogger(opts.Logger)
		if err := s.EnsureTables(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case BackendFileGDB:
		s, err := filegdb.NewStore(sqlitegdb.Engine{}, so.Database, defs, filegdb.WithLogger(opts.Logger))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureTables(); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid backend %q: must be %s or %s", so.Backend, BackendSQL, BackendFileGDB))
	}
}

// exitCodeFor classifies a failure: configuration and schema file problems
// are command errors, everything else is a query failure.
func exitCodeFor(err error) int {
	if code := GetExitCode(err); code != ExitFailure {
		return code
	}
	if ErrorCode(err) == ErrCodeSchemaLoad {
		return ExitCommandError
	}
	return ExitFailure
}
