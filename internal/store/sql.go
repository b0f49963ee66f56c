package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/shopspring/decimal"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/querysql"
	"github.com/roach88/geoquery/internal/record"
)

// SQLStore is a record store on a relational database.
//
// Queries are compiled by querysql for the store's dialect. On SQLite every
// temporal value is stored as text in record.TimestampLayout, so that stored
// values and bound parameters compare alike, and geometries are stored as WKT.
type SQLStore struct {
	db       *sql.DB
	compiler *querysql.Compiler
	catalog  *Catalog
	logger   *slog.Logger
}

var _ RecordStore = (*SQLStore)(nil)

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// OpenSQLite creates or opens a SQLite database at path.
//
// Every connection runs with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - foreign key enforcement
func OpenSQLite(path string, defs ...*record.Definition) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?"+sqlitePragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLStore(db, querysql.SQLite, defs)
}

// OpenPostgres connects to a PostgreSQL database with PostGIS.
func OpenPostgres(dsn string, defs ...*record.Definition) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLStore(db, querysql.Postgres, defs)
}

func newSQLStore(db *sql.DB, dialect querysql.Dialect, defs []*record.Definition) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	catalog, err := NewCatalog(defs...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{
		db:       db,
		compiler: querysql.NewCompiler(dialect),
		catalog:  catalog,
		logger:   slog.Default(),
	}, nil
}

// SetLogger replaces the store's logger.
func (s *SQLStore) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Dialect returns the SQL dialect of the store.
func (s *SQLStore) Dialect() querysql.Dialect { return s.compiler.Dialect }

// DB returns the underlying sql.DB for direct queries.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Definition implements RecordStore.
func (s *SQLStore) Definition(path string) (*record.Definition, bool) {
	return s.catalog.Definition(path)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureTables creates the table of every catalog definition if it does not
// exist. This function is idempotent.
func (s *SQLStore) EnsureTables(ctx context.Context) error {
	for _, def := range s.catalog.Definitions() {
		if _, err := s.db.ExecContext(ctx, s.createTable(def)); err != nil {
			return fmt.Errorf("create table %s: %w", def.Path, err)
		}
	}
	return nil
}

func (s *SQLStore) createTable(def *record.Definition) string {
	cols := make([]string, 0, len(def.Fields()))
	for _, f := range def.Fields() {
		col := s.compiler.ColumnName(f.Name) + " " + s.columnType(f, f.Name == def.IDField)
		if f.Required && f.Name != def.IDField {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.compiler.TableName(def.Path), strings.Join(cols, ", "))
}

func (s *SQLStore) columnType(f *record.FieldDefinition, id bool) string {
	pg := s.compiler.Dialect == querysql.Postgres
	if id {
		switch {
		case f.Type != record.Integer:
			return "TEXT PRIMARY KEY"
		case pg:
			return "BIGSERIAL PRIMARY KEY"
		default:
			return "INTEGER PRIMARY KEY"
		}
	}
	switch f.Type {
	case record.Integer:
		if pg {
			return "BIGINT"
		}
		return "INTEGER"
	case record.Double:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case record.Decimal:
		return "NUMERIC"
	case record.Boolean:
		if pg {
			return "BOOLEAN"
		}
		return "INTEGER"
	case record.Date:
		if pg {
			return "DATE"
		}
		return "TEXT"
	case record.Time:
		if pg {
			return "TIME"
		}
		return "TEXT"
	case record.Timestamp:
		if pg {
			return "TIMESTAMP"
		}
		return "TEXT"
	case record.Geometry:
		if pg {
			return "GEOMETRY"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}

// Query implements RecordStore.
func (s *SQLStore) Query(ctx context.Context, q *query.Query) (Reader, error) {
	def, err := s.catalog.Lookup(q)
	if err != nil {
		return nil, err
	}
	text, params, err := s.compiler.Compile(q, def)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = s.value(p, def.SRID)
	}
	s.logger.Debug("query", "path", def.Path, "sql", text)

	rows, err := s.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Path, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("query %s: %w", def.Path, err)
	}
	return &rowsReader{def: def, rows: rows, cols: cols}, nil
}

// Writer implements RecordStore. Writes run in one transaction, committed
// by Close.
func (s *SQLStore) Writer(ctx context.Context, path string) (Writer, error) {
	def, ok := s.catalog.Definition(path)
	if !ok {
		return nil, query.NewSchemaError("", fmt.Sprintf("unknown table %s", path), nil)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqlWriter{s: s, def: def, tx: tx}, nil
}

// value converts a record value to its stored form.
func (s *SQLStore) value(v any, srid int) any {
	switch val := v.(type) {
	case time.Time:
		if s.compiler.Dialect == querysql.SQLite {
			return val.Format(record.TimestampLayout)
		}
		return val
	case decimal.Decimal:
		return val.String()
	case orb.Geometry:
		text := wkt.MarshalString(val)
		if s.compiler.Dialect == querysql.Postgres && srid > 0 {
			return fmt.Sprintf("SRID=%d;%s", srid, text)
		}
		return text
	default:
		return v
	}
}

type rowsReader struct {
	def     *record.Definition
	rows    *sql.Rows
	cols    []string
	current *record.Record
	err     error
}

func (r *rowsReader) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	dest := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = fmt.Errorf("scan %s: %w", r.def.Path, err)
		return false
	}
	values := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		if b, ok := dest[i].([]byte); ok {
			dest[i] = string(b)
		}
		values[c] = dest[i]
	}
	rec, err := LoadRecord(r.def, values)
	if err != nil {
		r.err = err
		return false
	}
	r.current = rec
	return true
}

func (r *rowsReader) Record() *record.Record { return r.current }

func (r *rowsReader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *rowsReader) Close() error { return r.rows.Close() }

type sqlWriter struct {
	s   *SQLStore
	def *record.Definition
	tx  *sql.Tx
}

func (w *sqlWriter) Insert(ctx context.Context, r *record.Record) error {
	var cols, marks []string
	var args []any
	assignID := r.ID() == nil && w.def.IDField != ""
	for _, f := range w.def.Fields() {
		if f.Name == w.def.IDField && assignID {
			continue
		}
		cols = append(cols, w.s.compiler.ColumnName(f.Name))
		marks = append(marks, "?")
		args = append(args, w.s.value(r.Value(f.Name), w.def.SRID))
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.s.compiler.TableName(w.def.Path), strings.Join(cols, ", "), strings.Join(marks, ", "))

	var id int64
	err := w.row(ctx, func() error {
		if w.s.Dialect() == querysql.Postgres {
			if !assignID {
				_, err := w.tx.ExecContext(ctx, querysql.Rebind(stmt), args...)
				return err
			}
			stmt += " RETURNING " + w.s.compiler.ColumnName(w.def.IDField)
			return w.tx.QueryRowContext(ctx, querysql.Rebind(stmt), args...).Scan(&id)
		}
		res, err := w.tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return w.rowError("insert", r, err)
	}
	if assignID {
		return r.Set(w.def.IDField, id)
	}
	return nil
}

func (w *sqlWriter) Update(ctx context.Context, r *record.Record) error {
	var sets []string
	var args []any
	for _, f := range w.def.Fields() {
		if f.Name == w.def.IDField {
			continue
		}
		sets = append(sets, w.s.compiler.ColumnName(f.Name)+" = ?")
		args = append(args, w.s.value(r.Value(f.Name), w.def.SRID))
	}
	args = append(args, r.ID())
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		w.s.compiler.TableName(w.def.Path), strings.Join(sets, ", "), w.s.compiler.ColumnName(w.def.IDField))
	return w.exec(ctx, "update", r, stmt, args)
}

func (w *sqlWriter) Delete(ctx context.Context, r *record.Record) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		w.s.compiler.TableName(w.def.Path), w.s.compiler.ColumnName(w.def.IDField))
	return w.exec(ctx, "delete", r, stmt, []any{r.ID()})
}

// exec runs an update or delete that must match exactly one row.
func (w *sqlWriter) exec(ctx context.Context, op string, r *record.Record, stmt string, args []any) error {
	if w.s.Dialect() == querysql.Postgres {
		stmt = querysql.Rebind(stmt)
	}
	var n int64
	err := w.row(ctx, func() error {
		res, err := w.tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err == nil && n == 0 {
		err = ErrRowNotFound
	}
	if err != nil {
		return w.rowError(op, r, err)
	}
	return nil
}

// row runs one row statement. On PostgreSQL a failed statement aborts the
// transaction, so each row runs under its own savepoint.
func (w *sqlWriter) row(ctx context.Context, fn func() error) error {
	if w.s.Dialect() != querysql.Postgres {
		return fn()
	}
	if _, err := w.tx.ExecContext(ctx, "SAVEPOINT geoquery_row"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := w.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT geoquery_row"); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := w.tx.ExecContext(ctx, "RELEASE SAVEPOINT geoquery_row")
	return err
}

// rowError classifies a statement failure. Constraint violations and
// missing rows are confined to the record; anything else is returned as is.
func (w *sqlWriter) rowError(op string, r *record.Record, err error) error {
	if errors.Is(err, ErrRowNotFound) || isConstraint(err) {
		return &RowError{Op: op, Path: w.def.Path, ID: r.ID(), Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, w.def.Path, err)
}

func (w *sqlWriter) Close() error {
	if err := w.tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("commit %s: %w", w.def.Path, err)
	}
	return nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Class() == "23"
	}
	return false
}
