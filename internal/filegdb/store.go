package filegdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
	"github.com/roach88/geoquery/internal/store"
)

// Store is a record store over one geodatabase.
//
// Filters are compiled with WhereClause. Spatial predicates are checked in
// memory after the native search, so offset and limit are applied after
// filtering. Ordering is done in memory.
//
// Only the spatial conjuncts of a filter are checked again; the native
// search has already applied the rest. A spatial predicate under OR or NOT
// cannot be split off, so its whole branch is checked in memory.
type Store struct {
	gdb     *GeodatabaseReference
	catalog *store.Catalog
	logger  *slog.Logger
}

var _ store.RecordStore = (*Store)(nil)

// NewStore creates a store for the tables in defs. The geodatabase is opened
// lazily and only while a reader or writer is active.
func NewStore(engine Engine, path string, defs []*record.Definition, opts ...Option) (*Store, error) {
	catalog, err := store.NewCatalog(defs...)
	if err != nil {
		return nil, err
	}
	gdb := NewGeodatabaseReference(engine, path, opts...)
	return &Store{gdb: gdb, catalog: catalog, logger: gdb.logger}, nil
}

// Reference returns the underlying geodatabase reference.
func (s *Store) Reference() *GeodatabaseReference { return s.gdb }

// Definition implements store.RecordStore.
func (s *Store) Definition(path string) (*record.Definition, bool) {
	return s.catalog.Definition(path)
}

// EnsureTables creates every catalog table missing from the geodatabase.
func (s *Store) EnsureTables() error {
	for _, def := range s.catalog.Definitions() {
		if err := s.gdb.CreateTable(def); err != nil {
			return err
		}
	}
	return nil
}

// Datasets lists the datasets of a type under parent.
func (s *Store) Datasets(parent, datasetType string) ([]string, error) {
	return s.gdb.ChildDatasets(parent, datasetType)
}

// Query implements store.RecordStore.
func (s *Store) Query(ctx context.Context, q *query.Query) (store.Reader, error) {
	if q != nil && q.SQL != "" {
		return nil, query.NewUnsupportedOperatorError("filegdb", "SQL statement")
	}
	def, err := s.catalog.Lookup(q)
	if err != nil {
		return nil, err
	}
	bound, err := q.Bind(def)
	if err != nil {
		return nil, err
	}
	where, err := WhereClause(bound.Where)
	if err != nil {
		return nil, err
	}

	post := spatialFilter(bound.Where)
	fields := bound.SelectFields(def)
	if post != nil || len(bound.OrderBy) > 0 {
		// refinement reads fields outside the projection
		fields = def.FieldNames()
	}

	w, err := s.gdb.Table(def.Path).Connect()
	if err != nil {
		return nil, err
	}
	cur, err := w.Search(fields, where)
	if err != nil {
		w.Close()
		return nil, err
	}
	s.logger.Debug("search", "path", def.Path, "where", where)

	r := &rowReader{ctx: ctx, def: def, wrapper: w, cursor: cur}
	if post == nil && len(bound.OrderBy) == 0 && !bound.IsPaged() {
		return r, nil
	}
	return store.Refine(r, post, bound.OrderBy, bound.Offset, bound.Limit), nil
}

// spatialFilter returns the part of c the native search could not apply:
// the spatial conjuncts of an AND, or the whole of any OR or NOT branch that
// holds a spatial predicate. It returns nil when c has no spatial predicate.
func spatialFilter(c query.Condition) query.Condition {
	if c == nil || !query.HasSpatial(c) {
		return nil
	}
	switch v := c.(type) {
	case query.Group:
		if inner, ok := v.Node.(query.Condition); ok {
			return spatialFilter(inner)
		}
	case query.Logical:
		if v.Op != query.OpAnd {
			return c
		}
		var kept []query.Condition
		for _, sub := range v.Conditions {
			if f := spatialFilter(sub); f != nil {
				kept = append(kept, f)
			}
		}
		if len(kept) == 1 {
			return kept[0]
		}
		return query.And(kept...)
	}
	return c
}

// Writer implements store.RecordStore. The table is write-locked in
// load-only mode until the writer is closed.
func (s *Store) Writer(ctx context.Context, path string) (store.Writer, error) {
	def, ok := s.catalog.Definition(path)
	if !ok {
		return nil, query.NewSchemaError("", fmt.Sprintf("unknown table %s", path), nil)
	}
	w, err := s.gdb.Table(path).WriteLock(true)
	if err != nil {
		return nil, err
	}
	return &tableWriter{def: def, wrapper: w}, nil
}

// Close closes the geodatabase, invalidating open readers and writers.
func (s *Store) Close() error {
	return s.gdb.Close()
}

type rowReader struct {
	ctx     context.Context
	def     *record.Definition
	wrapper *TableWrapper
	cursor  *TableCursor
	current *record.Record
	err     error
	done    bool
}

func (r *rowReader) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.err = err
		return false
	}
	row, err := r.cursor.Next()
	if errors.Is(err, io.EOF) {
		r.done = true
		return false
	}
	if err != nil {
		r.err = fmt.Errorf("read %s: %w", r.def.Path, err)
		return false
	}
	rec, err := store.LoadRecord(r.def, row)
	if err != nil {
		r.err = err
		return false
	}
	r.current = rec
	return true
}

func (r *rowReader) Record() *record.Record { return r.current }
func (r *rowReader) Err() error             { return r.err }

func (r *rowReader) Close() error {
	r.cursor.Close()
	return r.wrapper.Close()
}

type tableWriter struct {
	def     *record.Definition
	wrapper *TableWrapper
}

func (w *tableWriter) Insert(ctx context.Context, r *record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := w.wrapper.Insert(w.row(r, r.ID() != nil))
	if err != nil {
		return w.rowError("insert", r, err)
	}
	if r.ID() == nil && w.def.IDField != "" {
		return r.Set(w.def.IDField, id)
	}
	return nil
}

func (w *tableWriter) Update(ctx context.Context, r *record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.wrapper.Update(r.ID(), w.row(r, false)); err != nil {
		return w.rowError("update", r, err)
	}
	return nil
}

func (w *tableWriter) Delete(ctx context.Context, r *record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.wrapper.Delete(r.ID()); err != nil {
		return w.rowError("delete", r, err)
	}
	return nil
}

func (w *tableWriter) Close() error { return w.wrapper.Close() }

// row copies the record's values, leaving out the identifier unless withID.
func (w *tableWriter) row(r *record.Record, withID bool) Row {
	row := make(Row, len(w.def.Fields()))
	for _, f := range w.def.Fields() {
		if f.Name == w.def.IDField && !withID {
			continue
		}
		row[f.Name] = r.Value(f.Name)
	}
	return row
}

// rowError turns rejected and missing rows into a store.RowError; every
// other failure is returned as is.
func (w *tableWriter) rowError(op string, r *record.Record, err error) error {
	switch {
	case IsRowRejected(err):
		return &store.RowError{Op: op, Path: w.def.Path, ID: r.ID(), Err: err}
	case NativeCode(err) == CodeItemNotFound:
		return &store.RowError{Op: op, Path: w.def.Path, ID: r.ID(), Err: fmt.Errorf("%w: %w", store.ErrRowNotFound, err)}
	default:
		return err
	}
}
