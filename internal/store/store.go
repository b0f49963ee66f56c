package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// RecordStore reads and writes records of the tables it knows.
type RecordStore interface {
	// Definition returns the table definition for a catalog path.
	Definition(path string) (*record.Definition, bool)

	// Query runs q and streams the matching records. The caller must Close
	// the reader.
	Query(ctx context.Context, q *query.Query) (Reader, error)

	// Writer opens a writer for one table. The caller must Close it; Close
	// makes the writes durable.
	Writer(ctx context.Context, path string) (Writer, error)

	Close() error
}

// Reader streams query results.
//
//	for r.Next() {
//		rec := r.Record()
//	}
//	if err := r.Err(); err != nil { ... }
type Reader interface {
	Next() bool
	Record() *record.Record
	Err() error
	Close() error
}

// Writer applies record changes to one table.
//
// A failure confined to one record is returned as a *RowError; any other
// error means the writer is no longer usable.
type Writer interface {
	// Insert adds a New record, setting a generated identifier on it.
	Insert(ctx context.Context, r *record.Record) error
	Update(ctx context.Context, r *record.Record) error
	Delete(ctx context.Context, r *record.Record) error
	Close() error
}

// ErrRowNotFound is the cause of a RowError for an update or delete that
// matched no row.
var ErrRowNotFound = errors.New("row not found")

// RowError is a write failure confined to one record.
type RowError struct {
	Op   string
	Path string
	ID   any
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s %s(%v): %v", e.Op, e.Path, e.ID, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IsRowError reports whether err is confined to one record.
func IsRowError(err error) bool {
	var re *RowError
	return errors.As(err, &re)
}

// Catalog holds the definitions of a store's tables.
type Catalog struct {
	defs  map[string]*record.Definition
	paths []string
}

// NewCatalog creates a catalog. Paths must be unique.
func NewCatalog(defs ...*record.Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*record.Definition, len(defs))}
	for _, d := range defs {
		if _, dup := c.defs[d.Path]; dup {
			return nil, fmt.Errorf("duplicate table %s", d.Path)
		}
		c.defs[d.Path] = d
		c.paths = append(c.paths, d.Path)
	}
	return c, nil
}

// Definition looks a table up by catalog path.
func (c *Catalog) Definition(path string) (*record.Definition, bool) {
	d, ok := c.defs[path]
	return d, ok
}

// Definitions returns the definitions in registration order.
func (c *Catalog) Definitions() []*record.Definition {
	out := make([]*record.Definition, len(c.paths))
	for i, p := range c.paths {
		out[i] = c.defs[p]
	}
	return out
}

// Lookup resolves the definition a query targets.
func (c *Catalog) Lookup(q *query.Query) (*record.Definition, error) {
	if q == nil {
		return nil, fmt.Errorf("nil query")
	}
	def, ok := c.defs[q.TypePath]
	if !ok {
		return nil, query.NewSchemaError("", fmt.Sprintf("unknown table %s", q.TypePath), nil)
	}
	return def, nil
}

// LoadRecord builds a Persisted record from stored values. Names are
// matched to fields case-insensitively; unknown names are ignored.
func LoadRecord(def *record.Definition, values map[string]any) (*record.Record, error) {
	r := record.NewInitializing(def)
	for name, v := range values {
		f, ok := def.LookupField(name)
		if !ok {
			continue
		}
		if err := r.Set(f.Name, v); err != nil {
			return nil, fmt.Errorf("load %s: %w", def.Path, err)
		}
	}
	if err := r.Loaded(); err != nil {
		return nil, err
	}
	return r, nil
}

// Collect reads every record and closes the reader.
func Collect(r Reader) ([]*record.Record, error) {
	defer r.Close()
	var out []*record.Record
	for r.Next() {
		out = append(out, r.Record())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Refine filters, orders and pages the records of r in memory, for backends
// that cannot do so themselves. Ordering reads every record first; without
// it the result streams.
func Refine(r Reader, where query.Condition, orderBy []query.Order, offset, limit int) Reader {
	if len(orderBy) == 0 {
		return &refineReader{src: r, where: where, offset: offset, limit: limit}
	}
	all, err := Collect(&refineReader{src: r, where: where, limit: query.Unbounded})
	if err != nil {
		return &sliceReader{err: err}
	}
	SortRecords(all, orderBy)
	if offset >= len(all) {
		return &sliceReader{}
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return &sliceReader{records: all}
}

// SortRecords orders records by the given terms. Nil sorts first.
func SortRecords(rs []*record.Record, orderBy []query.Order) {
	sort.SliceStable(rs, func(i, j int) bool {
		for _, o := range orderBy {
			a, b := rs[i].Value(o.Field), rs[j].Value(o.Field)
			cmp := 0
			switch {
			case a == nil && b == nil:
			case a == nil:
				cmp = -1
			case b == nil:
				cmp = 1
			default:
				cmp, _ = query.Compare(a, b)
			}
			if cmp == 0 {
				continue
			}
			if o.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}

type refineReader struct {
	src     Reader
	where   query.Condition
	offset  int
	limit   int
	skipped int
	emitted int
	err     error
}

func (r *refineReader) Next() bool {
	if r.err != nil || r.emitted >= r.limit {
		return false
	}
	for r.src.Next() {
		if r.where != nil {
			ok, err := query.Test(r.where, r.src.Record())
			if err != nil {
				r.err = err
				return false
			}
			if !ok {
				continue
			}
		}
		if r.skipped < r.offset {
			r.skipped++
			continue
		}
		r.emitted++
		return true
	}
	return false
}

func (r *refineReader) Record() *record.Record { return r.src.Record() }

func (r *refineReader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.src.Err()
}

func (r *refineReader) Close() error { return r.src.Close() }

type sliceReader struct {
	records []*record.Record
	pos     int
	err     error
}

// NewSliceReader returns a Reader over records already in memory.
func NewSliceReader(records []*record.Record) Reader {
	return &sliceReader{records: records}
}

func (r *sliceReader) Next() bool {
	if r.err != nil || r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceReader) Record() *record.Record { return r.records[r.pos-1] }
func (r *sliceReader) Err() error             { return r.err }
func (r *sliceReader) Close() error           { return nil }
