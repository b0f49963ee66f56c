package filegdb

import (
	"errors"
	"io"
	"sync"

	"github.com/roach88/geoquery/internal/record"
)

// fakeEngine is an in-memory native library that counts handle lifecycles.
type fakeEngine struct {
	mu       sync.Mutex
	opens    int
	closes   int
	openErr  error
	children map[string][]string
	gdb      *fakeGeodatabase
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{children: map[string][]string{"/": {"/Parcels"}}}
}

func (e *fakeEngine) Open(string) (Geodatabase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opens++
	e.gdb = &fakeGeodatabase{engine: e, tables: map[string]*fakeTable{}}
	return e.gdb, nil
}

func (e *fakeEngine) counts() (opens, closes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens, e.closes
}

type fakeGeodatabase struct {
	engine      *fakeEngine
	tables      map[string]*fakeTable
	tableCloses int
	childErr    error
}

func (g *fakeGeodatabase) OpenTable(path string) (Table, error) {
	if path == "/Missing" {
		return nil, NewNativeError(CodeTableNotFound, "no table %s", path)
	}
	t, ok := g.tables[path]
	if !ok {
		t = &fakeTable{rows: []Row{{"OBJECTID": int64(1)}, {"OBJECTID": int64(2)}}}
		g.tables[path] = t
	}
	return t, nil
}

func (g *fakeGeodatabase) CloseTable(Table) error {
	g.tableCloses++
	return nil
}

func (g *fakeGeodatabase) CreateTable(*record.Definition) error { return nil }

func (g *fakeGeodatabase) ChildDatasets(parent, _ string) ([]string, error) {
	if g.childErr != nil {
		return nil, g.childErr
	}
	paths, ok := g.engine.children[parent]
	if !ok {
		return nil, NewNativeError(CodeItemNotFound, "no item %s", parent)
	}
	return paths, nil
}

func (g *fakeGeodatabase) Close() error {
	g.engine.mu.Lock()
	defer g.engine.mu.Unlock()
	g.engine.closes++
	return nil
}

type fakeTable struct {
	rows       []Row
	locks      int
	frees      int
	loadOn     int
	loadOff    int
	insertErr  error
	openCursor int
}

func (t *fakeTable) Search([]string, string) (Cursor, error) {
	t.openCursor++
	return &fakeCursor{table: t, rows: t.rows}, nil
}

func (t *fakeTable) Insert(Row) (int64, error) {
	if t.insertErr != nil {
		return 0, t.insertErr
	}
	t.rows = append(t.rows, Row{"OBJECTID": int64(len(t.rows) + 1)})
	return int64(len(t.rows)), nil
}

func (t *fakeTable) Update(any, Row) error { return nil }
func (t *fakeTable) Delete(any) error      { return nil }

func (t *fakeTable) SetWriteLock() error {
	t.locks++
	return nil
}

func (t *fakeTable) FreeWriteLock() error {
	t.frees++
	return nil
}

func (t *fakeTable) SetLoadOnlyMode(on bool) error {
	if on {
		t.loadOn++
	} else {
		t.loadOff++
	}
	return nil
}

type fakeCursor struct {
	table *fakeTable
	rows  []Row
	pos   int
}

func (c *fakeCursor) Next() (Row, error) {
	if c.pos >= len(c.rows) {
		return nil, io.EOF
	}
	c.pos++
	return c.rows[c.pos-1], nil
}

func (c *fakeCursor) Close() error {
	c.table.openCursor--
	return nil
}

var errDiskFull = errors.New("disk full")
