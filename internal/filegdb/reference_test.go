package filegdb

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReference(t *testing.T) (*GeodatabaseReference, *fakeEngine) {
	t.Helper()
	e := newFakeEngine()
	return NewGeodatabaseReference(e, "test.gdb", WithLogger(slog.New(slog.DiscardHandler))), e
}

func TestConnect_NestedAcquisitionsShareOneHandle(t *testing.T) {
	g, e := newTestReference(t)

	var conns []*Connection
	for range 5 {
		c, err := g.Connect()
		require.NoError(t, err)
		conns = append(conns, c)
	}
	opens, closes := e.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 0, closes)
	assert.Equal(t, 5, g.Connections())

	for _, c := range conns {
		c.Release()
	}
	opens, closes = e.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes, "the last release closes the handle exactly once")
	assert.False(t, g.IsOpen())
}

func TestConnect_ReopensAfterLastRelease(t *testing.T) {
	g, e := newTestReference(t)

	c, err := g.Connect()
	require.NoError(t, err)
	c.Release()
	c.Release()
	assert.Equal(t, 0, g.Connections(), "a second release has no effect")

	c, err = g.Connect()
	require.NoError(t, err)
	defer c.Release()
	opens, _ := e.counts()
	assert.Equal(t, 2, opens)
}

func TestConnect_OpenFailure(t *testing.T) {
	g, e := newTestReference(t)
	e.openErr = errDiskFull

	_, err := g.Connect()
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 0, g.Connections())
}

func TestWithConnection_ReleasesOnPanic(t *testing.T) {
	g, e := newTestReference(t)

	assert.Panics(t, func() {
		_ = g.WithConnection(func(*Connection) error { panic("boom") })
	})
	assert.Equal(t, 0, g.Connections())
	_, closes := e.counts()
	assert.Equal(t, 1, closes)
}

func TestWithConnection_ReturnsError(t *testing.T) {
	g, _ := newTestReference(t)

	err := g.WithConnection(func(*Connection) error { return errDiskFull })
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 0, g.Connections())
}

func TestClose_WithActiveConnections(t *testing.T) {
	var logs bytes.Buffer
	e := newFakeEngine()
	g := NewGeodatabaseReference(e, "test.gdb", WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	c, err := g.Connect()
	require.NoError(t, err)

	require.NoError(t, g.Close())
	assert.Contains(t, logs.String(), "closing geodatabase with active connections")
	assert.False(t, g.IsOpen())

	_, err = g.Connect()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Do(func(Geodatabase) error { return nil }), ErrClosed)

	c.Release()
	require.NoError(t, g.Close(), "Close is idempotent")
	_, closes := e.counts()
	assert.Equal(t, 1, closes)
}

func TestConnection_DoAfterRelease(t *testing.T) {
	g, _ := newTestReference(t)

	c, err := g.Connect()
	require.NoError(t, err)
	c.Release()
	assert.ErrorIs(t, c.Do(func(Geodatabase) error { return nil }), ErrReleased)
}

func TestConnect_Concurrent(t *testing.T) {
	g, e := newTestReference(t)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.WithConnection(func(c *Connection) error {
				return c.Do(func(Geodatabase) error { return nil })
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	opens, closes := e.counts()
	assert.Equal(t, opens, closes, "every open is matched by a close")
	assert.Equal(t, 0, g.Connections())
	assert.False(t, g.IsOpen())
}

func TestChildDatasets(t *testing.T) {
	g, e := newTestReference(t)

	paths, err := g.ChildDatasets("/", DatasetTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"/Parcels"}, paths)

	paths, err = g.ChildDatasets("/Missing", DatasetTable)
	require.NoError(t, err, "a missing parent is not an error")
	assert.Empty(t, paths)

	c, err := g.Connect()
	require.NoError(t, err)
	defer c.Release()
	e.gdb.childErr = NewNativeError(-1, "corrupt catalog")
	_, err = g.ChildDatasets("/", DatasetTable)
	assert.Equal(t, -1, NativeCode(err))
}

func TestTable_ReadReleasesConnection(t *testing.T) {
	g, e := newTestReference(t)
	tbl := g.Table("/Parcels")
	assert.Same(t, tbl, g.Table("/Parcels"), "table references are cached")

	w, err := tbl.Connect()
	require.NoError(t, err)
	assert.False(t, w.IsWriteLocked())
	assert.Equal(t, 1, g.Connections())

	cur, err := w.Search(nil, "")
	require.NoError(t, err)
	row, err := cur.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["OBJECTID"])
	require.NoError(t, cur.Close())

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 0, g.Connections())
	_, closes := e.counts()
	assert.Equal(t, 1, closes)
}

func TestTable_OpenFailure(t *testing.T) {
	g, _ := newTestReference(t)

	_, err := g.Table("/Missing").Connect()
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 0, g.Connections(), "a failed open releases its acquisition")
}

func TestWriteLock_Nesting(t *testing.T) {
	g, e := newTestReference(t)
	tbl := g.Table("/Parcels")

	w1, err := tbl.WriteLock(true)
	require.NoError(t, err)
	w2, err := tbl.WriteLock(true)
	require.NoError(t, err)
	native := e.gdb.tables["/Parcels"]

	assert.Equal(t, 1, native.locks, "nested writers share one lock")
	assert.Equal(t, 1, native.loadOn)
	writers, loadOnly, _ := tbl.State()
	assert.Equal(t, 2, writers)
	assert.True(t, loadOnly)

	require.NoError(t, w1.Close())
	assert.Equal(t, 0, native.frees)

	require.NoError(t, w2.Close())
	assert.Equal(t, 1, native.frees)
	assert.Equal(t, 1, native.loadOff)
}

func TestWriteLock_RefusedWhileCursorOpen(t *testing.T) {
	g, e := newTestReference(t)
	tbl := g.Table("/Parcels")

	r, err := tbl.Connect()
	require.NoError(t, err)
	defer r.Close()
	cur, err := r.Search(nil, "")
	require.NoError(t, err)

	_, err = tbl.WriteLock(false)
	assert.ErrorIs(t, err, ErrCursorOpen)
	assert.Equal(t, 0, e.gdb.tables["/Parcels"].locks)
	assert.Equal(t, 1, g.Connections(), "a refused lock releases its acquisition")

	require.NoError(t, cur.Close())
	w, err := tbl.WriteLock(false)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestWriteLock_FreedWhenLastCursorCloses(t *testing.T) {
	g, e := newTestReference(t)
	hold, err := g.Connect()
	require.NoError(t, err)
	defer hold.Release()
	tbl := g.Table("/Parcels")

	w, err := tbl.WriteLock(false)
	require.NoError(t, err)
	cur, err := w.Search(nil, "")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	native := e.gdb.tables["/Parcels"]
	assert.Equal(t, 0, native.frees, "the lock outlives its writer while a cursor is open")

	w2, err := tbl.WriteLock(false)
	require.NoError(t, err, "a new writer takes over the pending lock")
	require.NoError(t, w2.Close())
	assert.Equal(t, 0, native.frees)
	assert.Equal(t, 1, native.locks)

	require.NoError(t, cur.Close())
	assert.Equal(t, 1, native.frees)
	_, _, cursors := tbl.State()
	assert.Equal(t, 0, cursors)
}

func TestTableWrapper_InvalidatedByClose(t *testing.T) {
	g, e := newTestReference(t)
	tbl := g.Table("/Parcels")

	w, err := tbl.Connect()
	require.NoError(t, err)
	cur, err := w.Search(nil, "")
	require.NoError(t, err)

	require.NoError(t, g.Close())
	assert.Equal(t, 1, e.gdb.tableCloses)

	native := e.gdb.tables["/Parcels"]
	assert.Equal(t, 0, native.openCursor, "closing the table closes its open cursors")

	_, err = w.Search(nil, "")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = cur.Next()
	assert.Error(t, err)
	require.NoError(t, cur.Close())
	assert.Equal(t, 0, native.openCursor, "a cursor of a closed table is not closed again")
	require.NoError(t, w.Close())
}

func TestWriteLock_TakeoverHonorsLoadOnly(t *testing.T) {
	tests := []struct {
		name     string
		loadOnly bool
		loadOn   int
	}{
		{"read mode", false, 0},
		{"load only", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, e := newTestReference(t)
			hold, err := g.Connect()
			require.NoError(t, err)
			defer hold.Release()
			tbl := g.Table("/Parcels")

			w, err := tbl.WriteLock(false)
			require.NoError(t, err)
			cur, err := w.Search(nil, "")
			require.NoError(t, err)
			require.NoError(t, w.Close())

			w2, err := tbl.WriteLock(tt.loadOnly)
			require.NoError(t, err)
			native := e.gdb.tables["/Parcels"]
			assert.Equal(t, 1, native.locks, "the pending lock is reused")
			assert.Equal(t, tt.loadOn, native.loadOn)
			_, loadOnly, _ := tbl.State()
			assert.Equal(t, tt.loadOnly, loadOnly)

			require.NoError(t, w2.Close())
			assert.Equal(t, 0, native.loadOff, "load-only mode is kept while a cursor is open")

			require.NoError(t, cur.Close())
			assert.Equal(t, 1, native.frees)
			assert.Equal(t, tt.loadOn, native.loadOff)
		})
	}
}

func TestWriteLock_JoinHonorsLoadOnly(t *testing.T) {
	g, e := newTestReference(t)
	tbl := g.Table("/Parcels")

	w1, err := tbl.WriteLock(false)
	require.NoError(t, err)
	w2, err := tbl.WriteLock(true)
	require.NoError(t, err)

	native := e.gdb.tables["/Parcels"]
	assert.Equal(t, 1, native.locks)
	assert.Equal(t, 1, native.loadOn)

	require.NoError(t, w2.Close())
	assert.Equal(t, 0, native.loadOff, "load-only mode is kept while the lock is shared")
	require.NoError(t, w1.Close())
	assert.Equal(t, 1, native.loadOff)
	assert.Equal(t, 1, native.frees)
}

func TestTableWrapper_UseAfterClose(t *testing.T) {
	g, _ := newTestReference(t)
	hold, err := g.Connect()
	require.NoError(t, err)
	defer hold.Release()

	w, err := g.Table("/Parcels").WriteLock(false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Insert(Row{})
	assert.ErrorIs(t, err, ErrReleased)
}

func TestTableWrapper_RowFailures(t *testing.T) {
	var logs bytes.Buffer
	e := newFakeEngine()
	g := NewGeodatabaseReference(e, "test.gdb", WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	w, err := g.Table("/Parcels").WriteLock(true)
	require.NoError(t, err)
	defer w.Close()
	native := e.gdb.tables["/Parcels"]

	id, err := w.Insert(Row{"NAME": "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	native.insertErr = NewNativeError(CodeRowRejected, "null value")
	_, err = w.Insert(Row{})
	assert.True(t, IsRowRejected(err))
	assert.NotContains(t, logs.String(), "insert failed", "rejected rows are left to the caller")

	native.insertErr = errDiskFull
	_, err = w.Insert(Row{})
	assert.True(t, errors.Is(err, errDiskFull))
	assert.Contains(t, logs.String(), "insert failed")
}
