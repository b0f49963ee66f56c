package filegdb

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// TableReference caches the native handle of one table.
//
// Readers acquire it with Connect and writers with WriteLock. The write lock
// is taken by the first writer and freed by the last; nested writers share
// it. The lock state never changes while a cursor is open: a writer arriving
// while cursors are open fails with ErrCursorOpen, and a lock whose last
// writer leaves while cursors are open is freed when the last cursor closes.
// A writer that asks for load-only mode gets it even when it joins a lock
// that is already held; the mode is only left when the lock is freed.
type TableReference struct {
	gdb  *GeodatabaseReference
	path string

	// Guarded by gdb.mu.
	native        Table
	epoch         uint64
	writers       int
	loadOnly      bool
	cursors       int
	pendingUnlock bool
	open          map[*TableCursor]struct{}
}

// Path returns the catalog path.
func (t *TableReference) Path() string { return t.path }

// Connect acquires the table for reading. The caller must Close the wrapper.
func (t *TableReference) Connect() (*TableWrapper, error) {
	return t.acquire(false, false)
}

// WriteLock acquires the table for writing. With loadOnly the table is also
// switched into bulk-load mode until the lock is freed.
func (t *TableReference) WriteLock(loadOnly bool) (*TableWrapper, error) {
	return t.acquire(true, loadOnly)
}

// State reports the table's lock state for diagnostics.
func (t *TableReference) State() (writers int, loadOnly bool, cursors int) {
	t.gdb.mu.Lock()
	defer t.gdb.mu.Unlock()
	return t.writers, t.loadOnly, t.cursors
}

func (t *TableReference) acquire(write, loadOnly bool) (*TableWrapper, error) {
	g := t.gdb
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.acquireLocked(); err != nil {
		return nil, err
	}
	if _, err := t.openLocked(); err != nil {
		g.releaseLocked()
		return nil, err
	}
	if write {
		if err := t.lockLocked(loadOnly); err != nil {
			g.releaseLocked()
			return nil, err
		}
	}
	return &TableWrapper{table: t, write: write, epoch: t.epoch}, nil
}

func (t *TableReference) openLocked() (Table, error) {
	if t.native != nil {
		return t.native, nil
	}
	if t.gdb.native == nil {
		return nil, ErrClosed
	}
	tbl, err := t.gdb.native.OpenTable(t.path)
	if err != nil {
		t.gdb.logger.Error("open table failed", "op", "open table", "path", t.path, "error", err)
		return nil, fmt.Errorf("open table %s: %w", t.path, err)
	}
	t.native = tbl
	return tbl, nil
}

func (t *TableReference) lockLocked(loadOnly bool) error {
	// a lock kept for open cursors is taken over as is
	fresh := t.writers == 0 && !t.pendingUnlock
	if fresh {
		if t.cursors > 0 {
			return ErrCursorOpen
		}
		if err := t.native.SetWriteLock(); err != nil {
			t.gdb.logger.Error("write lock failed", "op", "write lock", "path", t.path, "error", err)
			return fmt.Errorf("write lock %s: %w", t.path, err)
		}
	}
	if loadOnly && !t.loadOnly {
		if err := t.native.SetLoadOnlyMode(true); err != nil {
			t.gdb.logger.Error("load only mode failed", "op", "load only", "path", t.path, "error", err)
			if fresh {
				t.freeLockLocked()
			}
			return fmt.Errorf("load only mode %s: %w", t.path, err)
		}
		t.loadOnly = true
	}
	t.pendingUnlock = false
	t.writers++
	return nil
}

func (t *TableReference) unlockLocked() {
	t.writers--
	if t.writers > 0 {
		return
	}
	if t.cursors > 0 {
		t.pendingUnlock = true
		return
	}
	t.freeLockLocked()
}

// freeLockLocked leaves load-only mode and frees the write lock. Failures are
// logged and swallowed.
func (t *TableReference) freeLockLocked() {
	if t.loadOnly {
		if err := t.native.SetLoadOnlyMode(false); err != nil {
			t.gdb.logger.Error("leave load only mode failed", "op", "load only", "path", t.path, "error", err)
		}
		t.loadOnly = false
	}
	if err := t.native.FreeWriteLock(); err != nil {
		t.gdb.logger.Error("free write lock failed", "op", "free write lock", "path", t.path, "error", err)
	}
}

// closeLocked closes the open cursors and the native table, invalidating
// every wrapper and cursor acquired before it.
func (t *TableReference) closeLocked() {
	if t.native == nil {
		return
	}
	for c := range t.open {
		c.closed.Store(true)
		if err := c.native.Close(); err != nil {
			t.gdb.logger.Error("close cursor failed", "op", "close cursor", "path", t.path, "error", err)
		}
	}
	t.open = nil
	if t.writers > 0 || t.pendingUnlock {
		t.freeLockLocked()
	}
	if err := t.gdb.native.CloseTable(t.native); err != nil {
		t.gdb.logger.Error("close table failed", "op", "close table", "path", t.path, "error", err)
	}
	t.native = nil
	t.epoch++
	t.writers = 0
	t.cursors = 0
	t.loadOnly = false
	t.pendingUnlock = false
}

// TableWrapper is one acquisition of a table. Close releases it; only the
// first call has an effect.
type TableWrapper struct {
	table *TableReference
	write bool
	epoch uint64

	once   sync.Once
	closed bool
}

// Path returns the catalog path of the table.
func (w *TableWrapper) Path() string { return w.table.path }

// IsWriteLocked reports whether the wrapper holds the write lock.
func (w *TableWrapper) IsWriteLocked() bool { return w.write }

// nativeLocked returns the live native table, or an error when the wrapper
// was closed or invalidated by a forced close.
func (w *TableWrapper) nativeLocked() (Table, error) {
	if w.closed {
		return nil, ErrReleased
	}
	if w.epoch != w.table.epoch || w.table.native == nil {
		return nil, ErrClosed
	}
	return w.table.native, nil
}

// Search opens a cursor. The cursor must be closed before the table's lock
// state can change.
func (w *TableWrapper) Search(fields []string, where string) (*TableCursor, error) {
	t := w.table
	t.gdb.mu.Lock()
	defer t.gdb.mu.Unlock()

	native, err := w.nativeLocked()
	if err != nil {
		return nil, err
	}
	cur, err := native.Search(fields, where)
	if err != nil {
		t.gdb.logger.Error("search failed", "op", "search", "path", t.path, "where", where, "error", err)
		return nil, fmt.Errorf("search %s: %w", t.path, err)
	}
	c := &TableCursor{table: t, native: cur, epoch: w.epoch}
	if t.open == nil {
		t.open = make(map[*TableCursor]struct{})
	}
	t.open[c] = struct{}{}
	t.cursors++
	return c, nil
}

// Insert adds a row and returns its object id.
func (w *TableWrapper) Insert(values Row) (int64, error) {
	var id int64
	err := w.do("insert", func(tbl Table) error {
		var err error
		id, err = tbl.Insert(values)
		return err
	})
	return id, err
}

// Update replaces the fields of one row.
func (w *TableWrapper) Update(id any, values Row) error {
	return w.do("update", func(tbl Table) error { return tbl.Update(id, values) })
}

// Delete removes one row.
func (w *TableWrapper) Delete(id any) error {
	return w.do("delete", func(tbl Table) error { return tbl.Delete(id) })
}

// do runs a row operation under the lock. Rejected rows are left for the
// caller to report; every other failure is logged here.
func (w *TableWrapper) do(op string, fn func(Table) error) error {
	t := w.table
	t.gdb.mu.Lock()
	defer t.gdb.mu.Unlock()

	native, err := w.nativeLocked()
	if err != nil {
		return err
	}
	if err := fn(native); err != nil {
		if !IsRowRejected(err) {
			t.gdb.logger.Error(op+" failed", "op", op, "path", t.path, "error", err)
		}
		return fmt.Errorf("%s %s: %w", op, t.path, err)
	}
	return nil
}

// Close releases the acquisition, freeing the write lock and closing the
// geodatabase when this was the last user.
func (w *TableWrapper) Close() error {
	w.once.Do(func() {
		t := w.table
		t.gdb.mu.Lock()
		defer t.gdb.mu.Unlock()
		w.closed = true
		if w.write && w.epoch == t.epoch && t.native != nil {
			t.unlockLocked()
		}
		t.gdb.releaseLocked()
	})
	return nil
}

// TableCursor iterates search results.
//
// Next does not take the geodatabase lock. Close does, so that closing a
// cursor never races with the table being closed.
type TableCursor struct {
	table  *TableReference
	native Cursor
	epoch  uint64
	once   sync.Once
	closed atomic.Bool
}

// errCursorClosed is returned by Next after Close.
var errCursorClosed = errors.New("cursor closed")

// Next returns the next row, or io.EOF after the last one.
func (c *TableCursor) Next() (Row, error) {
	if c.closed.Load() {
		return nil, errCursorClosed
	}
	return c.native.Next()
}

// Close closes the cursor. A cursor whose table was closed underneath it was
// closed by the table and is not closed again.
func (c *TableCursor) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		t := c.table
		t.gdb.mu.Lock()
		defer t.gdb.mu.Unlock()
		if c.epoch != t.epoch {
			return
		}
		delete(t.open, c)
		if err := c.native.Close(); err != nil {
			t.gdb.logger.Error("close cursor failed", "op", "close cursor", "path", t.path, "error", err)
		}
		t.cursors--
		if t.cursors == 0 && t.pendingUnlock {
			t.pendingUnlock = false
			t.freeLockLocked()
		}
	})
	return nil
}
