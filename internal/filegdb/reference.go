package filegdb

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/geoquery/internal/record"
)

var (
	// ErrClosed is returned by every acquisition after Close.
	ErrClosed = errors.New("geodatabase is closed")

	// ErrCursorOpen is returned when a table's lock state would change while
	// cursors are open on it.
	ErrCursorOpen = errors.New("table has open cursors")

	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("handle already released")
)

// closedCount is the terminal value of the reference count.
const closedCount = -1

// GeodatabaseReference shares one native geodatabase handle between
// concurrent users.
//
// The native handle is opened by the first acquisition and closed when the
// last acquisition is released. Close forces it shut and makes every later
// acquisition fail with ErrClosed.
//
// Every native call that opens, closes or locks a table runs under the
// reference's mutex.
type GeodatabaseReference struct {
	engine Engine
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	native Geodatabase
	count  int
	tables map[string]*TableReference
}

// Option configures a GeodatabaseReference.
type Option func(*GeodatabaseReference)

// WithLogger sets the logger used for native failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *GeodatabaseReference) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGeodatabaseReference creates a reference to the geodatabase at path.
// Nothing is opened until the first acquisition.
func NewGeodatabaseReference(engine Engine, path string, opts ...Option) *GeodatabaseReference {
	g := &GeodatabaseReference{
		engine: engine,
		path:   path,
		logger: slog.Default(),
		tables: make(map[string]*TableReference),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Path returns the geodatabase location.
func (g *GeodatabaseReference) Path() string { return g.path }

// Connect acquires the geodatabase, opening the native handle if this is
// the first active acquisition. The caller must Release the connection.
func (g *GeodatabaseReference) Connect() (*Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.acquireLocked(); err != nil {
		return nil, err
	}
	return &Connection{ref: g}, nil
}

// WithConnection runs fn inside a connection scope. The connection is
// released when fn returns or panics.
func (g *GeodatabaseReference) WithConnection(fn func(*Connection) error) error {
	c, err := g.Connect()
	if err != nil {
		return err
	}
	defer c.Release()
	return fn(c)
}

// Close closes the native handle regardless of outstanding acquisitions.
// Later acquisitions fail with ErrClosed. Close is idempotent.
func (g *GeodatabaseReference) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.count == closedCount {
		return nil
	}
	if g.count > 0 {
		g.logger.Warn("closing geodatabase with active connections", "path", g.path, "connections", g.count)
	}
	g.closeNativeLocked()
	g.count = closedCount
	return nil
}

// Connections returns the number of active acquisitions.
func (g *GeodatabaseReference) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return max(g.count, 0)
}

// IsOpen reports whether the native handle is open.
func (g *GeodatabaseReference) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.native != nil
}

// Table returns the reference for a catalog path, creating it on first use.
func (g *GeodatabaseReference) Table(path string) *TableReference {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tables[path]
	if !ok {
		t = &TableReference{gdb: g, path: path}
		g.tables[path] = t
	}
	return t
}

// ChildDatasets lists the datasets of a type under parent. A parent that
// does not exist yields an empty list.
func (g *GeodatabaseReference) ChildDatasets(parent, datasetType string) ([]string, error) {
	var out []string
	err := g.WithConnection(func(c *Connection) error {
		return c.Do(func(gdb Geodatabase) error {
			paths, err := gdb.ChildDatasets(parent, datasetType)
			if err != nil {
				if IsNotFound(err) {
					return nil
				}
				g.logger.Error("list child datasets failed", "op", "child datasets", "path", parent, "error", err)
				return fmt.Errorf("child datasets of %s: %w", parent, err)
			}
			out = paths
			return nil
		})
	})
	return out, err
}

// CreateTable creates the table described by def if it does not exist.
func (g *GeodatabaseReference) CreateTable(def *record.Definition) error {
	return g.WithConnection(func(c *Connection) error {
		return c.Do(func(gdb Geodatabase) error {
			if err := gdb.CreateTable(def); err != nil {
				g.logger.Error("create table failed", "op", "create table", "path", def.Path, "error", err)
				return fmt.Errorf("create table %s: %w", def.Path, err)
			}
			return nil
		})
	})
}

func (g *GeodatabaseReference) acquireLocked() error {
	if g.count == closedCount {
		return ErrClosed
	}
	if g.count == 0 {
		native, err := g.engine.Open(g.path)
		if err != nil {
			g.logger.Error("open geodatabase failed", "op", "open", "path", g.path, "error", err)
			return fmt.Errorf("open geodatabase %s: %w", g.path, err)
		}
		g.native = native
		g.logger.Debug("opened geodatabase", "path", g.path)
	}
	g.count++
	return nil
}

func (g *GeodatabaseReference) releaseLocked() {
	if g.count <= 0 {
		return
	}
	g.count--
	if g.count == 0 {
		g.closeNativeLocked()
	}
}

// closeNativeLocked closes cached tables, then the geodatabase. Failures are
// logged and do not stop the remaining handles from being closed.
func (g *GeodatabaseReference) closeNativeLocked() {
	if g.native == nil {
		return
	}
	paths := make([]string, 0, len(g.tables))
	for p := range g.tables {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		g.tables[p].closeLocked()
	}
	if err := g.native.Close(); err != nil {
		g.logger.Error("close geodatabase failed", "op", "close", "path", g.path, "error", err)
	}
	g.native = nil
	g.logger.Debug("closed geodatabase", "path", g.path)
}

// Connection is one acquisition of a GeodatabaseReference.
type Connection struct {
	ref      *GeodatabaseReference
	once     sync.Once
	released atomic.Bool
}

// Release ends the acquisition. Only the first call has an effect.
func (c *Connection) Release() {
	c.once.Do(func() {
		c.released.Store(true)
		c.ref.mu.Lock()
		defer c.ref.mu.Unlock()
		c.ref.releaseLocked()
	})
}

// Do runs fn with the native geodatabase while holding the reference's lock.
func (c *Connection) Do(fn func(Geodatabase) error) error {
	if c.released.Load() {
		return ErrReleased
	}
	c.ref.mu.Lock()
	defer c.ref.mu.Unlock()
	if c.ref.native == nil {
		return ErrClosed
	}
	return fn(c.ref.native)
}
