package filegdb

import (
	"errors"
	"fmt"

	"github.com/roach88/geoquery/internal/record"
)

// Engine opens geodatabases. It is the entry point of the native library.
type Engine interface {
	Open(path string) (Geodatabase, error)
}

// Geodatabase is an open native geodatabase handle.
//
// Implementations need not be safe for concurrent use; GeodatabaseReference
// serializes every call.
type Geodatabase interface {
	// OpenTable opens the table at a catalog path.
	OpenTable(path string) (Table, error)

	// CloseTable releases a table handle.
	CloseTable(t Table) error

	// CreateTable creates a table for def if it does not exist.
	CreateTable(def *record.Definition) error

	// ChildDatasets lists the catalog paths of the datasets of the given type
	// under parent. A missing parent fails with CodeItemNotFound.
	ChildDatasets(parent, datasetType string) ([]string, error)

	Close() error
}

// Row is one native row keyed by field name.
type Row map[string]any

// Table is an open native table handle.
type Table interface {
	// Search opens a cursor over the rows matching where, a filter in the
	// engine's literal-inlined grammar. An empty where selects every row.
	Search(fields []string, where string) (Cursor, error)

	// Insert adds a row and returns its object id.
	Insert(values Row) (int64, error)

	// Update replaces the fields of the row whose identifier is id.
	Update(id any, values Row) error

	// Delete removes the row whose identifier is id.
	Delete(id any) error

	SetWriteLock() error
	FreeWriteLock() error

	// SetLoadOnlyMode toggles bulk loading, which suspends per-row index
	// maintenance. Only valid under a write lock.
	SetLoadOnlyMode(on bool) error
}

// Cursor iterates search results. Next returns io.EOF after the last row.
type Cursor interface {
	Next() (Row, error)
	Close() error
}

// Native error codes. The values are the engine's HRESULTs.
const (
	CodeItemNotFound  = -2147211775
	CodeTableNotFound = -2147220655
	CodeRowRejected   = -2147219118
	CodeWriteLocked   = -2147220947
)

// Dataset types accepted by ChildDatasets.
const (
	DatasetTable          = "Table"
	DatasetFeatureClass   = "Feature Class"
	DatasetFeatureDataset = "Feature Dataset"
)

// NativeError is an error reported by the native library.
type NativeError struct {
	Code    int
	Message string
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("geodatabase error %d: %s", e.Code, e.Message)
}

// NewNativeError creates a NativeError.
func NewNativeError(code int, format string, args ...any) *NativeError {
	return &NativeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NativeCode returns the native error code of err, or 0.
func NativeCode(err error) int {
	var ne *NativeError
	if errors.As(err, &ne) {
		return ne.Code
	}
	return 0
}

// IsNotFound reports whether err means the requested item does not exist.
func IsNotFound(err error) bool {
	code := NativeCode(err)
	return code == CodeItemNotFound || code == CodeTableNotFound
}

// IsRowRejected reports whether err is a failure confined to one row.
func IsRowRejected(err error) bool {
	return NativeCode(err) == CodeRowRejected
}
