// Package sqlitegdb is a file geodatabase engine stored in a single SQLite
// database.
//
// Datasets are registered in the GDB_ITEMS catalog table and each table or
// feature class is a SQLite table named after the last segment of its
// catalog path. Values are stored in the textual forms the filegdb filter
// grammar writes, so inlined literals compare correctly:
//
//	Date       2006-01-02
//	Time       15:04:05
//	Timestamp  2006-01-02 15:04:05
//	Geometry   WKT
//	Decimal    NUMERIC
//	Boolean    1 or 0
//
// A write lock runs the table's writes in a transaction shared by every
// write-locked table of the geodatabase; the writes become visible to
// searches when the last lock is freed.
package sqlitegdb

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/geoquery/internal/filegdb"
	"github.com/roach88/geoquery/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial catalog
const currentSchemaVersion = 1

// rootPath is the catalog path of the workspace.
const rootPath = "/"

var pragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// Engine opens SQLite geodatabases.
type Engine struct{}

var _ filegdb.Engine = Engine{}

// Open creates or opens the geodatabase file at path.
func (Engine) Open(path string) (filegdb.Geodatabase, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open geodatabase: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to geodatabase: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &geodatabase{db: db}, nil
}

// applySchema creates the catalog if it does not exist. This function is
// idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("geodatabase version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

type geodatabase struct {
	db *sql.DB

	// tx is shared by every write-locked table.
	tx    *sql.Tx
	locks int
}

// exec runs a write statement inside the write transaction when one is open.
func (g *geodatabase) exec(stmt string, args ...any) (sql.Result, error) {
	if g.tx != nil {
		return g.tx.Exec(stmt, args...)
	}
	return g.db.Exec(stmt, args...)
}

func (g *geodatabase) OpenTable(catalogPath string) (filegdb.Table, error) {
	var item catalogItem
	err := g.db.QueryRow(
		`SELECT path, type, id_field FROM GDB_ITEMS WHERE path = ? AND type IN (?, ?)`,
		catalogPath, filegdb.DatasetTable, filegdb.DatasetFeatureClass,
	).Scan(&item.path, &item.kind, &item.idField)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, filegdb.NewNativeError(filegdb.CodeTableNotFound, "table %s not found", catalogPath)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	rows, err := g.db.Query(`SELECT name, type FROM GDB_FIELDS WHERE table_path = ? ORDER BY ordinal`, catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read fields: %w", err)
	}
	defer rows.Close()
	t := &table{gdb: g, item: item, types: map[string]record.DataType{}}
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("read fields: %w", err)
		}
		dt, err := record.ParseDataType(typ)
		if err != nil {
			return nil, fmt.Errorf("field %s of %s: %w", name, catalogPath, err)
		}
		t.fields = append(t.fields, name)
		t.types[strings.ToUpper(name)] = dt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read fields: %w", err)
	}
	return t, nil
}

func (g *geodatabase) CloseTable(t filegdb.Table) error {
	tbl, ok := t.(*table)
	if !ok {
		return fmt.Errorf("close table: foreign handle %T", t)
	}
	if tbl.locked {
		return tbl.FreeWriteLock()
	}
	return nil
}

func (g *geodatabase) CreateTable(def *record.Definition) error {
	if exists, err := g.itemExists(def.Path); err != nil || exists {
		return err
	}
	if g.tx != nil {
		return filegdb.NewNativeError(filegdb.CodeWriteLocked, "cannot create %s while tables are write locked", def.Path)
	}

	tx, err := g.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	parent := parentPath(def.Path)
	if err := ensureDatasets(tx, parent); err != nil {
		return err
	}
	kind := filegdb.DatasetTable
	if def.GeometryField != "" {
		kind = filegdb.DatasetFeatureClass
	}
	_, err = tx.Exec(
		`INSERT INTO GDB_ITEMS (path, parent, type, id_field, geometry_field, srid) VALUES (?, ?, ?, ?, ?, ?)`,
		def.Path, parent, kind, def.IDField, def.GeometryField, def.SRID,
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", def.Path, err)
	}

	cols := make([]string, 0, len(def.Fields()))
	for i, f := range def.Fields() {
		_, err := tx.Exec(
			`INSERT INTO GDB_FIELDS (table_path, ordinal, name, type, required) VALUES (?, ?, ?, ?, ?)`,
			def.Path, i, f.Name, string(f.Type), f.Required,
		)
		if err != nil {
			return fmt.Errorf("register field %s.%s: %w", def.Path, f.Name, err)
		}
		cols = append(cols, quote(f.Name)+" "+columnType(f, f.Name == def.IDField))
	}
	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName(def.Path), strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", def.Path, err)
	}
	return tx.Commit()
}

func (g *geodatabase) ChildDatasets(parent, datasetType string) ([]string, error) {
	exists, err := g.itemExists(parent)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, filegdb.NewNativeError(filegdb.CodeItemNotFound, "item %s not found", parent)
	}
	rows, err := g.db.Query(`SELECT path FROM GDB_ITEMS WHERE parent = ? AND type = ? ORDER BY path`, parent, datasetType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close abandons any open write transaction and closes the database.
func (g *geodatabase) Close() error {
	var errs []error
	if g.tx != nil {
		errs = append(errs, g.tx.Rollback())
		g.tx = nil
		g.locks = 0
	}
	errs = append(errs, g.db.Close())
	return errors.Join(errs...)
}

func (g *geodatabase) itemExists(p string) (bool, error) {
	var n int
	if err := g.db.QueryRow(`SELECT COUNT(*) FROM GDB_ITEMS WHERE path = ?`, p).Scan(&n); err != nil {
		return false, fmt.Errorf("read catalog: %w", err)
	}
	return n > 0, nil
}

func (g *geodatabase) lock() error {
	if g.locks == 0 {
		tx, err := g.db.Begin()
		if err != nil {
			return err
		}
		g.tx = tx
	}
	g.locks++
	return nil
}

func (g *geodatabase) unlock() error {
	if g.locks == 0 {
		return nil
	}
	g.locks--
	if g.locks > 0 {
		return nil
	}
	tx := g.tx
	g.tx = nil
	return tx.Commit()
}

// ensureDatasets registers the feature datasets on the way to p.
func ensureDatasets(tx *sql.Tx, p string) error {
	if p == rootPath {
		return nil
	}
	parent := parentPath(p)
	if err := ensureDatasets(tx, parent); err != nil {
		return err
	}
	_, err := tx.Exec(`INSERT OR IGNORE INTO GDB_ITEMS (path, parent, type) VALUES (?, ?, ?)`,
		p, parent, filegdb.DatasetFeatureDataset)
	return err
}

func parentPath(p string) string {
	return path.Dir(path.Clean("/" + p))
}

// tableName is the SQLite table holding a dataset's rows.
func tableName(catalogPath string) string {
	return quote(path.Base(catalogPath))
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(f *record.FieldDefinition, id bool) string {
	var typ string
	switch {
	case id && f.Type == record.Integer:
		return "INTEGER PRIMARY KEY"
	case id:
		return "TEXT PRIMARY KEY"
	case f.Type == record.Integer, f.Type == record.Boolean:
		typ = "INTEGER"
	case f.Type == record.Double:
		typ = "REAL"
	case f.Type == record.Decimal:
		typ = "NUMERIC"
	default:
		typ = "TEXT"
	}
	if f.Required {
		typ += " NOT NULL"
	}
	return typ
}

// nativeError classifies a SQLite failure the way the engine reports it.
func nativeError(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return filegdb.NewNativeError(filegdb.CodeRowRejected, "%v", err)
	}
	return err
}

type catalogItem struct {
	path    string
	kind    string
	idField string
}
