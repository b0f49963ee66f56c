package sqlitegdb

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/shopspring/decimal"

	"github.com/roach88/geoquery/internal/filegdb"
	"github.com/roach88/geoquery/internal/record"
)

type table struct {
	gdb    *geodatabase
	item   catalogItem
	fields []string
	types  map[string]record.DataType

	locked   bool
	loadOnly bool
	inserts  map[string]*sql.Stmt
}

func (t *table) name() string { return tableName(t.item.path) }

func (t *table) idColumn() string {
	if t.item.idField == "" {
		return "rowid"
	}
	return quote(t.item.idField)
}

// fieldType resolves a field name case-insensitively.
func (t *table) fieldType(name string) (record.DataType, error) {
	typ, ok := t.types[strings.ToUpper(name)]
	if !ok {
		return "", fmt.Errorf("field %s not found in %s", name, t.item.path)
	}
	return typ, nil
}

func (t *table) Search(fields []string, where string) (filegdb.Cursor, error) {
	if len(fields) == 0 {
		fields = t.fields
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		if _, err := t.fieldType(f); err != nil {
			return nil, err
		}
		cols[i] = quote(f)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), t.name())
	if where != "" {
		stmt += " WHERE " + rewriteLiterals(where)
	}
	stmt += " ORDER BY " + t.idColumn()

	rows, err := t.gdb.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("invalid where clause %q: %w", where, err)
	}
	return &cursor{rows: rows, fields: fields}, nil
}

func (t *table) Insert(values filegdb.Row) (int64, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		typ, err := t.fieldType(name)
		if err != nil {
			return 0, err
		}
		cols[i] = quote(name)
		args[i] = storedValue(typ, values[name])
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name(), strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	var res sql.Result
	var err error
	if t.loadOnly {
		res, err = t.bulkInsert(stmt, args)
	} else {
		res, err = t.gdb.exec(stmt, args...)
	}
	if err != nil {
		return 0, nativeError(err)
	}
	if t.item.idField != "" && t.types[strings.ToUpper(t.item.idField)] != record.Integer {
		return 0, nil
	}
	return res.LastInsertId()
}

// bulkInsert reuses one prepared statement per column set while the table
// is in load-only mode.
func (t *table) bulkInsert(stmt string, args []any) (sql.Result, error) {
	ps, ok := t.inserts[stmt]
	if !ok {
		var err error
		ps, err = t.gdb.tx.Prepare(stmt)
		if err != nil {
			return nil, err
		}
		t.inserts[stmt] = ps
	}
	return ps.Exec(args...)
}

func (t *table) Update(id any, values filegdb.Row) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		typ, err := t.fieldType(name)
		if err != nil {
			return err
		}
		sets[i] = quote(name) + " = ?"
		args = append(args, storedValue(typ, values[name]))
	}
	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", t.name(), strings.Join(sets, ", "), t.idColumn())
	return t.one(stmt, args, id)
}

func (t *table) Delete(id any) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name(), t.idColumn())
	return t.one(stmt, []any{id}, id)
}

// one runs a statement that must affect exactly one row.
func (t *table) one(stmt string, args []any, id any) error {
	res, err := t.gdb.exec(stmt, args...)
	if err != nil {
		return nativeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return filegdb.NewNativeError(filegdb.CodeItemNotFound, "row %v not found in %s", id, t.item.path)
	}
	return nil
}

func (t *table) SetWriteLock() error {
	if t.locked {
		return filegdb.NewNativeError(filegdb.CodeWriteLocked, "%s is already write locked", t.item.path)
	}
	if err := t.gdb.lock(); err != nil {
		return err
	}
	t.locked = true
	return nil
}

func (t *table) FreeWriteLock() error {
	if !t.locked {
		return nil
	}
	err := t.closeInserts()
	t.locked = false
	t.loadOnly = false
	return errors.Join(err, t.gdb.unlock())
}

func (t *table) SetLoadOnlyMode(on bool) error {
	if !on {
		t.loadOnly = false
		return t.closeInserts()
	}
	if !t.locked {
		return filegdb.NewNativeError(filegdb.CodeWriteLocked, "load-only mode on %s requires a write lock", t.item.path)
	}
	t.loadOnly = true
	t.inserts = map[string]*sql.Stmt{}
	return nil
}

func (t *table) closeInserts() error {
	var errs []error
	for _, ps := range t.inserts {
		errs = append(errs, ps.Close())
	}
	t.inserts = nil
	return errors.Join(errs...)
}

type cursor struct {
	rows   *sql.Rows
	fields []string
}

func (c *cursor) Next() (filegdb.Row, error) {
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	dest := make([]any, len(c.fields))
	ptrs := make([]any, len(c.fields))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(filegdb.Row, len(c.fields))
	for i, f := range c.fields {
		if b, ok := dest[i].([]byte); ok {
			dest[i] = string(b)
		}
		row[f] = dest[i]
	}
	return row, nil
}

func (c *cursor) Close() error { return c.rows.Close() }

// storedValue converts a value to the form stored for a field type.
func storedValue(typ record.DataType, v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		switch typ {
		case record.Date:
			return val.Format(record.DateLayout)
		case record.Time:
			return val.Format(record.TimeLayout)
		default:
			return val.Format(filegdb.TimestampLayout)
		}
	case orb.Geometry:
		return wkt.MarshalString(val)
	case decimal.Decimal:
		return val.String()
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return v
	}
}

var typedLiterals = []string{"TIMESTAMP", "DATE", "TIME"}

// rewriteLiterals drops the DATE, TIME and TIMESTAMP keywords in front of
// quoted literals; values are stored as text in the same layouts.
func rewriteLiterals(where string) string {
	var sb strings.Builder
	inString := false
	for i := 0; i < len(where); i++ {
		ch := where[i]
		if ch == '\'' {
			inString = !inString
			sb.WriteByte(ch)
			continue
		}
		if !inString && (i == 0 || !isWordByte(where[i-1])) {
			if n := typedLiteralAt(where[i:]); n > 0 {
				i += n - 1
				continue
			}
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// typedLiteralAt returns the length of a typed literal keyword and the
// blanks after it when s starts with one followed by a quote.
func typedLiteralAt(s string) int {
	upper := strings.ToUpper(s[:min(len(s), len("TIMESTAMP"))])
	for _, kw := range typedLiterals {
		if !strings.HasPrefix(upper, kw) {
			continue
		}
		rest := strings.TrimLeft(s[len(kw):], " ")
		if strings.HasPrefix(rest, "'") {
			return len(s) - len(rest)
		}
	}
	return 0
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}
