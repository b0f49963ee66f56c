package querysql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// Dialect names a relational SQL flavor.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	Oracle   Dialect = "oracle"
)

// ParseDialect validates a dialect name.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case SQLite, Postgres, Oracle:
		return d, nil
	default:
		return "", fmt.Errorf("unknown SQL dialect %q", name)
	}
}

// Compiler compiles queries to parameterized SQL for one dialect.
//
// All literals are bound as parameters; only paging bounds are written
// inline. Every query is ordered, with the table's identifier field as the
// final tiebreaker, so paged results are deterministic.
type Compiler struct {
	Dialect Dialect
}

// NewCompiler creates a compiler for d.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// Compile binds q to def and converts it to SQL.
// Returns (sql, params, error) tuple.
//
// A query carrying its own SQL text is passed through with its parameters.
func (c *Compiler) Compile(q *query.Query, def *record.Definition) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if q.SQL != "" {
		return c.rebind(q.SQL), append([]any(nil), q.Parameters...), nil
	}
	if def == nil {
		return "", nil, fmt.Errorf("compile %s: no table definition", q.TypePath)
	}

	bound, err := q.Bind(def)
	if err != nil {
		return "", nil, err
	}

	fields := bound.SelectFields(def)
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(c.selectList(fields, def))
	sb.WriteString(" FROM ")
	sb.WriteString(c.TableName(def.Path))

	var params []any
	if bound.Where != nil {
		where, whereParams, err := c.CompileWhere(bound.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = whereParams
	}

	if order := c.orderBy(bound.OrderBy, def); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}

	sql := sb.String()
	if bound.IsPaged() {
		sql = c.page(sql, fields, bound.Offset, bound.Limit)
	}
	return c.rebind(sql), params, nil
}

// CompileWhere compiles a bound condition to a WHERE fragment and its
// parameters. Placeholders are `?` for every dialect; Compile rebinds them.
func (c *Compiler) CompileWhere(cond query.Condition) (string, []any, error) {
	if cond == nil {
		return "1 = 1", nil, nil
	}
	ext := extension{dialect: c.Dialect}
	w := query.NewSQLWriter(ext)
	if err := w.Append(cond); err != nil {
		return "", nil, err
	}
	_, params := query.BindParameters(ext, cond, 1, nil)
	return w.String(), params, nil
}

// TableName renders a catalog path as a table name. Path segments become
// schema qualifiers.
func (c *Compiler) TableName(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		if c.Dialect == Postgres {
			segments[i] = pq.QuoteIdentifier(s)
		} else {
			segments[i] = query.QuoteName(s)
		}
	}
	return strings.Join(segments, ".")
}

// ColumnName renders a field name.
func (c *Compiler) ColumnName(name string) string {
	return query.QuoteName(name)
}

func (c *Compiler) selectList(fields []string, def *record.Definition) string {
	parts := make([]string, len(fields))
	for i, name := range fields {
		col := c.ColumnName(name)
		if f, ok := def.Field(name); ok && f.Type == record.Geometry && c.Dialect == Postgres {
			parts[i] = fmt.Sprintf("ST_AsText(%s) AS %s", col, col)
			continue
		}
		parts[i] = col
	}
	return strings.Join(parts, ", ")
}

// orderBy renders the ORDER BY terms, appending the identifier field as a
// tiebreaker when it is not already ordered.
func (c *Compiler) orderBy(orders []query.Order, def *record.Definition) string {
	var parts []string
	hasID := false
	for _, o := range orders {
		term := c.ColumnName(o.Field)
		if !o.Ascending {
			term += " DESC"
		}
		parts = append(parts, term)
		hasID = hasID || o.Field == def.IDField
	}
	if def.IDField != "" && !hasID {
		parts = append(parts, c.ColumnName(def.IDField))
	}
	return strings.Join(parts, ", ")
}

func (c *Compiler) page(sql string, fields []string, offset, limit int) string {
	if c.Dialect != Oracle {
		switch {
		case limit != query.Unbounded && offset > 0:
			return fmt.Sprintf("%s LIMIT %d OFFSET %d", sql, limit, offset)
		case limit != query.Unbounded:
			return fmt.Sprintf("%s LIMIT %d", sql, limit)
		case c.Dialect == SQLite:
			return fmt.Sprintf("%s LIMIT -1 OFFSET %d", sql, offset)
		default:
			return fmt.Sprintf("%s OFFSET %d", sql, offset)
		}
	}

	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = c.ColumnName(f)
	}
	bound := `"ROWCOUNT" > ` + strconv.Itoa(offset)
	if limit != query.Unbounded && limit <= math.MaxInt-offset {
		bound = fmt.Sprintf(`"ROWCOUNT" BETWEEN %d AND %d`, offset+1, offset+limit)
	}
	return fmt.Sprintf(`SELECT %s FROM (SELECT "ROWCOUNT_BASE".*, ROWNUM "ROWCOUNT" FROM (%s) "ROWCOUNT_BASE") WHERE %s`,
		strings.Join(cols, ", "), sql, bound)
}

func (c *Compiler) rebind(sql string) string {
	if c.Dialect != Postgres {
		return sql
	}
	return Rebind(sql)
}

// Rebind replaces each `?` outside quoted strings and identifiers with a
// numbered `$n` placeholder.
func Rebind(sql string) string {
	var sb strings.Builder
	n := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			sb.WriteByte(ch)
		case ch == '\'' || ch == '"':
			quote = ch
			sb.WriteByte(ch)
		case ch == '?':
			n++
			sb.WriteString("$" + strconv.Itoa(n))
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}
