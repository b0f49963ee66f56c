package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/geoquery/internal/record"
)

// Unbounded is the Limit of a query that returns every matching row.
const Unbounded = math.MaxInt

// Order is one ORDER BY term.
type Order struct {
	Field     string
	Ascending bool
}

// Query selects records from one table.
type Query struct {
	// TypePath is the catalog path of the table.
	TypePath string

	// Where filters rows; nil selects all.
	Where Condition

	// Fields lists the projected fields; empty projects every field.
	Fields []string

	OrderBy []Order
	Offset  int
	Limit   int

	// SQL, when set, replaces the generated statement. Backends that cannot
	// run SQL reject it.
	SQL        string
	Parameters []any
}

// New creates an unbounded query over path.
func New(path string) *Query {
	return &Query{TypePath: path, Limit: Unbounded}
}

// And narrows the query with c, combining it with any existing filter.
func (q *Query) And(c Condition) *Query {
	switch {
	case c == nil:
	case q.Where == nil:
		q.Where = c
	default:
		if l, ok := q.Where.(Logical); ok && l.Op == OpAnd {
			q.Where = And(append(append([]Condition(nil), l.Conditions...), c)...)
		} else {
			q.Where = And(q.Where, c)
		}
	}
	return q
}

// AddOrderBy appends an order term.
func (q *Query) AddOrderBy(field string, ascending bool) *Query {
	q.OrderBy = append(q.OrderBy, Order{Field: field, Ascending: ascending})
	return q
}

// Page sets offset and limit. A negative limit means Unbounded.
func (q *Query) Page(offset, limit int) *Query {
	q.Offset = max(offset, 0)
	if limit < 0 {
		limit = Unbounded
	}
	q.Limit = limit
	return q
}

// IsPaged reports whether the query skips or limits rows.
func (q *Query) IsPaged() bool {
	return q.Offset > 0 || q.Limit != Unbounded
}

// Bind returns a copy of q whose filter is bound to def and whose projected
// and ordered fields are resolved to their canonical names.
func (q *Query) Bind(def *record.Definition) (*Query, error) {
	out := *q
	where, err := BindCondition(q.Where, def)
	if err != nil {
		return nil, err
	}
	out.Where = where

	out.Fields = make([]string, len(q.Fields))
	for i, name := range q.Fields {
		f, ok := def.LookupField(name)
		if !ok {
			return nil, NewSchemaError(name, fmt.Sprintf("projected field not found in %s", def.Path), nil)
		}
		out.Fields[i] = f.Name
	}

	out.OrderBy = make([]Order, len(q.OrderBy))
	for i, o := range q.OrderBy {
		f, ok := def.LookupField(o.Field)
		if !ok {
			return nil, NewSchemaError(o.Field, fmt.Sprintf("order field not found in %s", def.Path), nil)
		}
		out.OrderBy[i] = Order{Field: f.Name, Ascending: o.Ascending}
	}
	return &out, nil
}

// SelectFields returns the projected fields, or every field of def.
func (q *Query) SelectFields(def *record.Definition) []string {
	if len(q.Fields) > 0 {
		return q.Fields
	}
	return def.FieldNames()
}

// String renders the query for logs.
func (q *Query) String() string {
	var sb strings.Builder
	sb.WriteString(q.TypePath)
	if q.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(Format(q.Where))
	}
	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(QuoteName(o.Field))
			if !o.Ascending {
				sb.WriteString(" DESC")
			}
		}
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}
	if q.Limit != Unbounded {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String()
}
