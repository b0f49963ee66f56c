package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/roach88/geoquery/internal/record"
)

// Extension lets a dialect render and bind nodes the default renderer cannot
// express, or override how it renders ones it can.
//
// Both methods must agree: for every node AppendSQL handles, AppendParameters
// must append exactly one parameter per placeholder it wrote.
type Extension interface {
	// AppendSQL writes n and returns true, or returns false to fall back to
	// the default rendering.
	AppendSQL(w *SQLWriter, n Node) (bool, error)

	// AppendParameters appends the parameters of n and returns the next
	// parameter index, or returns handled=false to fall back.
	AppendParameters(n Node, index int, args []any) (next int, out []any, handled bool)
}

// SQLWriter renders a tree as SQL with `?` bind placeholders.
type SQLWriter struct {
	sb  strings.Builder
	ext Extension
}

// NewSQLWriter creates a writer. ext may be nil.
func NewSQLWriter(ext Extension) *SQLWriter {
	return &SQLWriter{ext: ext}
}

// WriteString appends raw text.
func (w *SQLWriter) WriteString(s string) { w.sb.WriteString(s) }

// String returns the SQL written so far.
func (w *SQLWriter) String() string { return w.sb.String() }

// ToSQL renders n with the default dialect.
func ToSQL(n Node) (string, error) {
	w := NewSQLWriter(nil)
	if err := w.Append(n); err != nil {
		return "", err
	}
	return w.String(), nil
}

// Append renders n.
//
// Placeholders are written in the same depth-first, left-to-right order in
// which AppendParameters visits values, so the number of `?` written equals
// the number of parameters appended.
func (w *SQLWriter) Append(n Node) error {
	if w.ext != nil {
		handled, err := w.ext.AppendSQL(w, n)
		if err != nil || handled {
			return err
		}
	}

	switch v := n.(type) {
	case Column:
		w.WriteString(QuoteName(v.Name))
	case Value:
		w.WriteString(v.Field.PlaceholderText())
	case Collection:
		return w.appendCollection(v)
	case Arithmetic:
		return w.appendBinary(v.Left, string(v.Op), v.Right)
	case Comparison:
		switch v.Op {
		case OpLike, OpILike:
			w.WriteString("UPPER(CAST(")
			if err := w.Append(v.Left); err != nil {
				return err
			}
			w.WriteString(" AS VARCHAR(4000))) LIKE UPPER(")
			if err := w.Append(v.Right); err != nil {
				return err
			}
			w.WriteString(")")
			return nil
		default:
			return w.appendBinary(v.Left, string(v.Op), v.Right)
		}
	case Logical:
		return w.appendLogical(v)
	case Membership:
		if len(v.Values.Values) == 0 {
			w.WriteString("1 = 0")
			return nil
		}
		if err := w.Append(v.Left); err != nil {
			return err
		}
		w.WriteString(" IN ")
		return w.appendCollection(v.Values)
	case NullCheck:
		if err := w.Append(v.Value); err != nil {
			return err
		}
		if v.Negated {
			w.WriteString(" IS NOT NULL")
		} else {
			w.WriteString(" IS NULL")
		}
	case Raw:
		w.WriteString(v.Text)
	case Negation:
		w.WriteString("NOT (")
		if err := w.Append(v.Condition); err != nil {
			return err
		}
		w.WriteString(")")
	case Group:
		w.WriteString("(")
		if err := w.Append(v.Node); err != nil {
			return err
		}
		w.WriteString(")")
	case EnvelopeIntersects, WithinDistance:
		return NewUnsupportedOperatorError("default", KindOf(n))
	default:
		return NewUnsupportedOperatorError("default", KindOf(n))
	}
	return nil
}

func (w *SQLWriter) appendBinary(l Node, op string, r Node) error {
	if err := w.Append(l); err != nil {
		return err
	}
	w.WriteString(" " + op + " ")
	return w.Append(r)
}

func (w *SQLWriter) appendLogical(v Logical) error {
	if len(v.Conditions) == 0 {
		w.WriteString("1 = 1")
		return nil
	}
	w.WriteString("(")
	for i, c := range v.Conditions {
		if i > 0 {
			w.WriteString(" " + string(v.Op) + " ")
		}
		if err := w.Append(c); err != nil {
			return err
		}
	}
	w.WriteString(")")
	return nil
}

// appendCollection writes one placeholder per element. A collection bound to
// a field reuses the field's placeholder text for every literal element.
func (w *SQLWriter) appendCollection(c Collection) error {
	w.WriteString("(")
	for i, n := range c.Values {
		if i > 0 {
			w.WriteString(", ")
		}
		if _, ok := n.(Value); ok && c.Field != nil {
			w.WriteString(c.Field.PlaceholderText())
			continue
		}
		if err := w.Append(n); err != nil {
			return err
		}
	}
	w.WriteString(")")
	return nil
}

// AppendParameters appends the bind parameters of n in placeholder order.
// index is the 1-based position of the next placeholder; the returned index
// has advanced once per parameter appended.
func AppendParameters(n Node, index int, args []any) (int, []any) {
	return BindParameters(nil, n, index, args)
}

// BindParameters is AppendParameters with a dialect extension.
func BindParameters(ext Extension, n Node, index int, args []any) (int, []any) {
	if ext != nil {
		if next, out, handled := ext.AppendParameters(n, index, args); handled {
			return next, out
		}
	}
	switch v := n.(type) {
	case Value:
		return index + 1, append(args, v.Raw)
	case Raw:
		for _, p := range v.Parameters {
			args = append(args, p)
			index++
		}
		return index, args
	case Membership:
		if len(v.Values.Values) == 0 {
			return index, args
		}
	}
	for _, c := range Children(n) {
		index, args = BindParameters(ext, c, index, args)
	}
	return index, args
}

var unquotedName = regexp.MustCompile(`^([A-Z][_A-Z0-9]*\.)?[A-Z][_A-Z0-9]*$`)

// QuoteName returns name unquoted when it is an upper-case identifier,
// optionally schema-qualified, and double-quoted otherwise.
func QuoteName(name string) string {
	if unquotedName.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString single-quotes s, doubling embedded quotes.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Format renders n as text with literals inlined. It is the readable form
// used in logs and diagnostics.
func Format(n Node) string {
	var sb strings.Builder
	format(&sb, n)
	return sb.String()
}

func format(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case nil:
		sb.WriteString("NULL")
	case Column:
		sb.WriteString(QuoteName(v.Name))
	case Value:
		if v.Display != nil {
			sb.WriteString(FormatLiteral(v.Display, nil))
		} else {
			sb.WriteString(FormatLiteral(v.Raw, v.Field))
		}
	case Collection:
		sb.WriteString("(")
		for i, e := range v.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, e)
		}
		sb.WriteString(")")
	case Arithmetic:
		format(sb, v.Left)
		sb.WriteString(" " + string(v.Op) + " ")
		format(sb, v.Right)
	case Comparison:
		format(sb, v.Left)
		sb.WriteString(" " + string(v.Op) + " ")
		format(sb, v.Right)
	case Logical:
		if len(v.Conditions) == 0 {
			sb.WriteString("1 = 1")
			return
		}
		sb.WriteString("(")
		for i, c := range v.Conditions {
			if i > 0 {
				sb.WriteString(" " + string(v.Op) + " ")
			}
			format(sb, c)
		}
		sb.WriteString(")")
	case Membership:
		format(sb, v.Left)
		sb.WriteString(" IN ")
		format(sb, v.Values)
	case NullCheck:
		format(sb, v.Value)
		if v.Negated {
			sb.WriteString(" IS NOT NULL")
		} else {
			sb.WriteString(" IS NULL")
		}
	case Raw:
		sb.WriteString(SubstituteParameters(v.Text, v.Parameters, func(p any) string {
			return FormatLiteral(p, nil)
		}))
	case Negation:
		sb.WriteString("NOT (")
		format(sb, v.Condition)
		sb.WriteString(")")
	case Group:
		sb.WriteString("(")
		format(sb, v.Node)
		sb.WriteString(")")
	case EnvelopeIntersects:
		sb.WriteString("ENVELOPE_INTERSECTS(")
		format(sb, v.Column)
		sb.WriteString(", " + QuoteString(wkt.MarshalString(v.Bound.ToPolygon())) + ")")
	case WithinDistance:
		sb.WriteString("WITHIN_DISTANCE(")
		format(sb, v.Column)
		sb.WriteString(", " + QuoteString(wkt.MarshalString(v.Point)) + ", ")
		sb.WriteString(strconv.FormatFloat(v.Distance, 'f', -1, 64) + ")")
	}
}

// FormatLiteral renders a literal as SQL text. Temporal values use JDBC
// escapes chosen by the field type; an unbound time.Time is a timestamp.
func FormatLiteral(v any, f *record.FieldDefinition) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		typ := record.Timestamp
		if f != nil && f.Type.IsTemporal() {
			typ = f.Type
		}
		switch typ {
		case record.Date:
			return "{d '" + val.Format(record.DateLayout) + "'}"
		case record.Time:
			return "{t '" + val.Format(record.TimeLayout) + "'}"
		default:
			return "{ts '" + val.Format(record.TimestampLayout) + "'}"
		}
	case orb.Geometry:
		return QuoteString(wkt.MarshalString(val))
	}
	if record.IsNumber(v) {
		return record.String.Format(v)
	}
	return QuoteString(f.ToString(v))
}

// SubstituteParameters replaces each `?` outside single-quoted strings with
// the rendering of the next parameter. Markers beyond the parameter list are
// left in place.
func SubstituteParameters(text string, params []any, render func(any) string) string {
	var sb strings.Builder
	inString := false
	next := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '\'':
			inString = !inString
			sb.WriteByte(ch)
		case ch == '?' && !inString && next < len(params):
			sb.WriteString(render(params[next]))
			next++
		default:
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

func (c Column) String() string             { return Format(c) }
func (v Value) String() string              { return Format(v) }
func (c Collection) String() string         { return Format(c) }
func (a Arithmetic) String() string         { return Format(a) }
func (c Comparison) String() string         { return Format(c) }
func (l Logical) String() string            { return Format(l) }
func (m Membership) String() string         { return Format(m) }
func (n NullCheck) String() string          { return Format(n) }
func (r Raw) String() string                { return Format(r) }
func (n Negation) String() string           { return Format(n) }
func (g Group) String() string              { return Format(g) }
func (e EnvelopeIntersects) String() string { return Format(e) }
func (d WithinDistance) String() string     { return Format(d) }
