package filegdb

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// WhereClause compiles a condition to the geodatabase's filter grammar.
//
// The engine takes no bind parameters, so every literal is written inline.
// Spatial predicates are not pushed down: they compile to `1 = 1` and the
// caller filters the rows in memory. An empty IN compiles to `1==0`.
func WhereClause(c query.Condition) (string, error) {
	if c == nil {
		return "", nil
	}
	var sb strings.Builder
	if err := writeWhere(&sb, c); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func writeWhere(sb *strings.Builder, n query.Node) error {
	switch v := n.(type) {
	case query.Column:
		sb.WriteString(query.QuoteName(v.Name))
	case query.Value:
		sb.WriteString(Literal(v.Raw, v.Field))
	case query.Collection:
		sb.WriteString("(")
		for i, e := range v.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := writeWhere(sb, e); err != nil {
				return err
			}
		}
		sb.WriteString(")")
	case query.Arithmetic:
		return writeBinary(sb, v.Left, string(v.Op), v.Right)
	case query.Comparison:
		if v.Op.IsLike() {
			return writeLike(sb, v)
		}
		return writeBinary(sb, v.Left, string(v.Op), v.Right)
	case query.Logical:
		if len(v.Conditions) == 0 {
			sb.WriteString("1 = 1")
			return nil
		}
		sb.WriteString("(")
		for i, c := range v.Conditions {
			if i > 0 {
				sb.WriteString(" " + string(v.Op) + " ")
			}
			if err := writeWhere(sb, c); err != nil {
				return err
			}
		}
		sb.WriteString(")")
	case query.Membership:
		if len(v.Values.Values) == 0 {
			sb.WriteString("1==0")
			return nil
		}
		if err := writeWhere(sb, v.Left); err != nil {
			return err
		}
		sb.WriteString(" IN ")
		return writeWhere(sb, v.Values)
	case query.NullCheck:
		if err := writeWhere(sb, v.Value); err != nil {
			return err
		}
		if v.Negated {
			sb.WriteString(" IS NOT NULL")
		} else {
			sb.WriteString(" IS NULL")
		}
	case query.Raw:
		sb.WriteString(query.SubstituteParameters(v.Text, v.Parameters, func(p any) string {
			return Literal(p, nil)
		}))
	case query.Negation:
		sb.WriteString("NOT (")
		if err := writeWhere(sb, v.Condition); err != nil {
			return err
		}
		sb.WriteString(")")
	case query.Group:
		sb.WriteString("(")
		if err := writeWhere(sb, v.Node); err != nil {
			return err
		}
		sb.WriteString(")")
	case query.EnvelopeIntersects, query.WithinDistance:
		sb.WriteString("1 = 1")
	default:
		return query.NewUnsupportedOperatorError("filegdb", query.KindOf(n))
	}
	return nil
}

func writeBinary(sb *strings.Builder, l query.Node, op string, r query.Node) error {
	if err := writeWhere(sb, l); err != nil {
		return err
	}
	sb.WriteString(" " + op + " ")
	return writeWhere(sb, r)
}

// writeLike writes a case-insensitive match. The engine's LIKE is only
// reliable on upper-cased text, so LIKE and ILIKE compile alike.
func writeLike(sb *strings.Builder, c query.Comparison) error {
	sb.WriteString("UPPER(CAST(")
	if err := writeWhere(sb, c.Left); err != nil {
		return err
	}
	sb.WriteString(" AS VARCHAR(4000))) LIKE ")
	if v, ok := c.Right.(query.Value); ok {
		pattern := record.String.Format(v.Raw)
		sb.WriteString(query.QuoteString(query.Upper(pattern)))
		return nil
	}
	sb.WriteString("UPPER(")
	if err := writeWhere(sb, c.Right); err != nil {
		return err
	}
	sb.WriteString(")")
	return nil
}

// TimestampLayout is the engine's timestamp literal format.
const TimestampLayout = "2006-01-02 15:04:05"

// Literal renders a value in the engine's grammar: numbers unquoted, dates
// as DATE 'yyyy-MM-dd', timestamps as TIMESTAMP 'yyyy-MM-dd HH:mm:ss',
// booleans as 1 or 0 and everything else as a quoted string.
func Literal(v any, f *record.FieldDefinition) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		switch {
		case f != nil && f.Type == record.Timestamp:
			return "TIMESTAMP '" + val.Format(TimestampLayout) + "'"
		case f != nil && f.Type == record.Time:
			return "TIME '" + val.Format(record.TimeLayout) + "'"
		default:
			return "DATE '" + val.Format(record.DateLayout) + "'"
		}
	case orb.Geometry:
		return query.QuoteString(wkt.MarshalString(val))
	}
	if record.IsNumber(v) {
		return record.String.Format(v)
	}
	return query.QuoteString(f.ToString(v))
}
