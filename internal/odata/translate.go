package odata

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// Edm primitive type names.
const (
	EdmString         = "Edm.String"
	EdmBoolean        = "Edm.Boolean"
	EdmByte           = "Edm.Byte"
	EdmSByte          = "Edm.SByte"
	EdmInt16          = "Edm.Int16"
	EdmInt32          = "Edm.Int32"
	EdmInt64          = "Edm.Int64"
	EdmDecimal        = "Edm.Decimal"
	EdmDouble         = "Edm.Double"
	EdmSingle         = "Edm.Single"
	EdmDate           = "Edm.Date"
	EdmDateTime       = "Edm.DateTime"
	EdmDateTimeOffset = "Edm.DateTimeOffset"
	EdmTimeOfDay      = "Edm.TimeOfDay"
	EdmGuid           = "Edm.Guid"
	EdmBinary         = "Edm.Binary"
)

func isNumeric(typeName string) bool {
	switch typeName {
	case EdmByte, EdmSByte, EdmInt16, EdmInt32, EdmInt64, EdmDecimal, EdmDouble, EdmSingle:
		return true
	}
	return false
}

type binaryFunc func(l, r query.Node) (query.Node, error)

func arithmetic(fn func(l, r query.Node) query.Arithmetic) binaryFunc {
	return func(l, r query.Node) (query.Node, error) { return fn(l, r), nil }
}

func comparison(fn func(l, r query.Node) query.Comparison) binaryFunc {
	return func(l, r query.Node) (query.Node, error) { return fn(l, r), nil }
}

func logical(op BinaryKind, fn func(cs ...query.Condition) query.Logical) binaryFunc {
	return func(l, r query.Node) (query.Node, error) {
		lc, lok := l.(query.Condition)
		rc, rok := r.(query.Condition)
		if !lok || !rok {
			return nil, query.NewParseError("operands of %s must be boolean conditions", op)
		}
		return fn(lc, rc), nil
	}
}

var binaryOperators = map[BinaryKind]binaryFunc{
	Or:                 logical(Or, query.Or),
	And:                logical(And, query.And),
	Equal:              comparison(query.Equal),
	NotEqual:           comparison(query.NotEqual),
	GreaterThan:        comparison(query.GreaterThan),
	GreaterThanOrEqual: comparison(query.GreaterThanEqual),
	LessThan:           comparison(query.LessThan),
	LessThanOrEqual:    comparison(query.LessThanEqual),
	Add:                arithmetic(query.Add),
	Subtract:           arithmetic(query.Subtract),
	Multiply:           arithmetic(query.Multiply),
	Divide:             arithmetic(query.Divide),
	Modulo:             arithmetic(query.Mod),
}

// TranslateCondition translates a $filter tree that must evaluate to a
// boolean.
func TranslateCondition(expr Expression, def *record.Definition) (query.Condition, error) {
	n, err := Translate(expr, def)
	if err != nil {
		return nil, err
	}
	c, ok := n.(query.Condition)
	if !ok {
		return nil, query.NewParseError("filter %s is not a boolean condition", query.Format(n))
	}
	return c, nil
}

// Translate converts a $filter tree into a query node. Member access
// resolves against def; a nil def accepts any member name as a column.
func Translate(expr Expression, def *record.Definition) (query.Node, error) {
	switch e := expr.(type) {
	case BinaryOperator:
		fn, ok := binaryOperators[e.Operator]
		if !ok {
			return nil, query.NewUnsupportedExpressionError(string(e.Operator) + " operator")
		}
		l, err := Translate(e.Left, def)
		if err != nil {
			return nil, err
		}
		r, err := Translate(e.Right, def)
		if err != nil {
			return nil, err
		}
		return fn(l, r)
	case UnaryOperator:
		operand, err := Translate(e.Operand, def)
		if err != nil {
			return nil, err
		}
		if e.Operator == Negate {
			return query.Multiply(operand, query.Val(int32(-1))), nil
		}
		c, ok := operand.(query.Condition)
		if !ok {
			return nil, query.NewParseError("operand of not must be a boolean condition")
		}
		return query.Not(c), nil
	case Constant:
		v, err := ConvertLiteral(e.Text, e.TypeName)
		if err != nil {
			return nil, err
		}
		return query.Val(v), nil
	case MemberAccess:
		return column(e.Path, def)
	case nil:
		return nil, query.NewParseError("missing expression")
	default:
		return nil, query.NewUnsupportedExpressionError(expr.Kind())
	}
}

func column(path string, def *record.Definition) (query.Node, error) {
	if strings.Contains(path, "/") {
		return nil, query.NewUnsupportedExpressionError("navigation path " + path)
	}
	if def == nil {
		return query.Col(path), nil
	}
	f, ok := def.LookupField(path)
	if !ok {
		return nil, query.NewSchemaError(path, fmt.Sprintf("field not found in %s", def.Path), nil)
	}
	return query.Col(f.Name), nil
}

// Layouts accepted for temporal literals, tried in order.
var (
	dateTimeOffsetLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"}
	dateTimeLayouts       = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02 15:04:05.999999999"}
	timeOfDayLayouts      = []string{"15:04:05.999999999", "15:04"}
)

// ConvertLiteral converts literal text written as the named Edm type to its
// Go value. An empty type name is only valid for null, which yields nil.
func ConvertLiteral(text, typeName string) (any, error) {
	var v any
	var err error
	switch typeName {
	case "":
		if text != "null" {
			return nil, query.NewParseError("literal %q has no type", text)
		}
		return nil, nil
	case EdmString:
		return text, nil
	case EdmBoolean:
		v, err = strconv.ParseBool(text)
	case EdmByte:
		var n uint64
		n, err = strconv.ParseUint(text, 10, 8)
		v = uint8(n)
	case EdmSByte:
		v, err = parseInt(text, 8, func(n int64) any { return int8(n) })
	case EdmInt16:
		v, err = parseInt(text, 16, func(n int64) any { return int16(n) })
	case EdmInt32:
		v, err = parseInt(text, 32, func(n int64) any { return int32(n) })
	case EdmInt64:
		v, err = parseInt(strings.TrimRight(text, "lL"), 64, func(n int64) any { return n })
	case EdmDecimal:
		v, err = decimal.NewFromString(strings.TrimRight(text, "mM"))
	case EdmDouble:
		v, err = strconv.ParseFloat(strings.TrimRight(text, "dD"), 64)
	case EdmSingle:
		var f float64
		f, err = strconv.ParseFloat(strings.TrimRight(text, "fF"), 32)
		v = float32(f)
	case EdmDate:
		v, err = time.Parse(record.DateLayout, text)
	case EdmDateTimeOffset:
		v, err = parseTime(text, dateTimeOffsetLayouts)
	case EdmDateTime:
		v, err = parseTime(text, dateTimeLayouts)
	case EdmTimeOfDay:
		v, err = parseTime(text, timeOfDayLayouts)
	case EdmGuid:
		var id uuid.UUID
		id, err = uuid.Parse(text)
		v = id.String()
	case EdmBinary:
		v, err = base64.URLEncoding.DecodeString(text)
		if err != nil {
			v, err = base64.StdEncoding.DecodeString(text)
		}
	default:
		return nil, query.NewUnsupportedExpressionError("literal of type " + typeName)
	}
	if err != nil {
		return nil, &query.Error{
			Code:    query.ErrCodeParse,
			Message: fmt.Sprintf("invalid %s literal %q", typeName, text),
			Err:     err,
		}
	}
	return v, nil
}

func parseInt(text string, bits int, wrap func(int64) any) (any, error) {
	n, err := strconv.ParseInt(text, 10, bits)
	if err != nil {
		return nil, err
	}
	return wrap(n), nil
}

func parseTime(text string, layouts []string) (time.Time, error) {
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
