package query

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes query errors.
type ErrorCode string

const (
	// ErrCodeSchema indicates an unknown field or a literal that does not
	// convert to its field's type. Fatal to the query being built.
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"

	// ErrCodeUnsupportedOperator indicates a node a dialect cannot compile.
	ErrCodeUnsupportedOperator ErrorCode = "UNSUPPORTED_OPERATOR"

	// ErrCodeCannotFilter indicates a node with no in-memory semantics.
	ErrCodeCannotFilter ErrorCode = "CANNOT_FILTER"

	// ErrCodeUnsupportedExpression indicates a foreign expression kind that
	// has no translation.
	ErrCodeUnsupportedExpression ErrorCode = "UNSUPPORTED_EXPRESSION"

	// ErrCodeParse indicates malformed query text.
	ErrCodeParse ErrorCode = "PARSE_ERROR"
)

// Error is a coded query error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Operator names the offending operator or node kind, when known.
	Operator string

	// Field names the offending field, when known.
	Field string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.Operator != "" {
		msg += fmt.Sprintf(" (operator=%s)", e.Operator)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewSchemaError creates an ErrCodeSchema error for a field.
func NewSchemaError(field, message string, cause error) *Error {
	return &Error{Code: ErrCodeSchema, Message: message, Field: field, Err: cause}
}

// NewUnsupportedOperatorError creates an ErrCodeUnsupportedOperator error.
func NewUnsupportedOperatorError(dialect, operator string) *Error {
	return &Error{
		Code:     ErrCodeUnsupportedOperator,
		Message:  fmt.Sprintf("%s dialect cannot compile operator", dialect),
		Operator: operator,
	}
}

// NewCannotFilterError creates an ErrCodeCannotFilter error for a node.
func NewCannotFilterError(n Node, reason string) *Error {
	return &Error{
		Code:     ErrCodeCannotFilter,
		Message:  "cannot filter in memory: " + reason,
		Operator: KindOf(n),
	}
}

// NewUnsupportedExpressionError creates an ErrCodeUnsupportedExpression error.
func NewUnsupportedExpressionError(kind string) *Error {
	return &Error{
		Code:     ErrCodeUnsupportedExpression,
		Message:  "expression kind has no translation",
		Operator: kind,
	}
}

// NewParseError creates an ErrCodeParse error.
func NewParseError(format string, args ...any) *Error {
	return &Error{Code: ErrCodeParse, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code == code
	}
	return false
}

// IsSchemaError reports whether err is a schema error. Uses errors.As to
// handle wrapped errors.
func IsSchemaError(err error) bool { return hasCode(err, ErrCodeSchema) }

// IsUnsupportedOperator reports whether err is a compilation error.
func IsUnsupportedOperator(err error) bool { return hasCode(err, ErrCodeUnsupportedOperator) }

// IsCannotFilter reports whether err is an in-memory evaluation error.
func IsCannotFilter(err error) bool { return hasCode(err, ErrCodeCannotFilter) }

// IsUnsupportedExpression reports whether err is a translation error.
func IsUnsupportedExpression(err error) bool { return hasCode(err, ErrCodeUnsupportedExpression) }

// IsParseError reports whether err is a parse error.
func IsParseError(err error) bool { return hasCode(err, ErrCodeParse) }

// KindOf names the node kind for diagnostics.
func KindOf(n Node) string {
	switch v := n.(type) {
	case Column:
		return "Column"
	case Value:
		return "Value"
	case Collection:
		return "Collection"
	case Arithmetic:
		return string(v.Op)
	case Comparison:
		return string(v.Op)
	case Logical:
		return string(v.Op)
	case Membership:
		return "IN"
	case NullCheck:
		if v.Negated {
			return "IS NOT NULL"
		}
		return "IS NULL"
	case Raw:
		return "SQL"
	case Negation:
		return "NOT"
	case Group:
		return "Parenthesis"
	case EnvelopeIntersects:
		return "ENVELOPE_INTERSECTS"
	case WithinDistance:
		return "WITHIN_DISTANCE"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", n)
	}
}
