package query

import (
	"reflect"

	"github.com/paulmach/orb"

	"github.com/roach88/geoquery/internal/record"
)

// Node is any expression node: a leaf value, a column, or a composite.
//
// This is a sealed interface - only types in this package implement it.
// Backends switch exhaustively over the concrete types.
type Node interface {
	node() // Marker method - seals interface to this package
}

// Condition is a Node that evaluates to a boolean.
type Condition interface {
	Node
	condition()
}

// ArithmeticOp is the operator of an Arithmetic node.
type ArithmeticOp string

const (
	OpAdd      ArithmeticOp = "+"
	OpSubtract ArithmeticOp = "-"
	OpMultiply ArithmeticOp = "*"
	OpDivide   ArithmeticOp = "/"
	OpMod      ArithmeticOp = "%"
)

// Operator is the operator of a Comparison node.
type Operator string

const (
	OpEqual            Operator = "="
	OpNotEqual         Operator = "<>"
	OpLessThan         Operator = "<"
	OpLessThanEqual    Operator = "<="
	OpGreaterThan      Operator = ">"
	OpGreaterThanEqual Operator = ">="
	OpLike             Operator = "LIKE"
	OpILike            Operator = "ILIKE"
)

// IsLike reports whether the operator is a pattern match.
func (o Operator) IsLike() bool { return o == OpLike || o == OpILike }

// LogicalOp joins the children of a Logical node.
type LogicalOp string

const (
	OpAnd LogicalOp = "AND"
	OpOr  LogicalOp = "OR"
)

// Column references a field of the record by exact name. Field is set by
// Bind and drives type-aware conversion.
type Column struct {
	Name  string
	Field *record.FieldDefinition
}

// Value wraps a literal. When bound to a field with a code table, Raw holds
// the stored identifier and Display the value the caller wrote.
type Value struct {
	Raw     any
	Display any
	Field   *record.FieldDefinition
}

// Collection is a parenthesized list of values, the right side of IN.
type Collection struct {
	Values []Node
	Field  *record.FieldDefinition
}

// Arithmetic is `Left Op Right` over numbers.
type Arithmetic struct {
	Op    ArithmeticOp
	Left  Node
	Right Node
}

// Comparison is `Left Op Right` evaluating to a boolean.
type Comparison struct {
	Op    Operator
	Left  Node
	Right Node
}

// Logical is a parenthesized AND/OR list.
type Logical struct {
	Op         LogicalOp
	Conditions []Condition
}

// Membership is `Left IN (Values)`.
type Membership struct {
	Left   Node
	Values Collection
}

// NullCheck is `Value IS [NOT] NULL`.
type NullCheck struct {
	Value   Node
	Negated bool
}

// Raw is opaque SQL text whose `?` markers take Parameters in order.
// It cannot be evaluated in memory.
type Raw struct {
	Text       string
	Parameters []any
}

// Negation is NOT (Condition).
type Negation struct {
	Condition Condition
}

// Group wraps a node in parentheses. It is transparent to evaluation.
type Group struct {
	Node Node
}

// EnvelopeIntersects is true when the geometry in Column intersects Bound.
type EnvelopeIntersects struct {
	Column Node
	Bound  orb.Bound
	SRID   int
}

// WithinDistance is true when the geometry in Column lies within Distance
// of Point.
type WithinDistance struct {
	Column   Node
	Point    orb.Point
	SRID     int
	Distance float64
}

func (Column) node()             {}
func (Value) node()              {}
func (Collection) node()         {}
func (Arithmetic) node()         {}
func (Comparison) node()         {}
func (Logical) node()            {}
func (Membership) node()         {}
func (NullCheck) node()          {}
func (Raw) node()                {}
func (Negation) node()           {}
func (Group) node()              {}
func (EnvelopeIntersects) node() {}
func (WithinDistance) node()     {}

func (Comparison) condition()         {}
func (Logical) condition()            {}
func (Membership) condition()         {}
func (NullCheck) condition()          {}
func (Raw) condition()                {}
func (Negation) condition()           {}
func (Group) condition()              {}
func (EnvelopeIntersects) condition() {}
func (WithinDistance) condition()     {}

// Col creates a column reference.
func Col(name string) Column { return Column{Name: name} }

// Val creates a literal. A Node argument is returned unchanged.
func Val(v any) Node {
	if n, ok := v.(Node); ok {
		return n
	}
	return Value{Raw: v}
}

// FieldValue creates a literal already bound to a field. The value is not
// converted until Bind runs.
func FieldValue(f *record.FieldDefinition, v any) Value {
	return Value{Raw: v, Field: f}
}

// Values creates a collection of literals.
func Values(vs ...any) Collection {
	nodes := make([]Node, len(vs))
	for i, v := range vs {
		nodes[i] = Val(v)
	}
	return Collection{Values: nodes}
}

func Add(l, r Node) Arithmetic      { return Arithmetic{Op: OpAdd, Left: l, Right: r} }
func Subtract(l, r Node) Arithmetic { return Arithmetic{Op: OpSubtract, Left: l, Right: r} }
func Multiply(l, r Node) Arithmetic { return Arithmetic{Op: OpMultiply, Left: l, Right: r} }
func Divide(l, r Node) Arithmetic   { return Arithmetic{Op: OpDivide, Left: l, Right: r} }
func Mod(l, r Node) Arithmetic      { return Arithmetic{Op: OpMod, Left: l, Right: r} }

func Equal(l, r Node) Comparison       { return Comparison{Op: OpEqual, Left: l, Right: r} }
func NotEqual(l, r Node) Comparison    { return Comparison{Op: OpNotEqual, Left: l, Right: r} }
func LessThan(l, r Node) Comparison    { return Comparison{Op: OpLessThan, Left: l, Right: r} }
func LessThanEqual(l, r Node) Comparison {
	return Comparison{Op: OpLessThanEqual, Left: l, Right: r}
}
func GreaterThan(l, r Node) Comparison { return Comparison{Op: OpGreaterThan, Left: l, Right: r} }
func GreaterThanEqual(l, r Node) Comparison {
	return Comparison{Op: OpGreaterThanEqual, Left: l, Right: r}
}
func Like(l, r Node) Comparison  { return Comparison{Op: OpLike, Left: l, Right: r} }
func ILike(l, r Node) Comparison { return Comparison{Op: OpILike, Left: l, Right: r} }

// And creates a conjunction. The slice is copied.
func And(cs ...Condition) Logical {
	return Logical{Op: OpAnd, Conditions: append([]Condition(nil), cs...)}
}

// Or creates a disjunction. The slice is copied.
func Or(cs ...Condition) Logical {
	return Logical{Op: OpOr, Conditions: append([]Condition(nil), cs...)}
}

// In creates a membership test against a collection.
func In(left Node, values Collection) Membership {
	return Membership{Left: left, Values: Collection{
		Values: append([]Node(nil), values.Values...),
		Field:  values.Field,
	}}
}

// InValues is In with literal values.
func InValues(left Node, vs ...any) Membership { return In(left, Values(vs...)) }

func IsNull(n Node) NullCheck    { return NullCheck{Value: n} }
func IsNotNull(n Node) NullCheck { return NullCheck{Value: n, Negated: true} }

// RawSQL creates a passthrough condition.
func RawSQL(text string, params ...any) Raw {
	return Raw{Text: text, Parameters: append([]any(nil), params...)}
}

func Not(c Condition) Negation { return Negation{Condition: c} }
func Paren(n Node) Group       { return Group{Node: n} }

// Intersects creates a bounding box predicate on a geometry column.
func Intersects(column Node, bound orb.Bound, srid int) EnvelopeIntersects {
	return EnvelopeIntersects{Column: column, Bound: bound, SRID: srid}
}

// DWithin creates a within-distance predicate on a geometry column.
func DWithin(column Node, p orb.Point, srid int, distance float64) WithinDistance {
	return WithinDistance{Column: column, Point: p, SRID: srid, Distance: distance}
}

// Children returns the direct children of n in rendering order.
func Children(n Node) []Node {
	switch v := n.(type) {
	case Collection:
		return append([]Node(nil), v.Values...)
	case Arithmetic:
		return []Node{v.Left, v.Right}
	case Comparison:
		return []Node{v.Left, v.Right}
	case Logical:
		out := make([]Node, len(v.Conditions))
		for i, c := range v.Conditions {
			out[i] = c
		}
		return out
	case Membership:
		return []Node{v.Left, v.Values}
	case NullCheck:
		return []Node{v.Value}
	case Negation:
		return []Node{v.Condition}
	case Group:
		return []Node{v.Node}
	case EnvelopeIntersects:
		return []Node{v.Column}
	case WithinDistance:
		return []Node{v.Column}
	default:
		return nil
	}
}

// Walk visits n and its descendants depth-first, left to right. Returning
// false from fn skips the node's children.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// EqualNodes reports whether two trees are structurally identical.
func EqualNodes(a, b Node) bool {
	return reflect.DeepEqual(a, b)
}

// HasSpatial reports whether the tree contains a spatial predicate.
func HasSpatial(n Node) bool {
	found := false
	Walk(n, func(n Node) bool {
		switch n.(type) {
		case EnvelopeIntersects, WithinDistance:
			found = true
		}
		return !found
	})
	return found
}
