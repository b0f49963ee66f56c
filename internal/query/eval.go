package query

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/geoquery/internal/record"
)

// Evaluate computes the value of n against r. Conditions evaluate to bool.
//
// Arithmetic over a non-numeric operand, or division by zero, evaluates to
// nil rather than failing.
func Evaluate(n Node, r record.Getter) (any, error) {
	switch v := n.(type) {
	case nil:
		return nil, nil
	case Column:
		val, _ := r.Get(v.Name)
		return val, nil
	case Value:
		return v.Raw, nil
	case Collection:
		out := make([]any, len(v.Values))
		for i, e := range v.Values {
			val, err := Evaluate(e, r)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case Arithmetic:
		l, err := Evaluate(v.Left, r)
		if err != nil {
			return nil, err
		}
		rv, err := Evaluate(v.Right, r)
		if err != nil {
			return nil, err
		}
		return arithmetic(v.Op, l, rv), nil
	case Group:
		return Evaluate(v.Node, r)
	case Condition:
		return Test(v, r)
	default:
		return nil, NewCannotFilterError(n, fmt.Sprintf("unknown node %T", n))
	}
}

// Test evaluates c as a predicate over r.
//
// An empty And is true. An empty Or is also true. Raw SQL and spatial
// predicates over non-geometry values fail with ErrCodeCannotFilter.
func Test(c Condition, r record.Getter) (bool, error) {
	switch v := c.(type) {
	case nil:
		return true, nil
	case Comparison:
		l, err := Evaluate(v.Left, r)
		if err != nil {
			return false, err
		}
		rv, err := Evaluate(v.Right, r)
		if err != nil {
			return false, err
		}
		return compareOp(v.Op, l, rv), nil
	case Logical:
		if len(v.Conditions) == 0 {
			return true, nil
		}
		for _, child := range v.Conditions {
			ok, err := Test(child, r)
			if err != nil {
				return false, err
			}
			if v.Op == OpOr && ok {
				return true, nil
			}
			if v.Op == OpAnd && !ok {
				return false, nil
			}
		}
		return v.Op == OpAnd, nil
	case Membership:
		l, err := Evaluate(v.Left, r)
		if err != nil {
			return false, err
		}
		for _, e := range v.Values.Values {
			val, err := Evaluate(e, r)
			if err != nil {
				return false, err
			}
			if valuesEqual(l, val) {
				return true, nil
			}
		}
		return false, nil
	case NullCheck:
		val, err := Evaluate(v.Value, r)
		if err != nil {
			return false, err
		}
		return (val == nil) != v.Negated, nil
	case Raw:
		return false, NewCannotFilterError(v, "raw SQL has no in-memory form")
	case Negation:
		ok, err := Test(v.Condition, r)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case Group:
		val, err := Evaluate(v.Node, r)
		if err != nil {
			return false, err
		}
		b, ok := val.(bool)
		if !ok {
			return false, NewCannotFilterError(v, fmt.Sprintf("parenthesized %T is not a condition", val))
		}
		return b, nil
	case EnvelopeIntersects:
		g, err := geometryOf(v, v.Column, r)
		if err != nil || g == nil {
			return false, err
		}
		return g.Bound().Intersects(v.Bound), nil
	case WithinDistance:
		g, err := geometryOf(v, v.Column, r)
		if err != nil || g == nil {
			return false, err
		}
		return boundDistance(g.Bound(), v.Point) <= v.Distance, nil
	default:
		return false, NewCannotFilterError(c, fmt.Sprintf("unknown condition %T", c))
	}
}

// Filter returns the records that satisfy c, in order.
func Filter[T record.Getter](c Condition, rs []T) ([]T, error) {
	var out []T
	for _, r := range rs {
		ok, err := Test(c, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func geometryOf(c Condition, column Node, r record.Getter) (orb.Geometry, error) {
	val, err := Evaluate(column, r)
	if err != nil {
		return nil, err
	}
	switch g := val.(type) {
	case nil:
		return nil, nil
	case orb.Geometry:
		return g, nil
	default:
		return nil, NewCannotFilterError(c, fmt.Sprintf("%T is not a geometry", val))
	}
}

// boundDistance is the planar distance from p to the nearest point of b.
func boundDistance(b orb.Bound, p orb.Point) float64 {
	dx := math.Max(0, math.Max(b.Min.X()-p.X(), p.X()-b.Max.X()))
	dy := math.Max(0, math.Max(b.Min.Y()-p.Y(), p.Y()-b.Max.Y()))
	return math.Hypot(dx, dy)
}

func arithmetic(op ArithmeticOp, l, r any) any {
	if !record.IsNumber(l) || !record.IsNumber(r) {
		return nil
	}
	a, err := record.ToDecimal(l)
	if err != nil {
		return nil
	}
	b, err := record.ToDecimal(r)
	if err != nil {
		return nil
	}
	switch op {
	case OpAdd:
		return record.FromDecimal(a.Add(b), l)
	case OpSubtract:
		return record.FromDecimal(a.Sub(b), l)
	case OpMultiply:
		return record.FromDecimal(a.Mul(b), l)
	case OpDivide:
		if b.IsZero() {
			return nil
		}
		return record.FromDecimal(a.Div(b), l)
	case OpMod:
		if b.IsZero() {
			return nil
		}
		return record.FromDecimal(a.Mod(b), l)
	default:
		return nil
	}
}

func compareOp(op Operator, l, r any) bool {
	switch op {
	case OpEqual:
		return valuesEqual(l, r)
	case OpNotEqual:
		return !valuesEqual(l, r)
	case OpLike, OpILike:
		return MatchLike(record.String.Format(l), record.String.Format(r), op == OpILike)
	}
	cmp, ok := compareValues(l, r)
	if !ok {
		return false
	}
	switch op {
	case OpLessThan:
		return cmp < 0
	case OpLessThanEqual:
		return cmp <= 0
	case OpGreaterThan:
		return cmp > 0
	case OpGreaterThanEqual:
		return cmp >= 0
	}
	return false
}

// Compare orders two values the way comparisons do. ok is false when the
// values are not comparable, including when either is nil.
func Compare(a, b any) (cmp int, ok bool) { return compareValues(a, b) }

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two non-nil values of compatible kinds. Numbers of
// any width compare numerically; a numeric string compares as a number.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	an, bn := record.IsNumber(a), record.IsNumber(b)
	if an || bn {
		x, err := record.ToDecimal(a)
		if err != nil {
			return 0, false
		}
		y, err := record.ToDecimal(b)
		if err != nil {
			return 0, false
		}
		return x.Cmp(y), true
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}
