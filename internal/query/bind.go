package query

import (
	"fmt"

	"github.com/roach88/geoquery/internal/record"
)

// Bind attaches field metadata from def to every Column in the tree and
// converts literals compared against those columns to the field's type.
//
// Binding is depth-first and returns a new tree; n is not modified.
// A column that names no field of def, or a literal that does not convert
// to its field's type, fails with ErrCodeSchema.
//
// A literal bound to a field with a code table is replaced by the table's
// identifier and keeps the original as its display value, unless the code
// table is def itself.
func Bind(n Node, def *record.Definition) (Node, error) {
	if n == nil {
		return nil, nil
	}
	b := binder{def: def}
	return b.bind(n)
}

// BindCondition is Bind for conditions.
func BindCondition(c Condition, def *record.Definition) (Condition, error) {
	if c == nil {
		return nil, nil
	}
	n, err := Bind(c, def)
	if err != nil {
		return nil, err
	}
	return n.(Condition), nil
}

type binder struct {
	def *record.Definition
}

func (b binder) bind(n Node) (Node, error) {
	switch v := n.(type) {
	case Column:
		return b.bindColumn(v)
	case Value:
		if v.Field == nil {
			return v, nil
		}
		return b.bindValue(v, v.Field)
	case Collection:
		return b.bindCollection(v, v.Field)
	case Arithmetic:
		l, r, err := b.bindPair(v.Left, v.Right)
		if err != nil {
			return nil, err
		}
		return Arithmetic{Op: v.Op, Left: l, Right: r}, nil
	case Comparison:
		l, r, err := b.bindPair(v.Left, v.Right)
		if err != nil {
			return nil, err
		}
		if !v.Op.IsLike() {
			if l, r, err = b.bindOperands(l, r); err != nil {
				return nil, err
			}
		}
		return Comparison{Op: v.Op, Left: l, Right: r}, nil
	case Logical:
		out := make([]Condition, len(v.Conditions))
		for i, c := range v.Conditions {
			bc, err := b.bind(c)
			if err != nil {
				return nil, err
			}
			out[i] = bc.(Condition)
		}
		return Logical{Op: v.Op, Conditions: out}, nil
	case Membership:
		left, err := b.bind(v.Left)
		if err != nil {
			return nil, err
		}
		field := v.Values.Field
		if col, ok := left.(Column); ok && col.Field != nil {
			field = col.Field
		}
		coll, err := b.bindCollection(v.Values, field)
		if err != nil {
			return nil, err
		}
		return Membership{Left: left, Values: coll}, nil
	case NullCheck:
		inner, err := b.bind(v.Value)
		if err != nil {
			return nil, err
		}
		return NullCheck{Value: inner, Negated: v.Negated}, nil
	case Raw:
		return v, nil
	case Negation:
		inner, err := b.bind(v.Condition)
		if err != nil {
			return nil, err
		}
		return Negation{Condition: inner.(Condition)}, nil
	case Group:
		inner, err := b.bind(v.Node)
		if err != nil {
			return nil, err
		}
		return Group{Node: inner}, nil
	case EnvelopeIntersects:
		col, err := b.bindGeometryColumn(v.Column)
		if err != nil {
			return nil, err
		}
		return EnvelopeIntersects{Column: col, Bound: v.Bound, SRID: b.srid(v.SRID)}, nil
	case WithinDistance:
		col, err := b.bindGeometryColumn(v.Column)
		if err != nil {
			return nil, err
		}
		return WithinDistance{Column: col, Point: v.Point, SRID: b.srid(v.SRID), Distance: v.Distance}, nil
	default:
		return nil, fmt.Errorf("bind: unknown node %T", n)
	}
}

func (b binder) bindPair(l, r Node) (Node, Node, error) {
	bl, err := b.bind(l)
	if err != nil {
		return nil, nil, err
	}
	br, err := b.bind(r)
	if err != nil {
		return nil, nil, err
	}
	return bl, br, nil
}

// bindOperands binds a literal to the column on the other side of a comparison.
func (b binder) bindOperands(l, r Node) (Node, Node, error) {
	if col, ok := l.(Column); ok && col.Field != nil {
		if val, ok := r.(Value); ok && val.Field == nil {
			bv, err := b.bindValue(val, col.Field)
			return l, bv, err
		}
	}
	if col, ok := r.(Column); ok && col.Field != nil {
		if val, ok := l.(Value); ok && val.Field == nil {
			bv, err := b.bindValue(val, col.Field)
			return bv, r, err
		}
	}
	return l, r, nil
}

func (b binder) bindColumn(c Column) (Node, error) {
	if b.def == nil {
		return c, nil
	}
	f, ok := b.def.LookupField(c.Name)
	if !ok {
		return nil, NewSchemaError(c.Name, fmt.Sprintf("column not found in %s", b.def.Path), nil)
	}
	return Column{Name: f.Name, Field: f}, nil
}

func (b binder) bindGeometryColumn(n Node) (Node, error) {
	bound, err := b.bind(n)
	if err != nil {
		return nil, err
	}
	if col, ok := bound.(Column); ok && col.Field != nil && col.Field.Type != record.Geometry {
		return nil, NewSchemaError(col.Name, "spatial predicate on a non-geometry column", nil)
	}
	return bound, nil
}

func (b binder) srid(srid int) int {
	if srid == 0 && b.def != nil {
		return b.def.SRID
	}
	return srid
}

func (b binder) bindValue(v Value, f *record.FieldDefinition) (Node, error) {
	raw := v.Raw
	display := v.Display
	if ct := f.CodeTable; ct != nil && (b.def == nil || ct.Name() != b.def.Path) && display == nil {
		if id, ok := ct.Identifier(raw); ok {
			display = raw
			raw = id
		}
	}
	converted, err := f.Convert(raw)
	if err != nil {
		return nil, NewSchemaError(f.Name, fmt.Sprintf("literal %v does not convert to %s", raw, f.Type), err)
	}
	return Value{Raw: converted, Display: display, Field: f}, nil
}

func (b binder) bindCollection(c Collection, f *record.FieldDefinition) (Collection, error) {
	out := make([]Node, len(c.Values))
	for i, n := range c.Values {
		if val, ok := n.(Value); ok && f != nil && val.Field == nil {
			bv, err := b.bindValue(val, f)
			if err != nil {
				return Collection{}, err
			}
			out[i] = bv
			continue
		}
		bn, err := b.bind(n)
		if err != nil {
			return Collection{}, err
		}
		out[i] = bn
	}
	return Collection{Values: out, Field: f}, nil
}
