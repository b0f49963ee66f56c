package querysql

import (
	"strconv"

	"github.com/roach88/geoquery/internal/query"
)

// extension renders the nodes whose SQL differs between dialects. Every
// placeholder written by AppendSQL has a matching parameter appended by
// AppendParameters, in the same order.
type extension struct {
	dialect Dialect
}

func (e extension) AppendSQL(w *query.SQLWriter, n query.Node) (bool, error) {
	switch v := n.(type) {
	case query.EnvelopeIntersects:
		switch e.dialect {
		case Oracle:
			w.WriteString("SDO_RELATE(")
			if err := w.Append(v.Column); err != nil {
				return true, err
			}
			w.WriteString(", SDO_GEOMETRY(2003, ?, NULL, SDO_ELEM_INFO_ARRAY(1, 1003, 3), " +
				"SDO_ORDINATE_ARRAY(?, ?, ?, ?)), 'mask=ANYINTERACT') = 'TRUE'")
			return true, nil
		case Postgres:
			w.WriteString("ST_Intersects(")
			if err := w.Append(v.Column); err != nil {
				return true, err
			}
			w.WriteString(", ST_MakeEnvelope(?, ?, ?, ?, ?))")
			return true, nil
		}
		return true, query.NewUnsupportedOperatorError(string(e.dialect), query.KindOf(n))

	case query.WithinDistance:
		switch e.dialect {
		case Oracle:
			w.WriteString("SDO_WITHIN_DISTANCE(")
			if err := w.Append(v.Column); err != nil {
				return true, err
			}
			w.WriteString(", SDO_GEOMETRY(2001, ?, SDO_POINT_TYPE(?, ?, NULL), NULL, NULL), ?) = 'TRUE'")
			return true, nil
		case Postgres:
			w.WriteString("ST_DWithin(")
			if err := w.Append(v.Column); err != nil {
				return true, err
			}
			w.WriteString(", ST_SetSRID(ST_MakePoint(?, ?), ?), ?)")
			return true, nil
		}
		return true, query.NewUnsupportedOperatorError(string(e.dialect), query.KindOf(n))

	case query.Comparison:
		if v.Op != query.OpILike || e.dialect != Postgres {
			return false, nil
		}
		w.WriteString("CAST(")
		if err := w.Append(v.Left); err != nil {
			return true, err
		}
		w.WriteString(" AS TEXT) ILIKE ")
		return true, w.Append(v.Right)
	}
	return false, nil
}

func (e extension) AppendParameters(n query.Node, index int, args []any) (int, []any, bool) {
	switch v := n.(type) {
	case query.EnvelopeIntersects:
		b := v.Bound
		switch e.dialect {
		case Oracle:
			args = append(args, v.SRID, b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
		case Postgres:
			args = append(args, b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(), v.SRID)
		default:
			return index, args, true
		}
		return index + 5, args, true

	case query.WithinDistance:
		p := v.Point
		switch e.dialect {
		case Oracle:
			args = append(args, v.SRID, p.X(), p.Y(), "distance="+strconv.FormatFloat(v.Distance, 'f', -1, 64))
		case Postgres:
			args = append(args, p.X(), p.Y(), v.SRID, v.Distance)
		default:
			return index, args, true
		}
		return index + 4, args, true
	}
	return index, args, false
}
