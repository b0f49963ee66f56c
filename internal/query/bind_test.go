package query

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoquery/internal/record"
)

func parcels(t *testing.T) *record.Definition {
	t.Helper()
	status := record.NewCodeTable("STATUS",
		record.Code{ID: 1, Value: "Active"},
		record.Code{ID: 2, Value: "Retired"},
	)
	def, err := record.NewDefinition("/Parcels",
		&record.FieldDefinition{Name: "OBJECTID", Type: record.Integer, Required: true},
		&record.FieldDefinition{Name: "NAME", Type: record.String},
		&record.FieldDefinition{Name: "AREA", Type: record.Double},
		&record.FieldDefinition{Name: "STATUS", Type: record.Integer, CodeTable: status},
		&record.FieldDefinition{Name: "SHAPE", Type: record.Geometry},
	)
	require.NoError(t, err)
	def.IDField = "OBJECTID"
	def.GeometryField = "SHAPE"
	def.SRID = 4326
	return def
}

func TestBind_ResolvesColumns(t *testing.T) {
	def := parcels(t)

	n, err := Bind(Equal(Col("name"), Val("Lot 1")), def)
	require.NoError(t, err)

	cmp := n.(Comparison)
	col := cmp.Left.(Column)
	assert.Equal(t, "NAME", col.Name, "bound columns use the canonical field name")
	require.NotNil(t, col.Field)
	assert.Equal(t, record.String, col.Field.Type)
	assert.Same(t, col.Field, cmp.Right.(Value).Field)
}

func TestBind_UnknownColumn(t *testing.T) {
	_, err := Bind(And(Equal(Col("OBJECTID"), Val(1)), IsNull(Col("NOPE"))), parcels(t))
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))

	var qe *Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "NOPE", qe.Field)
}

func TestBind_ConvertsLiterals(t *testing.T) {
	def := parcels(t)

	n, err := Bind(Equal(Val("12"), Col("OBJECTID")), def)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n.(Comparison).Left.(Value).Raw)

	_, err = Bind(Equal(Col("OBJECTID"), Val("twelve")), def)
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
}

func TestBind_LikeKeepsPattern(t *testing.T) {
	n, err := Bind(Like(Col("OBJECTID"), Val("1%")), parcels(t))
	require.NoError(t, err)

	v := n.(Comparison).Right.(Value)
	assert.Equal(t, "1%", v.Raw)
	assert.Nil(t, v.Field)
}

func TestBind_CodeTableSubstitution(t *testing.T) {
	def := parcels(t)

	n, err := Bind(InValues(Col("STATUS"), "Active", "Retired"), def)
	require.NoError(t, err)

	coll := n.(Membership).Values
	require.Len(t, coll.Values, 2)
	first := coll.Values[0].(Value)
	assert.Equal(t, int64(1), first.Raw)
	assert.Equal(t, "Active", first.Display)

	ok, err := Test(n.(Condition), record.Map{"STATUS": int64(2)})
	require.NoError(t, err)
	assert.True(t, ok, "in-memory evaluation compares stored identifiers")
}

func TestBind_CodeTableNotBoundToItself(t *testing.T) {
	codes := record.NewCodeTable("STATUS", record.Code{ID: 1, Value: "1"})
	def := record.MustDefinition("STATUS",
		&record.FieldDefinition{Name: "CODE", Type: record.Integer, CodeTable: codes},
	)

	n, err := Bind(Equal(Col("CODE"), Val("1")), def)
	require.NoError(t, err)
	v := n.(Comparison).Right.(Value)
	assert.Equal(t, int64(1), v.Raw)
	assert.Nil(t, v.Display)
}

func TestBind_DoesNotModifyInput(t *testing.T) {
	in := Equal(Col("name"), Val("x"))
	_, err := Bind(in, parcels(t))
	require.NoError(t, err)
	assert.Equal(t, "name", in.Left.(Column).Name)
	assert.Nil(t, in.Right.(Value).Field)
}

func TestBind_Spatial(t *testing.T) {
	def := parcels(t)
	box := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	n, err := Bind(Intersects(Col("shape"), box, 0), def)
	require.NoError(t, err)
	assert.Equal(t, 4326, n.(EnvelopeIntersects).SRID, "SRID defaults to the table's")

	n, err = Bind(DWithin(Col("SHAPE"), orb.Point{0, 0}, 3857, 10), def)
	require.NoError(t, err)
	assert.Equal(t, 3857, n.(WithinDistance).SRID)

	_, err = Bind(Intersects(Col("NAME"), box, 0), def)
	assert.True(t, IsSchemaError(err))
}

func TestBind_Nil(t *testing.T) {
	c, err := BindCondition(nil, parcels(t))
	require.NoError(t, err)
	assert.Nil(t, c)
}
