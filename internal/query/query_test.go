package query

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Unbounded(t *testing.T) {
	q := New("/Parcels")
	assert.Equal(t, Unbounded, q.Limit)
	assert.False(t, q.IsPaged())

	q.Page(10, 5)
	assert.True(t, q.IsPaged())
	assert.Equal(t, 10, q.Offset)
	assert.Equal(t, 5, q.Limit)

	q.Page(-1, -1)
	assert.Equal(t, 0, q.Offset)
	assert.Equal(t, Unbounded, q.Limit)
}

func TestQuery_And(t *testing.T) {
	a := Equal(Col("A"), Val(1))
	b := Equal(Col("B"), Val(2))
	c := Equal(Col("C"), Val(3))

	q := New("/T").And(a)
	assert.Equal(t, Condition(a), q.Where)

	q.And(b).And(c).And(nil)
	assert.True(t, EqualNodes(And(a, b, c), q.Where))
}

func TestQuery_Bind(t *testing.T) {
	def := parcels(t)
	q := New("/Parcels").And(Equal(Col("name"), Val("x"))).AddOrderBy("area", false)
	q.Fields = []string{"objectid", "NAME"}

	bound, err := q.Bind(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"OBJECTID", "NAME"}, bound.Fields)
	assert.Equal(t, []Order{{Field: "AREA", Ascending: false}}, bound.OrderBy)
	assert.Equal(t, []string{"objectid", "NAME"}, q.Fields, "the receiver is not modified")

	q.Fields = []string{"NOPE"}
	_, err = q.Bind(def)
	assert.True(t, IsSchemaError(err))
}

func TestQuery_String(t *testing.T) {
	q := New("/Parcels").
		And(Equal(Col("NAME"), Val("x"))).
		AddOrderBy("AREA", false).
		Page(10, 5)
	assert.Equal(t, "/Parcels WHERE NAME = 'x' ORDER BY AREA DESC OFFSET 10 LIMIT 5", q.String())
}

func TestHasSpatial(t *testing.T) {
	assert.False(t, HasSpatial(And(Equal(Col("A"), Val(1)))))
	assert.True(t, HasSpatial(Or(Equal(Col("A"), Val(1)), Not(DWithin(Col("S"), orb.Point{}, 0, 1)))))
}
