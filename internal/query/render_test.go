package query

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoquery/internal/record"
)

func TestToSQL(t *testing.T) {
	testCases := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "equal",
			node: Equal(Col("NAME"), Val("x")),
			want: "NAME = ?",
		},
		{
			name: "lower case column is quoted",
			node: Equal(Col("name"), Val("x")),
			want: `"name" = ?`,
		},
		{
			name: "schema qualified column",
			node: GreaterThan(Col("GIS.AREA"), Val(10)),
			want: "GIS.AREA > ?",
		},
		{
			name: "embedded quote in column",
			node: IsNull(Col(`a"b`)),
			want: `"a""b" IS NULL`,
		},
		{
			name: "nested logical",
			node: And(
				Equal(Col("A"), Val(1)),
				Or(Equal(Col("B"), Val(2)), GreaterThan(Col("C"), Val(3))),
			),
			want: "(A = ? AND (B = ? OR C > ?))",
		},
		{
			name: "not",
			node: Not(IsNotNull(Col("A"))),
			want: "NOT (A IS NOT NULL)",
		},
		{
			name: "in",
			node: InValues(Col("A"), 1, 2, 3),
			want: "A IN (?, ?, ?)",
		},
		{
			name: "empty in",
			node: InValues(Col("A")),
			want: "1 = 0",
		},
		{
			name: "empty and",
			node: And(),
			want: "1 = 1",
		},
		{
			name: "empty or",
			node: Or(),
			want: "1 = 1",
		},
		{
			name: "like",
			node: Like(Col("NAME"), Val("A%")),
			want: "UPPER(CAST(NAME AS VARCHAR(4000))) LIKE UPPER(?)",
		},
		{
			name: "ilike",
			node: ILike(Col("NAME"), Val("a%")),
			want: "UPPER(CAST(NAME AS VARCHAR(4000))) LIKE UPPER(?)",
		},
		{
			name: "arithmetic in parenthesis",
			node: LessThan(Paren(Add(Col("A"), Val(1))), Mod(Col("B"), Val(2))),
			want: "(A + ?) < B % ?",
		},
		{
			name: "raw sql keeps markers",
			node: And(RawSQL("A = ? OR B = ?", 1, 2), Equal(Col("C"), Val(3))),
			want: "(A = ? OR B = ? AND C = ?)",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToSQL(tc.node)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToSQL_SpatialNeedsDialect(t *testing.T) {
	_, err := ToSQL(And(Intersects(Col("SHAPE"), orb.Bound{Max: orb.Point{1, 1}}, 4326)))
	require.Error(t, err)
	assert.True(t, IsUnsupportedOperator(err))
	assert.Contains(t, err.Error(), "ENVELOPE_INTERSECTS")
}

func TestAppendParameters_Order(t *testing.T) {
	n := And(
		Equal(Col("A"), Val(1)),
		RawSQL("B BETWEEN ? AND ?", 2, 3),
		InValues(Col("C"), "x", "y"),
		InValues(Col("D")),
		Not(LessThan(Add(Col("E"), Val(4)), Val(5))),
	)

	next, args := AppendParameters(n, 1, nil)
	assert.Equal(t, []any{1, 2, 3, "x", "y", 4, 5}, args)
	assert.Equal(t, 8, next)
}

// Placeholder count equals the parameter index delta for any tree built from
// columns, values and boolean operators.
func TestAppendParameters_MatchesPlaceholders(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		n := randomCondition(rng, 4)
		sql, err := ToSQL(n)
		require.NoError(t, err)

		start := rng.IntN(10)
		next, args := AppendParameters(n, start, nil)
		assert.Equal(t, strings.Count(sql, "?"), next-start, sql)
		assert.Len(t, args, next-start)
	}
}

func randomCondition(rng *rand.Rand, depth int) Condition {
	if depth == 0 {
		return Equal(Col("A"), Val(rng.IntN(100)))
	}
	switch rng.IntN(6) {
	case 0:
		return Equal(Col("A"), Val(rng.IntN(100)))
	case 1:
		return Not(randomCondition(rng, depth-1))
	case 2:
		return IsNull(Col("B"))
	case 3:
		vs := make([]any, rng.IntN(4))
		for i := range vs {
			vs[i] = i
		}
		return InValues(Col("C"), vs...)
	case 4:
		cs := make([]Condition, rng.IntN(4))
		for i := range cs {
			cs[i] = randomCondition(rng, depth-1)
		}
		return Or(cs...)
	default:
		cs := make([]Condition, rng.IntN(4))
		for i := range cs {
			cs[i] = randomCondition(rng, depth-1)
		}
		return And(cs...)
	}
}

func TestCollection_BoundFieldSharesPlaceholder(t *testing.T) {
	day := &record.FieldDefinition{Name: "DAY", Type: record.Date, Placeholder: "DATE(?)"}
	other := &record.FieldDefinition{Name: "OTHER", Type: record.String, Placeholder: "TRIM(?)"}
	def := record.MustDefinition("/Events", day, other)

	bound, err := Bind(InValues(Col("DAY"), "2024-01-01", "2024-02-01"), def)
	require.NoError(t, err)
	sql, err := ToSQL(bound)
	require.NoError(t, err)
	assert.Equal(t, "DAY IN (DATE(?), DATE(?))", sql)

	// An unbound collection renders each element with its own placeholder.
	mixed := In(Col("DAY"), Collection{Values: []Node{FieldValue(other, "a"), Val("b")}})
	sql, err = ToSQL(mixed)
	require.NoError(t, err)
	assert.Equal(t, "DAY IN (TRIM(?), ?)", sql)
}

func TestFormat(t *testing.T) {
	day := &record.FieldDefinition{Name: "DAY", Type: record.Date}
	at := &record.FieldDefinition{Name: "AT", Type: record.Time}
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	testCases := []struct {
		name string
		node Node
		want string
	}{
		{name: "string", node: Equal(Col("NAME"), Val("O'Brien")), want: "NAME = 'O''Brien'"},
		{name: "number", node: GreaterThan(Col("AREA"), Val(2.5)), want: "AREA > 2.5"},
		{name: "null", node: Equal(Col("A"), Val(nil)), want: "A = NULL"},
		{name: "bool", node: Equal(Col("A"), Val(true)), want: "A = TRUE"},
		{name: "date", node: Equal(Col("DAY"), FieldValue(day, ts)), want: "DAY = {d '2024-03-01'}"},
		{name: "time", node: Equal(Col("AT"), FieldValue(at, ts)), want: "AT = {t '10:30:00'}"},
		{name: "timestamp", node: Equal(Col("TS"), Val(ts)), want: "TS = {ts '2024-03-01 10:30:00.000'}"},
		{name: "in", node: InValues(Col("A"), 1, "b"), want: "A IN (1, 'b')"},
		{name: "raw", node: RawSQL("A = ? AND B = ?", 1, "x"), want: "A = 1 AND B = 'x'"},
		{name: "raw marker in string", node: RawSQL("A = '?' AND B = ?", 1), want: "A = '?' AND B = 1"},
		{name: "ilike", node: ILike(Col("N"), Val("a%")), want: "N ILIKE 'a%'"},
		{name: "empty and", node: And(), want: "1 = 1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(tc.node))
		})
	}
}

func TestFormat_DisplayValue(t *testing.T) {
	status := &record.FieldDefinition{
		Name:      "STATUS",
		Type:      record.Integer,
		CodeTable: record.NewCodeTable("STATUS", record.Code{ID: 1, Value: "Active"}),
	}
	def := record.MustDefinition("/Parcels", status)

	bound, err := Bind(Equal(Col("STATUS"), Val("Active")), def)
	require.NoError(t, err)
	assert.Equal(t, "STATUS = 'Active'", bound.(Comparison).String())

	_, args := AppendParameters(bound, 1, nil)
	assert.Equal(t, []any{int64(1)}, args)
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "OBJECTID", QuoteName("OBJECTID"))
	assert.Equal(t, "GIS.PARCELS", QuoteName("GIS.PARCELS"))
	assert.Equal(t, `"Name"`, QuoteName("Name"))
	assert.Equal(t, `"1A"`, QuoteName("1A"))
	assert.Equal(t, `"A.B.C"`, QuoteName("A.B.C"))
}

type upperExtension struct{}

func (upperExtension) AppendSQL(w *SQLWriter, n Node) (bool, error) {
	if c, ok := n.(Column); ok {
		w.WriteString("t." + c.Name)
		return true, nil
	}
	return false, nil
}

func (upperExtension) AppendParameters(Node, int, []any) (int, []any, bool) {
	return 0, nil, false
}

func TestSQLWriter_Extension(t *testing.T) {
	w := NewSQLWriter(upperExtension{})
	require.NoError(t, w.Append(And(Equal(Col("A"), Val(1)), IsNull(Col("B")))))
	assert.Equal(t, "(t.A = ? AND t.B IS NULL)", w.String())
}
