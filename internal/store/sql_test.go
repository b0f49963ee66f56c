package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoquery/internal/query"
	"github.com/roach88/geoquery/internal/record"
)

// verifyPragma checks that a pragma is set to the expected value.
func verifyPragma(t *testing.T, s *SQLStore, name, expected string) {
	t.Helper()
	var value string
	require.NoError(t, s.DB().QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value))
	assert.Equal(t, expected, value, "PRAGMA %s", name)
}

// seed writes four parcels and returns them.
func seed(t *testing.T, s *SQLStore, def *record.Definition) []*record.Record {
	t.Helper()
	rs := []*record.Record{
		newParcel(t, def, "Lot 1", 120.5, 1, day(2024, 1, 15), orb.Point{1, 1}),
		newParcel(t, def, "Lot 2", 80, 2, day(2024, 3, 1), orb.Point{2, 2}),
		newParcel(t, def, "Garden", 45.25, 1, day(2023, 11, 30), orb.Point{3, 3}),
		newParcel(t, def, "lot 4", 300, 1, day(2024, 6, 10), nil),
	}
	w, err := s.Writer(t.Context(), def.Path)
	require.NoError(t, err)
	res, err := NewBatchWriter(w, slog.New(slog.DiscardHandler)).Write(t.Context(), rs)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, 4, res.Inserted)
	return rs
}

func names(t *testing.T, s *SQLStore, q *query.Query) []string {
	t.Helper()
	r, err := s.Query(t.Context(), q)
	require.NoError(t, err)
	rs, err := Collect(r)
	require.NoError(t, err)
	out := make([]string, len(rs))
	for i, rec := range rs {
		out[i], _ = rec.Value("NAME").(string)
	}
	return out
}

func TestOpenSQLite_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was created")
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	s, _ := createTestStore(t)

	verifyPragma(t, s, "journal_mode", "wal")
	verifyPragma(t, s, "synchronous", "1")
	verifyPragma(t, s, "busy_timeout", "5000")
	verifyPragma(t, s, "foreign_keys", "1")
}

func TestEnsureTables_Idempotent(t *testing.T) {
	s, _ := createTestStore(t)

	for range 3 {
		require.NoError(t, s.EnsureTables(t.Context()))
	}
	var name string
	err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", "Parcels").Scan(&name)
	require.NoError(t, err)
}

func TestSQLStore_InsertAssignsIdentifiers(t *testing.T) {
	s, def := createTestStore(t)
	rs := seed(t, s, def)

	for i, r := range rs {
		assert.Equal(t, int64(i+1), r.ID())
		assert.Equal(t, record.Persisted, r.State())
	}
}

func TestSQLStore_RoundTrip(t *testing.T) {
	s, def := createTestStore(t)
	seed(t, s, def)

	r, err := s.Query(t.Context(), query.New(def.Path).And(query.Equal(query.Col("OBJECTID"), query.Val(1))))
	require.NoError(t, err)
	rs, err := Collect(r)
	require.NoError(t, err)
	require.Len(t, rs, 1)

	got := rs[0]
	assert.Equal(t, record.Persisted, got.State())
	assert.Equal(t, "Lot 1", got.Value("NAME"))
	assert.Equal(t, 120.5, got.Value("AREA"))
	assert.Equal(t, int64(1), got.Value("STATUS"))
	assert.Equal(t, day(2024, 1, 15), got.Value("OPENED"))
	assert.Equal(t, orb.Point{1, 1}, got.Value("SHAPE"))
}

func TestSQLStore_Query(t *testing.T) {
	s, def := createTestStore(t)
	seed(t, s, def)

	tests := []struct {
		name string
		q    *query.Query
		want []string
	}{
		{
			name: "all rows in identifier order",
			q:    query.New(def.Path),
			want: []string{"Lot 1", "Lot 2", "Garden", "lot 4"},
		},
		{
			name: "code table value",
			q:    query.New(def.Path).And(query.Equal(query.Col("STATUS"), query.Val("Retired"))),
			want: []string{"Lot 2"},
		},
		{
			name: "like folds case",
			q:    query.New(def.Path).And(query.Like(query.Col("NAME"), query.Val("LOT%"))),
			want: []string{"Lot 1", "Lot 2", "lot 4"},
		},
		{
			name: "ilike folds case",
			q:    query.New(def.Path).And(query.ILike(query.Col("NAME"), query.Val("lot%"))),
			want: []string{"Lot 1", "Lot 2", "lot 4"},
		},
		{
			name: "date comparison",
			q:    query.New(def.Path).And(query.GreaterThanEqual(query.Col("OPENED"), query.Val("2024-03-01"))),
			want: []string{"Lot 2", "lot 4"},
		},
		{
			name: "membership",
			q:    query.New(def.Path).And(query.InValues(query.Col("OBJECTID"), 2, 3)),
			want: []string{"Lot 2", "Garden"},
		},
		{
			name: "empty membership",
			q:    query.New(def.Path).And(query.InValues(query.Col("OBJECTID"))),
			want: []string{},
		},
		{
			name: "null check",
			q:    query.New(def.Path).And(query.IsNull(query.Col("SHAPE"))),
			want: []string{"lot 4"},
		},
		{
			name: "arithmetic",
			q:    query.New(def.Path).And(query.GreaterThan(query.Multiply(query.Col("AREA"), query.Val(2)), query.Val(200))),
			want: []string{"Lot 1", "lot 4"},
		},
		{
			name: "ordered and paged",
			q:    query.New(def.Path).AddOrderBy("AREA", false).Page(1, 2),
			want: []string{"Lot 1", "Lot 2"},
		},
		{
			name: "offset only",
			q:    query.New(def.Path).Page(3, -1),
			want: []string{"lot 4"},
		},
		{
			name: "raw statement",
			q: &query.Query{
				TypePath:   def.Path,
				SQL:        `SELECT * FROM "Parcels" WHERE AREA < ? ORDER BY AREA`,
				Parameters: []any{100},
			},
			want: []string{"Garden", "Lot 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(t, s, tt.q))
		})
	}
}

func TestSQLStore_SpatialIsUnsupported(t *testing.T) {
	s, def := createTestStore(t)

	_, err := s.Query(t.Context(), query.New(def.Path).And(query.Intersects(query.Col("SHAPE"), orb.Bound{Max: orb.Point{1, 1}}, 4326)))
	assert.True(t, query.IsUnsupportedOperator(err))
}

func TestSQLStore_UnknownTable(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.Query(t.Context(), query.New("/Nope"))
	assert.True(t, query.IsSchemaError(err))

	_, err = s.Writer(t.Context(), "/Nope")
	assert.True(t, query.IsSchemaError(err))
}

func TestSQLStore_UpdateAndDelete(t *testing.T) {
	s, def := createTestStore(t)
	rs := seed(t, s, def)

	require.NoError(t, rs[0].Set("NAME", "Lot 1a"))
	require.NoError(t, rs[1].Delete())

	w, err := s.Writer(t.Context(), def.Path)
	require.NoError(t, err)
	res, err := NewBatchWriter(w, slog.New(slog.DiscardHandler)).Write(t.Context(), rs)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, BatchResult{Updated: 1, Deleted: 1, Skipped: 2}, res)
	assert.Equal(t, []string{"Lot 1a", "Garden", "lot 4"}, names(t, s, query.New(def.Path)))
}

func TestSQLStore_RowErrors(t *testing.T) {
	s, def := createTestStore(t)
	seed(t, s, def)

	w, err := s.Writer(t.Context(), def.Path)
	require.NoError(t, err)
	defer w.Close()

	missing := loaded(t, def, map[string]any{"OBJECTID": 99, "NAME": "ghost"})
	require.NoError(t, missing.Set("AREA", 1.0))
	err = w.Update(t.Context(), missing)
	require.True(t, IsRowError(err))
	assert.ErrorIs(t, err, ErrRowNotFound)

	err = w.Delete(t.Context(), missing)
	assert.ErrorIs(t, err, ErrRowNotFound)

	unnamed := record.NewRecord(def)
	err = w.Insert(t.Context(), unnamed)
	assert.True(t, IsRowError(err), "NOT NULL violations are confined to the record")

	duplicate := record.NewRecord(def)
	require.NoError(t, duplicate.SetValues(map[string]any{"OBJECTID": 1, "NAME": "dup"}))
	err = w.Insert(t.Context(), duplicate)
	assert.True(t, IsRowError(err), "primary key violations are confined to the record")
}
