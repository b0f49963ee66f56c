package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoquery/internal/record"
)

func parcelDef(t *testing.T) *record.Definition {
	t.Helper()
	status := record.NewCodeTable("STATUS",
		record.Code{ID: 1, Value: "Active"},
		record.Code{ID: 2, Value: "Retired"},
	)
	def, err := record.NewDefinition("/Parcels",
		&record.FieldDefinition{Name: "OBJECTID", Type: record.Integer, Required: true},
		&record.FieldDefinition{Name: "NAME", Type: record.String, Required: true},
		&record.FieldDefinition{Name: "AREA", Type: record.Double},
		&record.FieldDefinition{Name: "STATUS", Type: record.Integer, CodeTable: status},
		&record.FieldDefinition{Name: "OPENED", Type: record.Date},
		&record.FieldDefinition{Name: "SHAPE", Type: record.Geometry},
	)
	require.NoError(t, err)
	def.IDField = "OBJECTID"
	def.GeometryField = "SHAPE"
	def.SRID = 4326
	return def
}

// newParcel creates a New record with the given values.
func newParcel(t *testing.T, def *record.Definition, name string, area float64, status int, opened time.Time, shape orb.Geometry) *record.Record {
	t.Helper()
	r := record.NewRecord(def)
	require.NoError(t, r.SetValues(map[string]any{
		"NAME":   name,
		"AREA":   area,
		"STATUS": status,
		"OPENED": opened,
		"SHAPE":  shape,
	}))
	return r
}

// loaded creates a Persisted record as a store would after reading it.
func loaded(t *testing.T, def *record.Definition, values map[string]any) *record.Record {
	t.Helper()
	r, err := LoadRecord(def, values)
	require.NoError(t, err)
	return r
}

// createTestStore opens a SQLite store in a temporary directory with the
// parcel table created.
func createTestStore(t *testing.T) (*SQLStore, *record.Definition) {
	t.Helper()
	def := parcelDef(t)
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), def)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureTables(t.Context()))
	return s, def
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
