// Package record provides the schema and row model shared by every record
// store backend.
//
// A Definition describes one table (catalog path, ordered fields, identifier
// and geometry field). A Record holds the values of one row in field order
// together with its lifecycle State:
//
//	Initializing → New → (Modified ⇄ Persisted) → Deleted
//
// Once a record has been persisted its identifier field can no longer be
// changed; a deleted record rejects every write.
//
// FieldDefinition carries the DataType used to convert raw values (literals
// from a query, strings from a schema file, driver values from a row scan)
// into the canonical Go representation for that type:
//
//	DataType     Go value
//	--------     --------
//	String       string
//	Integer      int64
//	Double       float64
//	Decimal      decimal.Decimal
//	Boolean      bool
//	Date         time.Time (midnight UTC)
//	Time         time.Time (on 0000-01-01)
//	Timestamp    time.Time
//	Geometry     orb.Geometry
//
// A field may be bound to a CodeTable, a bidirectional mapping between a
// compact stored identifier and the display value users write in queries.
package record
