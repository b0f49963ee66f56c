// Package store defines the record store contract and its relational
// implementation.
//
// A RecordStore answers a query.Query with a Reader and applies record
// changes through a Writer. Backends that cannot filter, order or page
// natively use Refine to finish the work in memory.
//
// # Writes
//
// BatchWriter dispatches each record by its lifecycle state:
//
//	New       → Insert (string identifiers are generated when empty)
//	Modified  → Update
//	Deleted   → Delete
//	Persisted → skipped
//
// A failure confined to one record (*RowError) is logged and the batch
// continues. Any other failure stops the batch.
//
// # Relational storage
//
// SQLStore runs on SQLite (go-sqlite3) or PostgreSQL (lib/pq) and compiles
// queries with package querysql. Every compiled query is ordered, with the
// identifier field as the final term, so paged reads are deterministic.
//
// SQLite connections are configured with:
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
