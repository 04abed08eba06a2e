// Package store provides SQLite-backed durable storage for the contact graph.
//
// The store implements contact.Store over a single table:
//   - contacts: one row per observed (email, phone) fact, linked into clusters
//     through linked_id / link_precedence
//
// # Critical Patterns
//
// Append-only facts:
//   - Rows are never deleted. Only linked_id, link_precedence, updated_at and
//     deleted_at change after insertion.
//
// Deterministic query results:
//   - All list queries MUST include: ORDER BY created_at ASC, id ASC
//   - id breaks ties between rows stamped with the same clock value
//
// Atomic units of work:
//   - Every reconciliation runs inside InTx; any error rolls back all writes
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: linked_id must reference an existing row
//   - One open connection: transactions are serialized by the pool
//
// Two drivers are supported: "sqlite3" (github.com/mattn/go-sqlite3, cgo) and
// "sqlite" (modernc.org/sqlite, pure Go). The SQL is identical for both.
package store
