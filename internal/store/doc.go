// Package store provides the SQLite-backed transactional store that
// observations are tracked against.
//
// The Store owns a single-writer database handle. Reads for observation
// happen on dedicated connections (Conn), each opened against one serial
// dispatch queue and confined to it by the connection-access guard: every
// dereference asserts that the calling queue is allowed to touch the
// connection, and a snapshot read runs inside a read transaction so one
// fetch cycle sees a consistent view.
//
// Commits made through Store.Write notify registered observers after the
// transaction lands; that notification is what triggers a new fetch
// cycle. Writes made by other processes are picked up via polling on
// SQLite's data_version pragma, which Conn exposes for cheap
// did-anything-change checks.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
