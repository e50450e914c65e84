package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/vigil/internal/dispatch"
)

// Conn is a dedicated read connection bound to one dispatch queue for its
// whole lifetime. Conns are compared by identity, never by value; every
// dereference asserts the confinement guard first.
type Conn struct {
	id    string
	label string
	db    *sql.DB // private single-connection pool backing sqlc
	sqlc  *sql.Conn
}

// Snapshot is the consistent view a Reader executes against: one read
// transaction, valid only for the duration of a single Conn.Read call.
// It carries the read's context so reader functions stay one-argument
// capabilities.
type Snapshot struct {
	ctx context.Context
	tx  *sql.Tx
}

// Query runs a query against the snapshot.
func (sn *Snapshot) Query(query string, args ...any) (*sql.Rows, error) {
	return sn.tx.QueryContext(sn.ctx, query, args...)
}

// QueryRow runs a single-row query against the snapshot.
func (sn *Snapshot) QueryRow(query string, args ...any) *sql.Row {
	return sn.tx.QueryRowContext(sn.ctx, query, args...)
}

// Connect opens a dedicated read connection and binds it to q via the
// connection-access guard. The Conn may then only be used from tasks
// running on q (or inside a scoped widening on another guarded queue).
func (s *Store) Connect(ctx context.Context, q *dispatch.Queue, label string) (*Conn, error) {
	// A separate handle outside the single-writer pool, so reads never
	// queue behind writes and data_version reflects the writer's commits.
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}

	sqlc, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}

	conn := &Conn{
		id:    uuid.Must(uuid.NewV7()).String(),
		label: label,
		db:    db,
		sqlc:  sqlc,
	}
	dispatch.Bind(conn, q)
	return conn, nil
}

// ConnLabel implements dispatch.Conn.
func (c *Conn) ConnLabel() string {
	return fmt.Sprintf("%s(%s)", c.label, c.id[:8])
}

// Read runs fn inside a read transaction, giving it a consistent snapshot
// for exactly one fetch cycle. Asserts confinement before touching the
// connection.
//
// The transaction is deferred and only ever rolled back: under WAL the
// first read pins the snapshot, and nothing fn can do through a Snapshot
// writes. The sqlite3 driver does not support sql.TxOptions.ReadOnly.
func (c *Conn) Read(ctx context.Context, fn func(snap *Snapshot) error) error {
	dispatch.AssertAllowed(ctx, c)

	tx, err := c.sqlc.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	return fn(&Snapshot{ctx: ctx, tx: tx})
}

// DataVersion returns SQLite's data_version for this connection. The
// value changes whenever another connection commits a change to the
// database, which makes it a cheap did-anything-change probe between
// fetch cycles.
func (c *Conn) DataVersion(ctx context.Context) (int64, error) {
	dispatch.AssertAllowed(ctx, c)

	var version int64
	if err := c.sqlc.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("query data_version: %w", err)
	}
	return version, nil
}

// Close releases the connection. Must run on the owning queue.
func (c *Conn) Close(ctx context.Context) error {
	dispatch.AssertAllowed(ctx, c)

	err := c.sqlc.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}
