package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/dispatch"
)

// recordViolations swaps the dispatch failure handler for a recorder.
// (Defined locally: testutil imports this package.)
func recordViolations(t *testing.T) func() []*dispatch.InvariantError {
	t.Helper()
	var mu sync.Mutex
	var errs []*dispatch.InvariantError
	restore := dispatch.SetFailureHandler(func(e *dispatch.InvariantError) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, e)
	})
	t.Cleanup(restore)
	return func() []*dispatch.InvariantError {
		mu.Lock()
		defer mu.Unlock()
		return append([]*dispatch.InvariantError(nil), errs...)
	}
}

func setupConn(t *testing.T, s *Store, label string) (*Conn, *dispatch.Queue) {
	t.Helper()
	q := dispatch.NewQueue(label + "-queue")
	conn, err := s.Connect(context.Background(), q, label)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = q.Sync(context.Background(), func(ctx context.Context) {
			_ = conn.Close(ctx)
		})
		q.Stop()
	})
	return conn, q
}

func TestConnect_BindsToQueue(t *testing.T) {
	s := setupTestStore(t)
	conn, q := setupConn(t, s, "reader")

	var onQueue bool
	err := q.Sync(context.Background(), func(ctx context.Context) {
		onQueue = dispatch.IsAllowed(ctx, conn)
	})
	require.NoError(t, err)

	assert.True(t, onQueue)
	assert.False(t, dispatch.IsAllowed(context.Background(), conn))
}

func TestConn_ReadOnOwningQueue(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Exec(context.Background(), "CREATE TABLE item (id INTEGER PRIMARY KEY)"))
	require.NoError(t, s.Exec(context.Background(), "INSERT INTO item DEFAULT VALUES"))

	conn, q := setupConn(t, s, "reader")

	var count int
	err := q.Sync(context.Background(), func(ctx context.Context) {
		readErr := conn.Read(ctx, func(snap *Snapshot) error {
			return snap.QueryRow("SELECT count(*) FROM item").Scan(&count)
		})
		require.NoError(t, readErr)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConn_ReadOffQueueIsViolation(t *testing.T) {
	violations := recordViolations(t)

	s := setupTestStore(t)
	conn, _ := setupConn(t, s, "reader")

	_ = conn.Read(context.Background(), func(snap *Snapshot) error { return nil })

	got := violations()
	require.NotEmpty(t, got)
	assert.Equal(t, dispatch.CodeGuardMissing, got[0].Code)
	assert.Equal(t, conn.ConnLabel(), got[0].Conn)
}

func TestConn_ReadSeesConsistentSnapshot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Exec(ctx, "CREATE TABLE item (id INTEGER PRIMARY KEY)"))
	require.NoError(t, s.Exec(ctx, "INSERT INTO item DEFAULT VALUES"))

	conn, q := setupConn(t, s, "reader")

	err := q.Sync(ctx, func(ctx context.Context) {
		readErr := conn.Read(ctx, func(snap *Snapshot) error {
			var before int
			if err := snap.QueryRow("SELECT count(*) FROM item").Scan(&before); err != nil {
				return err
			}
			require.Equal(t, 1, before)

			// Commit on the writer while the snapshot is pinned.
			require.NoError(t, s.Exec(context.Background(), "INSERT INTO item DEFAULT VALUES"))

			var after int
			if err := snap.QueryRow("SELECT count(*) FROM item").Scan(&after); err != nil {
				return err
			}
			assert.Equal(t, before, after, "a snapshot must not see mid-read commits")
			return nil
		})
		require.NoError(t, readErr)
	})
	require.NoError(t, err)

	// A fresh read sees the new row.
	var count int
	err = q.Sync(ctx, func(ctx context.Context) {
		readErr := conn.Read(ctx, func(snap *Snapshot) error {
			return snap.QueryRow("SELECT count(*) FROM item").Scan(&count)
		})
		require.NoError(t, readErr)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConn_DataVersionChangesOnCommit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Exec(ctx, "CREATE TABLE item (id INTEGER PRIMARY KEY)"))

	conn, q := setupConn(t, s, "reader")

	var v1, v2, v3 int64
	err := q.Sync(ctx, func(ctx context.Context) {
		var dvErr error
		v1, dvErr = conn.DataVersion(ctx)
		require.NoError(t, dvErr)
		v2, dvErr = conn.DataVersion(ctx)
		require.NoError(t, dvErr)
	})
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "data_version stable without commits")

	require.NoError(t, s.Exec(ctx, "INSERT INTO item DEFAULT VALUES"))

	err = q.Sync(ctx, func(ctx context.Context) {
		var dvErr error
		v3, dvErr = conn.DataVersion(ctx)
		require.NoError(t, dvErr)
	})
	require.NoError(t, err)
	assert.NotEqual(t, v2, v3, "data_version must change after a writer commit")
}
