package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := setupTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.db"

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestWrite_CommitsAndNotifies(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	notified := 0
	cancel := s.Subscribe(func() { notified++ })
	defer cancel()

	err := s.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "CREATE TABLE item (id INTEGER PRIMARY KEY, name TEXT)")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, notified)

	require.NoError(t, s.Exec(ctx, "INSERT INTO item (name) VALUES (?)", "widget"))
	assert.Equal(t, 2, notified)

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT count(*) FROM item").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWrite_RollsBackWithoutNotifying(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Exec(ctx, "CREATE TABLE item (id INTEGER PRIMARY KEY, name TEXT)"))

	notified := 0
	cancel := s.Subscribe(func() { notified++ })
	defer cancel()

	writeErr := errors.New("abort")
	err := s.Write(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, "INSERT INTO item (name) VALUES (?)", "widget"); execErr != nil {
			return execErr
		}
		return writeErr
	})
	assert.ErrorIs(t, err, writeErr)
	assert.Equal(t, 0, notified, "failed write must not notify")

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT count(*) FROM item").Scan(&count))
	assert.Equal(t, 0, count, "failed write must roll back")
}

func TestSubscribe_CancelStopsNotifications(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	notified := 0
	cancel := s.Subscribe(func() { notified++ })

	require.NoError(t, s.Exec(ctx, "CREATE TABLE item (id INTEGER PRIMARY KEY)"))
	require.Equal(t, 1, notified)

	cancel()
	cancel() // safe to call twice

	require.NoError(t, s.Exec(ctx, "INSERT INTO item DEFAULT VALUES"))
	assert.Equal(t, 1, notified)
}
