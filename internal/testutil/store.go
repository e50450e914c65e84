package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/store"
)

// OpenStore creates a SQLite store in a temp directory, closed on cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(dir + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// MustExec runs a write statement and fails the test on error.
func MustExec(t *testing.T, st *store.Store, query string, args ...any) {
	t.Helper()
	require.NoError(t, st.Exec(context.Background(), query, args...))
}
