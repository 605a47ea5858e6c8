package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLAdapter {
	t.Helper()

	a, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "prepfire.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteAdapter_Contract(t *testing.T) {
	runRepositoryContract(t, newSQLite(t), "sqlite")
}

func TestSQLiteAdapter_MigrateIsIdempotent(t *testing.T) {
	a := newSQLite(t)
	require.NoError(t, a.Migrate(context.Background()))
	require.NoError(t, a.Migrate(context.Background()))
}
