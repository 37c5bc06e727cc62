package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "forge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Load(ctx, "archive")
	assert.ErrorIs(t, err, ErrNotFound)

	blob := []byte(`{"version":1}`)
	require.NoError(t, m.Save(ctx, "archive", blob))
	blob[0] = 'X'

	got, err := m.Load(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))
}

func TestSQLite_SaveLoadNewest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Load(ctx, "archive")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Save(ctx, "archive", []byte("one")))
	require.NoError(t, db.Save(ctx, "archive", []byte("two")))
	require.NoError(t, db.Save(ctx, "other", []byte("three")))

	got, err := db.Load(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	history, err := db.List(ctx, "archive")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Size)
	assert.Greater(t, history[0].ID, history[1].ID)
}

func TestSQLite_Prune(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	for _, b := range []string{"a", "b", "c", "d"} {
		require.NoError(t, db.Save(ctx, "archive", []byte(b)))
	}
	require.NoError(t, db.Save(ctx, "other", []byte("x")))

	removed, err := db.Prune(ctx, "archive", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	history, err := db.List(ctx, "archive")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	got, err := db.Load(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, "d", string(got))

	other, err := db.List(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "forge.db")

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, "archive", []byte("kept")))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Load(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))
}

func TestProjectDBPath(t *testing.T) {
	assert.Equal(t, filepath.Join("proj", ".forge", "forge.db"), ProjectDBPath("proj"))
}
