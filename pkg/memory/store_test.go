package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	d, err := openDB(dbPath, 4)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, dbPath, d.path)
	assert.Equal(t, 4, d.dimension)

	// All tables exist
	for _, table := range []string{"facts", "preferences", "summaries", "metadata"} {
		var name string
		err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestOpenDB_NoVectorTablesWithoutProvider(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	d, err := openDB(dbPath, 0)
	require.NoError(t, err)
	defer d.Close()

	var count int
	err = d.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name='fact_embeddings'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestOpenDB_DimensionMismatchRejected(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	d, err := openDB(dbPath, 4)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = openDB(dbPath, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestOpenDB_ReopenSameDimension(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memory.db")

	d, err := openDB(dbPath, 4)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = openDB(dbPath, 4)
	require.NoError(t, err)
	defer d.Close()
}
