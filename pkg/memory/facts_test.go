package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDB(t *testing.T, dimension int) *db {
	t.Helper()
	d, err := openDB(filepath.Join(t.TempDir(), "memory.db"), dimension)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func testFact(id, content string, category Category, createdAt time.Time) Fact {
	return Fact{ID: id, Content: content, Category: category, CreatedAt: createdAt}
}

func TestFactStore_PutAndGetAll(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Put(ctx, testFact("a", "likes espresso", CategoryPreference, base), []float32{1, 0, 0, 0}))
	require.NoError(t, store.Put(ctx, testFact("b", "works at a bakery", CategoryWork, base.Add(time.Minute)), nil))

	facts, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)

	// Newest first.
	assert.Equal(t, "b", facts[0].ID)
	assert.False(t, facts[0].Embedded)
	assert.Equal(t, "a", facts[1].ID)
	assert.True(t, facts[1].Embedded)
	assert.Equal(t, CategoryPreference, facts[1].Category)
}

func TestFactStore_PutRejectsInvalidInput(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()

	err := store.Put(ctx, testFact("", "content", CategoryGeneral, time.Now()), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = store.Put(ctx, testFact("id", "", CategoryGeneral, time.Now()), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFactStore_PutRejectsWrongDimension(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())

	err := store.Put(context.Background(), testFact("a", "content", CategoryGeneral, time.Now()), []float32{1, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestFactStore_Delete(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testFact("a", "something", CategoryGeneral, time.Now()), []float32{1, 0, 0, 0}))

	deleted, err := store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFactStore_Similar(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, testFact("near", "near fact", CategoryGeneral, now), []float32{0.9, 0.1, 0, 0}))
	require.NoError(t, store.Put(ctx, testFact("far", "far fact", CategoryGeneral, now), []float32{0, 0, 0, 1}))
	require.NoError(t, store.Put(ctx, testFact("plain", "no vector", CategoryGeneral, now), nil))

	scored, err := store.similar(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, scored, 2, "unembedded facts never appear in vector results")

	assert.Equal(t, "near", scored[0].fact.ID)
	assert.Equal(t, "far", scored[1].fact.ID)
	assert.Less(t, scored[0].distance, scored[1].distance)
}

func TestFactStore_Unembedded(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, testFact("a", "embedded", CategoryGeneral, now), []float32{1, 0, 0, 0}))
	require.NoError(t, store.Put(ctx, testFact("b", "plain", CategoryGeneral, now.Add(time.Second)), nil))

	facts, err := store.unembedded(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "b", facts[0].ID)
}

func TestFactStore_EvictOverCap(t *testing.T) {
	store := newFactStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"oldest", "middle", "newest"} {
		f := testFact(id, "fact "+id, CategoryGeneral, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Put(ctx, f, []float32{1, 0, 0, 0}))
	}

	evicted, err := store.evictOverCap(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	facts, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	for _, f := range facts {
		assert.NotEqual(t, "oldest", f.ID)
	}

	// Under cap: nothing to do.
	evicted, err = store.evictOverCap(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)
}
