package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSummary(sessionID, text string, createdAt time.Time) ConversationSummary {
	return ConversationSummary{
		SessionID:    sessionID,
		CreatedAt:    createdAt,
		Summary:      text,
		Topics:       []string{"coffee", "travel"},
		ToolUsage:    map[string]int{"weather": 2},
		MessageCount: 6,
	}
}

func TestSummaryStore_PutAndGetAll(t *testing.T) {
	store := newSummaryStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Put(ctx, testSummary("ses_1", "talked about coffee", base), []float32{1, 0, 0, 0}))
	require.NoError(t, store.Put(ctx, testSummary("ses_2", "talked about travel", base.Add(time.Minute)), nil))

	summaries, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest first.
	assert.Equal(t, "ses_2", summaries[0].SessionID)
	assert.False(t, summaries[0].Embedded)
	assert.Equal(t, "ses_1", summaries[1].SessionID)
	assert.True(t, summaries[1].Embedded)
	assert.Equal(t, []string{"coffee", "travel"}, summaries[1].Topics)
	assert.Equal(t, map[string]int{"weather": 2}, summaries[1].ToolUsage)
	assert.Equal(t, 6, summaries[1].MessageCount)
}

func TestSummaryStore_PutReplacesBySession(t *testing.T) {
	store := newSummaryStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, testSummary("ses_1", "first draft", now), nil))
	require.NoError(t, store.Put(ctx, testSummary("ses_1", "revised", now.Add(time.Second)), []float32{1, 0, 0, 0}))

	summaries, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "revised", summaries[0].Summary)
	assert.True(t, summaries[0].Embedded)
}

func TestSummaryStore_PutRejectsEmptySession(t *testing.T) {
	store := newSummaryStore(newTestDB(t, 4), testLogger())

	err := store.Put(context.Background(), testSummary("", "text", time.Now()), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSummaryStore_Delete(t *testing.T) {
	store := newSummaryStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, testSummary("ses_1", "text", time.Now()), []float32{1, 0, 0, 0}))

	deleted, err := store.Delete(ctx, "ses_1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, "ses_1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSummaryStore_DeleteOlderThan(t *testing.T) {
	store := newSummaryStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, testSummary("ses_old", "stale", now.Add(-10*24*time.Hour)), []float32{1, 0, 0, 0}))
	require.NoError(t, store.Put(ctx, testSummary("ses_new", "fresh", now), nil))

	deleted, err := store.deleteOlderThan(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	summaries, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "ses_new", summaries[0].SessionID)
}

func TestSummaryStore_Similar(t *testing.T) {
	store := newSummaryStore(newTestDB(t, 4), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, testSummary("ses_near", "close match", now), []float32{0.9, 0.1, 0, 0}))
	require.NoError(t, store.Put(ctx, testSummary("ses_far", "unrelated", now), []float32{0, 0, 0, 1}))

	scored, err := store.similar(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "ses_near", scored[0].summary.SessionID)
	assert.Less(t, scored[0].distance, scored[1].distance)
}
