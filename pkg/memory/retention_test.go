package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetention(t *testing.T, maxFacts int, retention time.Duration) (*RetentionManager, *FactStore, *SummaryStore, *PreferenceStore) {
	t.Helper()
	d := newTestDB(t, 0)
	facts := newFactStore(d, testLogger())
	summaries := newSummaryStore(d, testLogger())
	prefs := newPreferenceStore(d, testLogger())
	return newRetentionManager(facts, summaries, maxFacts, retention, testLogger()), facts, summaries, prefs
}

func TestRetention_EvictsOldestFactsOverCap(t *testing.T) {
	manager, facts, _, _ := newTestRetention(t, 2, 0)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"first", "second", "third", "fourth"} {
		f := testFact(id, "fact "+id, CategoryGeneral, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, facts.Put(ctx, f, nil))
	}

	res, err := manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FactsEvicted)

	remaining, err := facts.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "fourth", remaining[0].ID)
	assert.Equal(t, "third", remaining[1].ID)
}

func TestRetention_ExpiresOldSummaries(t *testing.T) {
	manager, _, summaries, _ := newTestRetention(t, 0, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, summaries.Put(ctx, testSummary("ses_old", "stale", now.Add(-8*24*time.Hour)), nil))
	require.NoError(t, summaries.Put(ctx, testSummary("ses_new", "fresh", now.Add(-time.Hour)), nil))

	res, err := manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SummariesEvicted)

	remaining, err := summaries.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "ses_new", remaining[0].SessionID)
}

func TestRetention_NeverTouchesPreferences(t *testing.T) {
	manager, facts, _, prefs := newTestRetention(t, 1, time.Nanosecond)
	ctx := context.Background()

	require.NoError(t, prefs.Set(ctx, "theme", "dark"))
	require.NoError(t, facts.Put(ctx, testFact("a", "fact a", CategoryGeneral, time.Now().Add(-time.Hour)), nil))
	require.NoError(t, facts.Put(ctx, testFact("b", "fact b", CategoryGeneral, time.Now()), nil))

	_, err := manager.Sweep(ctx)
	require.NoError(t, err)

	n, err := prefs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRetention_ZeroPolicyIsNoop(t *testing.T) {
	manager, facts, summaries, _ := newTestRetention(t, 0, 0)
	ctx := context.Background()

	require.NoError(t, facts.Put(ctx, testFact("a", "fact", CategoryGeneral, time.Now().Add(-365*24*time.Hour)), nil))
	require.NoError(t, summaries.Put(ctx, testSummary("ses_1", "old", time.Now().Add(-365*24*time.Hour)), nil))

	res, err := manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

func TestRetention_UpdatePolicyTakesEffect(t *testing.T) {
	manager, facts, _, _ := newTestRetention(t, 0, 0)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, facts.Put(ctx, testFact(id, "fact "+id, CategoryGeneral, base.Add(time.Duration(i)*time.Minute)), nil))
	}

	manager.UpdatePolicy(1, 0)

	res, err := manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FactsEvicted)
}

func TestRetention_NotifyTriggersSweep(t *testing.T) {
	manager, facts, _, _ := newTestRetention(t, 1, 0)
	ctx := context.Background()

	require.NoError(t, facts.Put(ctx, testFact("a", "fact a", CategoryGeneral, time.Now().Add(-time.Minute)), nil))
	require.NoError(t, facts.Put(ctx, testFact("b", "fact b", CategoryGeneral, time.Now()), nil))

	require.NoError(t, manager.Start(time.Hour))
	defer manager.Stop()

	manager.Notify()

	require.Eventually(t, func() bool {
		n, err := facts.Count(ctx)
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRetention_StopWithoutStart(t *testing.T) {
	manager, _, _, _ := newTestRetention(t, 0, 0)
	manager.Stop()
}

func TestRetention_NotifyNeverBlocks(t *testing.T) {
	manager, _, _, _ := newTestRetention(t, 0, 0)
	for i := 0; i < 10; i++ {
		manager.Notify()
	}
}
