package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factResult(content string, category Category, relevance float64) RetrievalResult {
	return RetrievalResult{
		Fact:      &Fact{ID: "f-" + content, Content: content, Category: category, CreatedAt: time.Now()},
		Relevance: relevance,
	}
}

func TestInjector_ToolFocusedIsEmpty(t *testing.T) {
	in := Injector{InjectLimit: 2}

	p := in.Build(StateToolFocused, []RetrievalResult{
		factResult("likes coffee", CategoryPreference, 0.95),
	})

	assert.Equal(t, StateToolFocused, p.State)
	assert.True(t, p.Empty())
}

func TestInjector_GeneralBuildsPairedTurns(t *testing.T) {
	in := Injector{InjectLimit: 2}

	p := in.Build(StateGeneral, []RetrievalResult{
		factResult("likes coffee", CategoryPreference, 0.95),
		factResult("works remotely", CategoryWork, 0.9),
	})

	assert.Equal(t, StateGeneral, p.State)
	assert.Empty(t, p.Text)
	require.Len(t, p.Turns, 4)

	assert.Equal(t, "user", p.Turns[0].Role)
	assert.Equal(t, "For context, the user previously mentioned: likes coffee", p.Turns[0].Content)
	assert.Equal(t, "assistant", p.Turns[1].Role)
	assert.Equal(t, "Noted.", p.Turns[1].Content)
	assert.Contains(t, p.Turns[2].Content, "works remotely")
}

func TestInjector_GeneralCapsAtInjectLimit(t *testing.T) {
	in := Injector{InjectLimit: 2}

	p := in.Build(StateGeneral, []RetrievalResult{
		factResult("a", CategoryGeneral, 0.99),
		factResult("b", CategoryGeneral, 0.95),
		factResult("c", CategoryGeneral, 0.91),
	})

	// Two results, two turns each.
	require.Len(t, p.Turns, 4)
	assert.Contains(t, p.Turns[0].Content, "a")
	assert.Contains(t, p.Turns[2].Content, "b")
}

func TestInjector_GeneralUsesSummaryPhrasing(t *testing.T) {
	in := Injector{InjectLimit: 2}
	summary := &ConversationSummary{SessionID: "ses_1", CreatedAt: time.Now(), Summary: "Planned a trip to Kyoto."}

	p := in.Build(StateGeneral, []RetrievalResult{{Summary: summary, Relevance: 0.9}})

	require.Len(t, p.Turns, 2)
	assert.Equal(t, "For context, a previous conversation covered: Planned a trip to Kyoto.", p.Turns[0].Content)
}

func TestInjector_RecallItemizesResults(t *testing.T) {
	in := Injector{InjectLimit: 2}
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	summary := &ConversationSummary{SessionID: "ses_1", CreatedAt: created, Summary: "Discussed sourdough starters."}

	p := in.Build(StateExplicitRecall, []RetrievalResult{
		factResult("likes coffee", CategoryPreference, 0.95),
		{Summary: summary, Relevance: 0.4},
	})

	assert.Equal(t, StateExplicitRecall, p.State)
	assert.Empty(t, p.Turns)
	assert.Equal(t,
		"Here's what I remember:\n"+
			"1. [preference] likes coffee\n"+
			"2. [conversation on 2026-03-14] Discussed sourdough starters.",
		p.Text)
}

func TestInjector_RecallRendersStoredSettings(t *testing.T) {
	in := Injector{InjectLimit: 2}
	pref := &Preference{Key: "language", Value: "pt"}

	p := in.Build(StateExplicitRecall, []RetrievalResult{
		factResult("likes coffee", CategoryPreference, 0.95),
		{Preference: pref, Relevance: 1},
	})

	assert.Equal(t,
		"Here's what I remember:\n"+
			"1. [preference] likes coffee\n"+
			"2. [setting] language: pt",
		p.Text)
}

func TestInjector_RecallWithNoResults(t *testing.T) {
	in := Injector{InjectLimit: 2}

	p := in.Build(StateExplicitRecall, nil)

	assert.Equal(t, "I don't have any stored memories matching that yet.", p.Text)
	assert.False(t, p.Empty())
}

func TestPayloadEmpty(t *testing.T) {
	assert.True(t, Payload{State: StateGeneral}.Empty())
	assert.False(t, Payload{Text: "x"}.Empty())
	assert.False(t, Payload{Turns: []Turn{{Role: "user", Content: "x"}}}.Empty())
}
