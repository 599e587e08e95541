package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramkit/engram/pkg/memory"
)

// captureSink records what the manager hands off at session end.
type captureSink struct {
	sessionID string
	messages  []memory.Message
	toolUsage map[string]int
	calls     int
	err       error
}

func (s *captureSink) OnSessionEnd(_ context.Context, sessionID string, messages []memory.Message, toolUsage map[string]int) error {
	s.calls++
	s.sessionID = sessionID
	s.messages = messages
	s.toolUsage = toolUsage
	return s.err
}

func newTestManager(t *testing.T, sink SummarySink) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), sink)
	require.NoError(t, err)
	return m
}

func TestManager_BeginCreatesTranscript(t *testing.T) {
	m := newTestManager(t, nil)

	key, err := m.Begin(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "ses_"))

	info, err := os.Stat(m.transcriptPath(key))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Contains(t, m.ActiveKeys(), key)
}

func TestManager_AppendAndLoad(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Append(ctx, key, Message{Role: "user", Content: "hello"}))
	require.NoError(t, m.Append(ctx, key, Message{Role: "assistant", Content: "hi there"}))

	entries, err := m.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, key, entries[0].SessionKey)
	assert.Equal(t, "user", entries[0].Message.Role)
	assert.Equal(t, "hello", entries[0].Message.Content)
	assert.False(t, entries[0].Message.Timestamp.IsZero())
	assert.Equal(t, "hi there", entries[1].Message.Content)
}

func TestManager_AppendValidation(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)

	assert.Error(t, m.Append(ctx, key, Message{Role: "", Content: "x"}))
	assert.Error(t, m.Append(ctx, key, Message{Role: "user", Content: ""}))
	assert.Error(t, m.Append(ctx, "", Message{Role: "user", Content: "x"}))
}

func TestValidateSessionKey(t *testing.T) {
	assert.NoError(t, validateSessionKey("ses_abc123"))
	assert.Error(t, validateSessionKey(""))
	assert.Error(t, validateSessionKey("../escape"))
	assert.Error(t, validateSessionKey("a/b"))
	assert.Error(t, validateSessionKey("a\\b"))
	assert.Error(t, validateSessionKey("a\x00b"))
}

func TestManager_EndFlushesToSink(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(t, sink)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key, Message{Role: "user", Content: "hello"}))
	require.NoError(t, m.Append(ctx, key, Message{Role: "assistant", Content: "hi"}))
	m.RecordToolUse(key, "web_search")
	m.RecordToolUse(key, "web_search")

	require.NoError(t, m.End(ctx, key))

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, key, sink.sessionID)
	require.Len(t, sink.messages, 2)
	assert.Equal(t, memory.Message{Role: "user", Content: "hello"}, sink.messages[0])
	assert.Equal(t, map[string]int{"web_search": 2}, sink.toolUsage)

	assert.NotContains(t, m.ActiveKeys(), key)

	// Transcript stays on disk until cleanup.
	_, err = os.Stat(m.transcriptPath(key))
	assert.NoError(t, err)
}

func TestManager_EndIsIdempotent(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(t, sink)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key, Message{Role: "user", Content: "hello"}))

	require.NoError(t, m.End(ctx, key))
	require.NoError(t, m.End(ctx, key))
	assert.Equal(t, 1, sink.calls)
}

func TestManager_EndEmptySessionSkipsSink(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(t, sink)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, key))
	assert.Equal(t, 0, sink.calls)
}

func TestManager_LoadSkipsCorruptLines(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key, Message{Role: "user", Content: "valid"}))

	f, err := os.OpenFile(m.transcriptPath(key), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n{\"sessionKey\":\"" + key + "\",\"message\":{\"role\":\"\",\"content\":\"no role\"}}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, m.Append(ctx, key, Message{Role: "assistant", Content: "also valid"}))

	entries, err := m.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "valid", entries[0].Message.Content)
	assert.Equal(t, "also valid", entries[1].Message.Content)
}

func TestManager_LoadMissingTranscript(t *testing.T) {
	m := newTestManager(t, nil)

	entries, err := m.Load(context.Background(), "ses_missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_Repair(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key, Message{Role: "user", Content: "keep me"}))

	f, err := os.OpenFile(m.transcriptPath(key), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("garbage line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, m.Repair(ctx, key))

	raw, err := os.ReadFile(m.transcriptPath(key))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "keep me")
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, key))

	_, err = os.Stat(m.transcriptPath(key))
	assert.True(t, os.IsNotExist(err))
	assert.NotContains(t, m.ActiveKeys(), key)

	// Deleting again is fine.
	require.NoError(t, m.Delete(ctx, key))
}

func TestManager_List(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key1, err := m.Begin(ctx)
	require.NoError(t, err)
	key2, err := m.Begin(ctx)
	require.NoError(t, err)

	// A stray non-transcript file is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(m.transcriptsDir, "notes.txt"), []byte("x"), 0600))

	sessions, err := m.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{key1, key2}, sessions)
}

func TestManager_Info(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	key, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key, Message{Role: "user", Content: "hello"}))

	info, err := m.Info(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, info["sessionKey"])
	assert.Equal(t, 1, info["messageCount"])
	_, ok := info["lastModified"].(time.Time)
	assert.True(t, ok)

	_, err = m.Info(ctx, "ses_missing")
	assert.Error(t, err)
}

func TestManager_CloseEndsAllSessions(t *testing.T) {
	sink := &captureSink{}
	m := newTestManager(t, sink)
	ctx := context.Background()

	key1, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key1, Message{Role: "user", Content: "one"}))
	key2, err := m.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Append(ctx, key2, Message{Role: "user", Content: "two"}))

	require.NoError(t, m.Close(ctx))

	assert.Equal(t, 2, sink.calls)
	assert.Empty(t, m.ActiveKeys())
}
