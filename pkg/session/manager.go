package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/internal/tracing"
	"github.com/engramkit/engram/pkg/memory"
)

// Message represents a single conversation turn
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Entry represents a message with its session key
type Entry struct {
	SessionKey string  `json:"sessionKey"`
	Message    Message `json:"message"`
}

// SummarySink receives a finished session's messages. *memory.Service
// satisfies it.
type SummarySink interface {
	OnSessionEnd(ctx context.Context, sessionID string, messages []memory.Message, toolUsage map[string]int) error
}

// active tracks the in-memory state of a live session.
type active struct {
	messages  []memory.Message
	toolUsage map[string]int
}

// Manager manages live sessions and their JSONL transcripts.
type Manager struct {
	transcriptsDir string
	sink           SummarySink

	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex

	mu      sync.Mutex
	actives map[string]*active
}

// New creates a Manager storing transcripts under transcriptsDir. sink may be
// nil, in which case ended sessions are not summarized.
func New(transcriptsDir string, sink SummarySink) (*Manager, error) {
	observability.EnsureRegistered()

	if transcriptsDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		transcriptsDir = filepath.Join(homeDir, ".engram", "sessions")
	}

	if err := os.MkdirAll(transcriptsDir, 0700); err != nil {
		return nil, fmt.Errorf("create sessions directory: %w", err)
	}

	m := &Manager{
		transcriptsDir: transcriptsDir,
		sink:           sink,
		writeLocks:     make(map[string]*sync.Mutex),
		actives:        make(map[string]*active),
	}

	log.Info().Str("dir", transcriptsDir).Msg("Session manager initialized")

	return m, nil
}

// validateSessionKey validates the session key for security
func validateSessionKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (m *Manager) transcriptPath(sessionKey string) string {
	return filepath.Join(m.transcriptsDir, sessionKey+".jsonl")
}

// getWriteLock gets or creates a write lock for a session
func (m *Manager) getWriteLock(sessionKey string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.writeLocks[sessionKey]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	m.writeLocks[sessionKey] = lock
	return lock
}

func (m *Manager) releaseWriteLock(sessionKey string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.writeLocks, sessionKey)
}

// Begin starts a new session and returns its generated key.
func (m *Manager) Begin(ctx context.Context) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	sessionKey := "ses_" + id

	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(ctx, "engram.session", "session.begin",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	// Touch the transcript with restricted permissions
	file, err := os.OpenFile(m.transcriptPath(sessionKey), os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("create transcript: %w", err)
	}
	file.Close()

	m.mu.Lock()
	m.actives[sessionKey] = &active{toolUsage: make(map[string]int)}
	observability.SetActiveSessions(len(m.actives))
	m.mu.Unlock()

	logger.Info().Msg("Session started")
	return sessionKey, nil
}

// Append records a conversation turn: appended to the transcript and tracked
// in memory for the end-of-session summary.
func (m *Manager) Append(ctx context.Context, sessionKey string, message Message) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}
	if message.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if message.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(ctx, "engram.session", "session.append",
		attribute.String("session_key", sessionKey),
		attribute.String("role", message.Role),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	lock := m.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(m.transcriptPath(sessionKey), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(Entry{SessionKey: sessionKey, Message: message})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write message: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync transcript: %w", err)
	}

	m.mu.Lock()
	if a, ok := m.actives[sessionKey]; ok {
		a.messages = append(a.messages, memory.Message{Role: message.Role, Content: message.Content})
	}
	m.mu.Unlock()

	logger.Debug().Str("role", message.Role).Msg("Message appended")
	return nil
}

// RecordToolUse counts a tool invocation for the session summary.
func (m *Manager) RecordToolUse(sessionKey, toolName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actives[sessionKey]; ok {
		a.toolUsage[toolName]++
	}
}

// End finishes a session: its messages go to the summary sink and its live
// state is dropped. The transcript stays on disk until cleanup removes it.
// Ending an unknown or already-ended session is a no-op.
func (m *Manager) End(ctx context.Context, sessionKey string) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(ctx, "engram.session", "session.end",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	m.mu.Lock()
	a, ok := m.actives[sessionKey]
	if ok {
		delete(m.actives, sessionKey)
		observability.SetActiveSessions(len(m.actives))
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if m.sink != nil && len(a.messages) > 0 {
		if err := m.sink.OnSessionEnd(ctx, sessionKey, a.messages, a.toolUsage); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("summarize session: %w", err)
		}
	}

	logger.Info().Int("messages", len(a.messages)).Msg("Session ended")
	return nil
}

// Load reads all entries from a session transcript, skipping corrupt lines.
func (m *Manager) Load(ctx context.Context, sessionKey string) ([]Entry, error) {
	if err := validateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", sessionKey).Logger()

	path := m.transcriptPath(sessionKey)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []Entry{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if entry.Message.Role == "" || entry.Message.Content == "" {
			logger.Warn().Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return entries, nil
}

// Delete removes a session transcript and any live state without summarizing.
func (m *Manager) Delete(ctx context.Context, sessionKey string) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	lock := m.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.transcriptPath(sessionKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete transcript: %w", err)
	}

	m.releaseWriteLock(sessionKey)

	m.mu.Lock()
	delete(m.actives, sessionKey)
	observability.SetActiveSessions(len(m.actives))
	m.mu.Unlock()

	return nil
}

// List returns the keys of all sessions with a transcript on disk.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.transcriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read sessions directory: %w", err)
	}

	var sessions []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(name, ".jsonl"))
	}

	return sessions, nil
}

// ActiveKeys returns the keys of sessions currently live in memory.
func (m *Manager) ActiveKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.actives))
	for k := range m.actives {
		keys = append(keys, k)
	}
	return keys
}

// Repair rewrites a transcript keeping only parseable entries.
func (m *Manager) Repair(ctx context.Context, sessionKey string) error {
	entries, err := m.Load(ctx, sessionKey)
	if err != nil {
		return err
	}

	if err := m.replaceTranscript(sessionKey, entries); err != nil {
		return err
	}

	log.Info().Str("session_key", sessionKey).Int("entries", len(entries)).Msg("Transcript repaired")
	return nil
}

// replaceTranscript atomically rewrites a transcript with the given entries.
func (m *Manager) replaceTranscript(sessionKey string, entries []Entry) error {
	if err := validateSessionKey(sessionKey); err != nil {
		return err
	}

	lock := m.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	path := m.transcriptPath(sessionKey)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("marshal entry: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("write entry: %w", err)
		}
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replace transcript: %w", err)
	}

	return nil
}

// Info returns metadata about a session transcript.
func (m *Manager) Info(ctx context.Context, sessionKey string) (map[string]interface{}, error) {
	if err := validateSessionKey(sessionKey); err != nil {
		return nil, err
	}

	info, err := os.Stat(m.transcriptPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session does not exist")
		}
		return nil, fmt.Errorf("stat transcript: %w", err)
	}

	entries, err := m.Load(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"sessionKey":   sessionKey,
		"size":         info.Size(),
		"lastModified": info.ModTime(),
		"messageCount": len(entries),
	}, nil
}

// Close ends every live session, flushing summaries through the sink.
func (m *Manager) Close(ctx context.Context) error {
	for _, key := range m.ActiveKeys() {
		if err := m.End(ctx, key); err != nil {
			log.Error().Err(err).Str("session_key", key).Msg("Failed to end session on close")
		}
	}

	m.locksMu.Lock()
	m.writeLocks = make(map[string]*sync.Mutex)
	m.locksMu.Unlock()

	log.Info().Msg("Session manager closed")
	return nil
}
