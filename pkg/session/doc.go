// Package session tracks live conversations and persists their transcripts
// as JSONL files, one per session. When a session ends its messages are
// handed to a SummarySink so the memory layer can keep a condensed record.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized.
// - Ending a session is idempotent; a second End is a no-op.
package session
