package memory

import (
	"fmt"
	"time"
)

// Category classifies a stored fact.
type Category string

const (
	CategoryPersonal   Category = "personal"
	CategoryWork       Category = "work"
	CategoryPreference Category = "preference"
	CategoryGeneral    Category = "general"
)

// Fact is an atomic, user-attributable statement stored for later retrieval.
// Content is immutable once stored; corrections are modeled as forget + remember.
type Fact struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	// Embedded reports whether the fact carries an embedding in the vector
	// table. Unembedded facts are scored via keyword overlap only.
	Embedded bool `json:"embedded"`
}

// Preference is an exact key/value user setting with last-write-wins semantics.
type Preference struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSummary captures one finished session. Immutable after creation;
// evicted once older than the retention window.
type ConversationSummary struct {
	SessionID    string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	Summary      string         `json:"summary"`
	Topics       []string       `json:"topics"`
	ToolUsage    map[string]int `json:"tool_usage"`
	MessageCount int            `json:"message_count"`
	Embedded     bool           `json:"embedded"`
}

// RetrievalResult is a transient scored match. Exactly one of Fact, Summary,
// or Preference is set. Preferences appear only for queries that mention
// them; they match by key, not by similarity.
type RetrievalResult struct {
	Fact       *Fact                `json:"fact,omitempty"`
	Summary    *ConversationSummary `json:"summary,omitempty"`
	Preference *Preference          `json:"preference,omitempty"`
	Relevance  float64              `json:"relevance"`
}

// createdAt returns the timestamp of the underlying record, used for recency
// tie-breaking.
func (r RetrievalResult) createdAt() time.Time {
	switch {
	case r.Fact != nil:
		return r.Fact.CreatedAt
	case r.Summary != nil:
		return r.Summary.CreatedAt
	case r.Preference != nil:
		return r.Preference.UpdatedAt
	}
	return time.Time{}
}

// Content returns the matched text of the underlying record.
func (r RetrievalResult) Content() string {
	switch {
	case r.Fact != nil:
		return r.Fact.Content
	case r.Summary != nil:
		return r.Summary.Summary
	case r.Preference != nil:
		return fmt.Sprintf("%s: %v", r.Preference.Key, r.Preference.Value)
	}
	return ""
}

// Message is a single conversation turn as handed to the summarizer.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stats reports store sizes for diagnostics.
type Stats struct {
	Facts       int    `json:"facts"`
	Preferences int    `json:"preferences"`
	Summaries   int    `json:"summaries"`
	DBPath      string `json:"db_path"`
}
