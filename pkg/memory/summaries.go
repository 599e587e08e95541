package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SummaryStore persists one ConversationSummary per finished session.
// Summaries are immutable after creation and evicted by age.
type SummaryStore struct {
	db     *db
	logger zerolog.Logger
	mu     sync.Mutex
}

func newSummaryStore(d *db, logger zerolog.Logger) *SummaryStore {
	return &SummaryStore{db: d, logger: logger.With().Str("store", "summaries").Logger()}
}

// Put inserts a summary and, when embedding is non-nil, its vector. A second
// write for the same session replaces the first; sessions end once.
func (s *SummaryStore) Put(ctx context.Context, summary ConversationSummary, embedding []float32) error {
	if summary.SessionID == "" {
		return ErrInvalidInput
	}
	if embedding != nil && len(embedding) != s.db.dimension {
		return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(embedding), s.db.dimension)
	}

	topics, err := json.Marshal(summary.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	toolUsage, err := json.Marshal(summary.ToolUsage)
	if err != nil {
		return fmt.Errorf("marshal tool usage: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin summary insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO summaries (session_id, created_at, summary, topics, tool_usage, message_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, summary.SessionID, summary.CreatedAt.UnixNano(), summary.Summary,
		string(topics), string(toolUsage), summary.MessageCount)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}

	if embedding != nil {
		blob, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO summary_embeddings (session_id, embedding) VALUES (?, ?)",
			summary.SessionID, string(blob),
		)
		if err != nil {
			return fmt.Errorf("insert summary embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary insert: %w", err)
	}

	s.logger.Debug().Str("session_id", summary.SessionID).
		Int("message_count", summary.MessageCount).Msg("Summary stored")
	return nil
}

// GetAll returns every stored summary, newest first.
func (s *SummaryStore) GetAll(ctx context.Context) ([]ConversationSummary, error) {
	query := `
		SELECT c.session_id, c.created_at, c.summary, c.topics, c.tool_usage, c.message_count,
		       EXISTS(SELECT 1 FROM summary_embeddings e WHERE e.session_id = c.session_id)
		FROM summaries c
		ORDER BY c.created_at DESC, c.session_id DESC
	`
	if s.db.dimension == 0 {
		query = `
			SELECT session_id, created_at, summary, topics, tool_usage, message_count, 0
			FROM summaries
			ORDER BY created_at DESC, session_id DESC
		`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// Delete removes a summary and its embedding. Missing ids are a no-op.
func (s *SummaryStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ctx, sessionID)
}

func (s *SummaryStore) deleteLocked(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM summaries WHERE session_id = ?", sessionID)
	if err != nil {
		return false, fmt.Errorf("delete summary: %w", err)
	}
	if s.db.dimension > 0 {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM summary_embeddings WHERE session_id = ?", sessionID); err != nil {
			return false, fmt.Errorf("delete summary embedding: %w", err)
		}
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// deleteOlderThan removes summaries created before cutoff, for the retention
// sweep.
func (s *SummaryStore) deleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM summaries WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("select expired summaries: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired summary: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := s.deleteLocked(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Count returns the number of stored summaries.
func (s *SummaryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count summaries: %w", err)
	}
	return n, nil
}

// scoredSummary pairs a summary with its cosine distance to a query embedding.
type scoredSummary struct {
	summary  ConversationSummary
	distance float64
}

// similar ranks embedded summaries by cosine distance, nearest first.
func (s *SummaryStore) similar(ctx context.Context, queryEmbedding []float32, limit int) ([]scoredSummary, error) {
	blob, err := json.Marshal(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("marshal query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.session_id, c.created_at, c.summary, c.topics, c.tool_usage, c.message_count,
		       vec_distance_cosine(e.embedding, ?) AS distance
		FROM summary_embeddings e
		JOIN summaries c ON c.session_id = e.session_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(blob), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search summaries: %w", err)
	}
	defer rows.Close()

	var results []scoredSummary
	for rows.Next() {
		var c ConversationSummary
		var createdAt int64
		var topics, toolUsage string
		var distance float64
		if err := rows.Scan(&c.SessionID, &createdAt, &c.Summary, &topics, &toolUsage, &c.MessageCount, &distance); err != nil {
			return nil, fmt.Errorf("scan scored summary: %w", err)
		}
		if err := decodeSummaryJSON(&c, topics, toolUsage); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, createdAt)
		c.Embedded = true
		results = append(results, scoredSummary{summary: c, distance: distance})
	}
	return results, rows.Err()
}

// unembedded returns summaries without a vector, for the keyword path.
func (s *SummaryStore) unembedded(ctx context.Context) ([]ConversationSummary, error) {
	if s.db.dimension == 0 {
		return s.GetAll(ctx)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.session_id, c.created_at, c.summary, c.topics, c.tool_usage, c.message_count, 0
		FROM summaries c
		WHERE NOT EXISTS(SELECT 1 FROM summary_embeddings e WHERE e.session_id = c.session_id)
		ORDER BY c.created_at DESC, c.session_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list unembedded summaries: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]ConversationSummary, error) {
	var summaries []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		var createdAt int64
		var topics, toolUsage string
		var embedded int
		if err := rows.Scan(&c.SessionID, &createdAt, &c.Summary, &topics, &toolUsage, &c.MessageCount, &embedded); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if err := decodeSummaryJSON(&c, topics, toolUsage); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, createdAt)
		c.Embedded = embedded != 0
		summaries = append(summaries, c)
	}
	return summaries, rows.Err()
}

func decodeSummaryJSON(c *ConversationSummary, topics, toolUsage string) error {
	if err := json.Unmarshal([]byte(topics), &c.Topics); err != nil {
		return fmt.Errorf("decode topics for %s: %w", c.SessionID, err)
	}
	if err := json.Unmarshal([]byte(toolUsage), &c.ToolUsage); err != nil {
		return fmt.Errorf("decode tool usage for %s: %w", c.SessionID, err)
	}
	return nil
}
