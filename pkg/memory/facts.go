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

// FactStore persists atomic facts with optional embeddings. Duplicate content
// is allowed; dedup is a caller concern. Writes are serialized per collection;
// reads run concurrently against WAL snapshots.
type FactStore struct {
	db     *db
	logger zerolog.Logger
	mu     sync.Mutex
}

func newFactStore(d *db, logger zerolog.Logger) *FactStore {
	return &FactStore{db: d, logger: logger.With().Str("store", "facts").Logger()}
}

// Put inserts a fact and, when embedding is non-nil, its vector. The embedding
// must match the store's dimension; a nil embedding stores the fact as the
// unembedded variant.
func (s *FactStore) Put(ctx context.Context, fact Fact, embedding []float32) error {
	if fact.ID == "" || fact.Content == "" {
		return ErrInvalidInput
	}
	if embedding != nil && len(embedding) != s.db.dimension {
		return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(embedding), s.db.dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fact insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO facts (id, content, category, created_at) VALUES (?, ?, ?, ?)",
		fact.ID, fact.Content, string(fact.Category), fact.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}

	if embedding != nil {
		blob, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO fact_embeddings (fact_id, embedding) VALUES (?, ?)",
			fact.ID, string(blob),
		)
		if err != nil {
			return fmt.Errorf("insert fact embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fact insert: %w", err)
	}

	s.logger.Debug().Str("fact_id", fact.ID).Str("category", string(fact.Category)).
		Bool("embedded", embedding != nil).Msg("Fact stored")
	return nil
}

// GetAll returns every stored fact, newest first.
func (s *FactStore) GetAll(ctx context.Context) ([]Fact, error) {
	if s.db.dimension == 0 {
		return s.getAllNoVec(ctx)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.content, f.category, f.created_at,
		       EXISTS(SELECT 1 FROM fact_embeddings e WHERE e.fact_id = f.id)
		FROM facts f
		ORDER BY f.created_at DESC, f.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// getAllNoVec lists facts without touching the vector table, for stores opened
// without an embedding provider.
func (s *FactStore) getAllNoVec(ctx context.Context) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, category, created_at, 0
		FROM facts
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Delete removes a fact and its embedding. Deleting a missing id is a no-op
// returning false.
func (s *FactStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin fact delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM facts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete fact: %w", err)
	}
	affected, _ := res.RowsAffected()

	if s.db.dimension > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM fact_embeddings WHERE fact_id = ?", id); err != nil {
			return false, fmt.Errorf("delete fact embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit fact delete: %w", err)
	}
	return affected > 0, nil
}

// Count returns the number of stored facts.
func (s *FactStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

// scoredFact pairs a fact with its cosine distance to a query embedding.
type scoredFact struct {
	fact     Fact
	distance float64
}

// similar ranks embedded facts by cosine distance to the query embedding,
// nearest first. Facts without embeddings are not returned here; callers
// score those via keyword overlap.
func (s *FactStore) similar(ctx context.Context, queryEmbedding []float32, limit int) ([]scoredFact, error) {
	blob, err := json.Marshal(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("marshal query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.content, f.category, f.created_at,
		       vec_distance_cosine(e.embedding, ?) AS distance
		FROM fact_embeddings e
		JOIN facts f ON f.id = e.fact_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(blob), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search facts: %w", err)
	}
	defer rows.Close()

	var results []scoredFact
	for rows.Next() {
		var f Fact
		var category string
		var createdAt int64
		var distance float64
		if err := rows.Scan(&f.ID, &f.Content, &category, &createdAt, &distance); err != nil {
			return nil, fmt.Errorf("scan scored fact: %w", err)
		}
		f.Category = Category(category)
		f.CreatedAt = time.Unix(0, createdAt)
		f.Embedded = true
		results = append(results, scoredFact{fact: f, distance: distance})
	}
	return results, rows.Err()
}

// unembedded returns facts that have no vector, the keyword-fallback variant.
func (s *FactStore) unembedded(ctx context.Context) ([]Fact, error) {
	if s.db.dimension == 0 {
		return s.getAllNoVec(ctx)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.content, f.category, f.created_at, 0
		FROM facts f
		WHERE NOT EXISTS(SELECT 1 FROM fact_embeddings e WHERE e.fact_id = f.id)
		ORDER BY f.created_at DESC, f.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list unembedded facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// evictOverCap deletes the oldest facts by created_at until at most keep
// remain. Pure FIFO; relevance and access frequency play no part.
func (s *FactStore) evictOverCap(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	excess := total - keep
	if excess <= 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin eviction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM facts ORDER BY created_at ASC, id ASC LIMIT ?", excess)
	if err != nil {
		return 0, fmt.Errorf("select eviction candidates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan eviction candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM facts WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("evict fact %s: %w", id, err)
		}
		if s.db.dimension > 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM fact_embeddings WHERE fact_id = ?", id); err != nil {
				return 0, fmt.Errorf("evict fact embedding %s: %w", id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit eviction: %w", err)
	}
	return len(ids), nil
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		var f Fact
		var category string
		var createdAt int64
		var embedded int
		if err := rows.Scan(&f.ID, &f.Content, &category, &createdAt, &embedded); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		f.Category = Category(category)
		f.CreatedAt = time.Unix(0, createdAt)
		f.Embedded = embedded != 0
		facts = append(facts, f)
	}
	return facts, rows.Err()
}
