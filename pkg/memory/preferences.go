package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PreferenceStore persists exact key/value settings with upsert semantics.
// Preferences are low-cardinality and never evicted.
type PreferenceStore struct {
	db     *db
	logger zerolog.Logger
	mu     sync.Mutex
}

func newPreferenceStore(d *db, logger zerolog.Logger) *PreferenceStore {
	return &PreferenceStore{db: d, logger: logger.With().Str("store", "preferences").Logger()}
}

func validatePreferenceKey(key string) error {
	if key == "" || strings.TrimSpace(key) != key || strings.ContainsAny(key, "\x00\n") {
		return ErrInvalidInput
	}
	return nil
}

// Set writes a preference, overwriting any existing value and timestamp for
// the key.
func (s *PreferenceStore) Set(ctx context.Context, key string, value any) error {
	if err := validatePreferenceKey(key); err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode preference value: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(encoded), now)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}

	s.logger.Debug().Str("key", key).Msg("Preference set")
	return nil
}

// Get returns the preference for key, or ErrNotFound.
func (s *PreferenceStore) Get(ctx context.Context, key string) (Preference, error) {
	if err := validatePreferenceKey(key); err != nil {
		return Preference{}, err
	}

	var encoded string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, updated_at FROM preferences WHERE key = ?", key,
	).Scan(&encoded, &updatedAt)
	if err == sql.ErrNoRows {
		return Preference{}, ErrNotFound
	}
	if err != nil {
		return Preference{}, fmt.Errorf("get preference: %w", err)
	}

	return decodePreference(key, encoded, updatedAt)
}

// All returns every preference, ordered by key.
func (s *PreferenceStore) All(ctx context.Context) ([]Preference, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM preferences ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		var key, encoded string
		var updatedAt int64
		if err := rows.Scan(&key, &encoded, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p, err := decodePreference(key, encoded, updatedAt)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// Delete removes a preference by exact key. Missing keys return false with
// no error.
func (s *PreferenceStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := validatePreferenceKey(key); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("delete preference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete preference: %w", err)
	}
	return n > 0, nil
}

// Count returns the number of stored preferences.
func (s *PreferenceStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM preferences").Scan(&n); err != nil {
		return 0, fmt.Errorf("count preferences: %w", err)
	}
	return n, nil
}

func decodePreference(key, encoded string, updatedAt int64) (Preference, error) {
	var value any
	if err := json.Unmarshal([]byte(encoded), &value); err != nil {
		return Preference{}, fmt.Errorf("decode preference %s: %w", key, err)
	}
	return Preference{Key: key, Value: value, UpdatedAt: time.Unix(0, updatedAt)}, nil
}
