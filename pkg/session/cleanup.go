package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultCleanupAge = 7 * 24 * time.Hour
	DefaultMaxEntries = 500
)

// Cleanup removes transcripts of ended sessions once they are older than
// cleanupAge, and prunes oversized transcripts down to maxEntries. The
// summarized record in the memory store outlives the raw transcript.
type Cleanup struct {
	manager    *Manager
	cleanupAge time.Duration
	maxEntries int
	stopCh     chan struct{}
	running    bool
}

// NewCleanup creates a new transcript cleanup handler
func NewCleanup(manager *Manager, cleanupAge time.Duration) *Cleanup {
	if cleanupAge == 0 {
		cleanupAge = DefaultCleanupAge
	}

	return &Cleanup{
		manager:    manager,
		cleanupAge: cleanupAge,
		maxEntries: DefaultMaxEntries,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the cleanup handler
func (c *Cleanup) Start() error {
	if c.running {
		return fmt.Errorf("cleanup is already running")
	}

	c.running = true
	go c.run()

	log.Info().
		Dur("cleanup_age", c.cleanupAge).
		Msg("Transcript cleanup started")

	return nil
}

// Stop stops the cleanup handler
func (c *Cleanup) Stop() error {
	if !c.running {
		return fmt.Errorf("cleanup is not running")
	}

	close(c.stopCh)
	c.running = false

	log.Info().Msg("Transcript cleanup stopped")

	return nil
}

func (c *Cleanup) run() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	if err := c.CleanupNow(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to clean up transcripts")
	}

	for {
		select {
		case <-ticker.C:
			if err := c.CleanupNow(context.Background()); err != nil {
				log.Error().Err(err).Msg("Failed to clean up transcripts")
			}
		case <-c.stopCh:
			return
		}
	}
}

// CleanupNow runs one cleanup pass immediately.
func (c *Cleanup) CleanupNow(ctx context.Context) error {
	sessions, err := c.manager.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	liveSessions := make(map[string]struct{})
	for _, key := range c.manager.ActiveKeys() {
		liveSessions[key] = struct{}{}
	}

	now := time.Now()
	deleted := 0

	for _, sessionKey := range sessions {
		if err := c.pruneTranscript(ctx, sessionKey); err != nil {
			log.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to prune transcript")
		}

		// Live sessions are never cleaned up, however old the file looks.
		if _, live := liveSessions[sessionKey]; live {
			continue
		}

		info, err := c.manager.Info(ctx, sessionKey)
		if err != nil {
			log.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to get session info")
			continue
		}

		lastModified, ok := info["lastModified"].(time.Time)
		if !ok {
			continue
		}

		age := now.Sub(lastModified)
		if age >= c.cleanupAge {
			if err := c.manager.Delete(ctx, sessionKey); err != nil {
				log.Error().Str("session_key", sessionKey).Err(err).Msg("Failed to delete transcript")
				continue
			}
			deleted++

			log.Debug().
				Str("session_key", sessionKey).
				Dur("age", age).
				Msg("Transcript deleted")
		}
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Cleaned up old transcripts")
	}

	return nil
}

// pruneTranscript keeps only the newest maxEntries lines of a transcript.
func (c *Cleanup) pruneTranscript(ctx context.Context, sessionKey string) error {
	if c.maxEntries <= 0 {
		return nil
	}

	entries, err := c.manager.Load(ctx, sessionKey)
	if err != nil {
		return err
	}

	if len(entries) <= c.maxEntries {
		return nil
	}

	pruned := entries[len(entries)-c.maxEntries:]
	if err := c.manager.replaceTranscript(sessionKey, pruned); err != nil {
		return err
	}

	log.Debug().
		Str("session_key", sessionKey).
		Int("from_entries", len(entries)).
		Int("to_entries", len(pruned)).
		Msg("Transcript pruned")

	return nil
}

// IsRunning returns whether the cleanup is running
func (c *Cleanup) IsRunning() bool {
	return c.running
}

// SetCleanupAge sets the cleanup age
func (c *Cleanup) SetCleanupAge(age time.Duration) {
	c.cleanupAge = age
	log.Info().Dur("cleanup_age", age).Msg("Cleanup age updated")
}

// SetMaxEntries sets max entries retained per transcript after pruning.
func (c *Cleanup) SetMaxEntries(maxEntries int) {
	c.maxEntries = maxEntries
	log.Info().Int("max_entries", maxEntries).Msg("Transcript pruning max entries updated")
}
