package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleTimeout = 30 * time.Minute
)

// Reaper ends sessions whose transcripts have gone idle, so abandoned
// conversations still get summarized into memory instead of lingering as
// live sessions forever.
type Reaper struct {
	manager     *Manager
	idleTimeout time.Duration
	stopCh      chan struct{}
	running     bool
}

// NewReaper creates a reaper for the manager's live sessions.
func NewReaper(manager *Manager, idleTimeout time.Duration) *Reaper {
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}

	return &Reaper{
		manager:     manager,
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
	}
}

// Start starts the reaper
func (r *Reaper) Start() error {
	if r.running {
		return fmt.Errorf("reaper is already running")
	}

	r.running = true
	go r.run()

	log.Info().
		Dur("idle_timeout", r.idleTimeout).
		Msg("Session reaper started")

	return nil
}

// Stop stops the reaper
func (r *Reaper) Stop() error {
	if !r.running {
		return fmt.Errorf("reaper is not running")
	}

	close(r.stopCh)
	r.running = false

	log.Info().Msg("Session reaper stopped")

	return nil
}

func (r *Reaper) run() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.ReapNow(context.Background()); err != nil {
				log.Error().Err(err).Msg("Failed to reap idle sessions")
			}
		case <-r.stopCh:
			return
		}
	}
}

// ReapNow ends every live session idle past the timeout.
func (r *Reaper) ReapNow(ctx context.Context) error {
	now := time.Now()
	reaped := 0

	for _, sessionKey := range r.manager.ActiveKeys() {
		info, err := r.manager.Info(ctx, sessionKey)
		if err != nil {
			log.Warn().Str("session_key", sessionKey).Err(err).Msg("Failed to get session info")
			continue
		}

		lastModified, ok := info["lastModified"].(time.Time)
		if !ok {
			continue
		}

		if now.Sub(lastModified) >= r.idleTimeout {
			if err := r.manager.End(ctx, sessionKey); err != nil {
				log.Error().Str("session_key", sessionKey).Err(err).Msg("Failed to end idle session")
				continue
			}
			reaped++
		}
	}

	if reaped > 0 {
		log.Info().Int("reaped", reaped).Msg("Ended idle sessions")
	}

	return nil
}

// IsRunning returns whether the reaper is running
func (r *Reaper) IsRunning() bool {
	return r.running
}

// SetIdleTimeout sets the idle timeout
func (r *Reaper) SetIdleTimeout(timeout time.Duration) {
	r.idleTimeout = timeout
	log.Info().Dur("idle_timeout", timeout).Msg("Idle timeout updated")
}
