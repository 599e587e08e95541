package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/engramkit/engram/internal/observability"
)

// SweepResult reports what one retention pass removed.
type SweepResult struct {
	FactsEvicted     int `json:"facts_evicted"`
	SummariesEvicted int `json:"summaries_evicted"`
}

// RetentionManager enforces store caps in the background: oldest-first fact
// eviction over the cap and summary expiry past the retention window.
// Preferences are never touched. Sweeps run on a cron interval and are also
// nudged after writes via Notify.
type RetentionManager struct {
	facts     *FactStore
	summaries *SummaryStore
	logger    zerolog.Logger

	mu        sync.Mutex
	maxFacts  int
	retention time.Duration

	cron   *cron.Cron
	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

func newRetentionManager(facts *FactStore, summaries *SummaryStore, maxFacts int, retention time.Duration, logger zerolog.Logger) *RetentionManager {
	return &RetentionManager{
		facts:     facts,
		summaries: summaries,
		logger:    logger.With().Str("component", "retention").Logger(),
		maxFacts:  maxFacts,
		retention: retention,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start schedules periodic sweeps and begins servicing write notifications.
func (m *RetentionManager) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		m.runSweep("schedule")
	}); err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	m.cron.Start()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.done:
				return
			case <-m.notify:
				m.runSweep("write")
			}
		}
	}()

	return nil
}

// Notify nudges the manager that a write happened. Never blocks; a sweep
// already pending absorbs the signal.
func (m *RetentionManager) Notify() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Stop halts scheduled and notification-driven sweeps and waits for any
// in-flight sweep to finish.
func (m *RetentionManager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	close(m.done)
	m.wg.Wait()
}

// UpdatePolicy swaps the cap and retention window for subsequent sweeps.
func (m *RetentionManager) UpdatePolicy(maxFacts int, retention time.Duration) {
	m.mu.Lock()
	m.maxFacts = maxFacts
	m.retention = retention
	m.mu.Unlock()
	m.Notify()
}

func (m *RetentionManager) runSweep(trigger string) {
	res, err := m.Sweep(context.Background())
	if err != nil {
		m.logger.Error().Err(err).Str("trigger", trigger).Msg("retention sweep failed")
		return
	}
	if res.FactsEvicted > 0 || res.SummariesEvicted > 0 {
		m.logger.Info().
			Str("trigger", trigger).
			Int("facts_evicted", res.FactsEvicted).
			Int("summaries_evicted", res.SummariesEvicted).
			Msg("retention sweep")
	}
}

// Sweep runs one retention pass synchronously and returns what it removed.
func (m *RetentionManager) Sweep(ctx context.Context) (SweepResult, error) {
	m.mu.Lock()
	maxFacts := m.maxFacts
	retention := m.retention
	m.mu.Unlock()

	var res SweepResult

	if maxFacts > 0 {
		n, err := m.facts.evictOverCap(ctx, maxFacts)
		if err != nil {
			return res, fmt.Errorf("evict facts: %w", err)
		}
		res.FactsEvicted = n
		if n > 0 {
			observability.RecordEvictions("fact", n)
		}
	}

	if retention > 0 {
		cutoff := time.Now().Add(-retention)
		n, err := m.summaries.deleteOlderThan(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("expire summaries: %w", err)
		}
		res.SummariesEvicted = n
		if n > 0 {
			observability.RecordEvictions("summary", n)
		}
	}

	if facts, err := m.facts.Count(ctx); err == nil {
		observability.SetFacts(facts)
	}
	if summaries, err := m.summaries.Count(ctx); err == nil {
		observability.SetSummaries(summaries)
	}

	return res, nil
}
