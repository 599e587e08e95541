package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/internal/tracing"
)

// Policy holds the tunable thresholds governing retrieval, injection, and
// retention. All values have sensible defaults; zero values fall back to
// DefaultPolicy.
type Policy struct {
	// GeneralFloor is the minimum relevance for general-state injection.
	GeneralFloor float64 `json:"general_floor"`
	// RecallFloor is the minimum relevance for explicit recall, deliberately
	// low so "what do you know about me" surfaces broadly.
	RecallFloor float64 `json:"recall_floor"`
	// ForgetFloor is the minimum relevance a fact must reach to be deleted
	// by a forget query.
	ForgetFloor float64 `json:"forget_floor"`
	// InjectLimit caps memories injected for general queries.
	InjectLimit int `json:"inject_limit"`
	// RecallLimit caps results for explicit recall.
	RecallLimit int `json:"recall_limit"`
	// MaxFacts is the store cap; oldest facts are evicted past it.
	MaxFacts int `json:"max_facts"`
	// Retention is how long conversation summaries are kept.
	Retention time.Duration `json:"retention"`
	// EmbedTimeout bounds embedding calls before keyword fallback.
	EmbedTimeout time.Duration `json:"embed_timeout"`
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		GeneralFloor: 0.8,
		RecallFloor:  0.1,
		ForgetFloor:  0.3,
		InjectLimit:  2,
		RecallLimit:  10,
		MaxFacts:     1000,
		Retention:    7 * 24 * time.Hour,
		EmbedTimeout: 300 * time.Millisecond,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.GeneralFloor <= 0 {
		p.GeneralFloor = def.GeneralFloor
	}
	if p.RecallFloor <= 0 {
		p.RecallFloor = def.RecallFloor
	}
	if p.ForgetFloor <= 0 {
		p.ForgetFloor = def.ForgetFloor
	}
	if p.InjectLimit <= 0 {
		p.InjectLimit = def.InjectLimit
	}
	if p.RecallLimit <= 0 {
		p.RecallLimit = def.RecallLimit
	}
	if p.MaxFacts <= 0 {
		p.MaxFacts = def.MaxFacts
	}
	if p.Retention <= 0 {
		p.Retention = def.Retention
	}
	if p.EmbedTimeout <= 0 {
		p.EmbedTimeout = def.EmbedTimeout
	}
	return p
}

// Options configures Open.
type Options struct {
	// DataDir holds the SQLite database (memory.db). Ignored when DBPath is
	// set explicitly.
	DataDir string
	DBPath  string

	// Provider supplies embeddings. Nil runs the store in keyword-only mode
	// with no vector tables.
	Provider EmbeddingProvider

	// Summarizer condenses finished sessions. Defaults to RuleSummarizer.
	Summarizer Summarizer
	// Classifier decides the memory state per query. Defaults to the rule
	// classifier.
	Classifier QueryClassifier
	// Categorizer assigns categories to uncategorized facts. Defaults to the
	// rule categorizer.
	Categorizer Categorizer

	Policy Policy
	Logger zerolog.Logger

	// SweepInterval is the cadence of background retention sweeps.
	// Defaults to one hour. Negative disables the background scheduler
	// entirely (sweeps then run only via Sweep).
	SweepInterval time.Duration
}

// Service is the top-level memory subsystem: three persistent collections,
// relevance-gated retrieval, state-aware context injection, and background
// retention. Safe for concurrent use.
type Service struct {
	db          *db
	facts       *FactStore
	preferences *PreferenceStore
	summaries   *SummaryStore
	engine      *Engine
	retention   *RetentionManager
	provider    EmbeddingProvider
	summarizer  Summarizer
	classifier  QueryClassifier
	categorizer Categorizer
	logger      zerolog.Logger

	mu     sync.RWMutex
	policy Policy
}

// Open initializes the store and starts the retention scheduler.
func Open(opts Options) (*Service, error) {
	path := opts.DBPath
	if path == "" {
		if opts.DataDir == "" {
			return nil, fmt.Errorf("memory: either DataDir or DBPath is required")
		}
		path = filepath.Join(opts.DataDir, "memory.db")
	}

	dimension := 0
	if opts.Provider != nil {
		dimension = opts.Provider.Dimension()
	}

	d, err := openDB(path, dimension)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.With().Str("subsystem", "memory").Logger()
	policy := opts.Policy.withDefaults()

	s := &Service{
		db:          d,
		facts:       newFactStore(d, logger),
		preferences: newPreferenceStore(d, logger),
		summaries:   newSummaryStore(d, logger),
		provider:    opts.Provider,
		summarizer:  opts.Summarizer,
		classifier:  opts.Classifier,
		categorizer: opts.Categorizer,
		logger:      logger,
		policy:      policy,
	}
	if s.summarizer == nil {
		s.summarizer = NewRuleSummarizer()
	}
	if s.classifier == nil {
		s.classifier = NewRuleClassifier()
	}
	if s.categorizer == nil {
		s.categorizer = NewRuleCategorizer()
	}

	s.engine = newEngine(s.facts, s.summaries, opts.Provider, policy.EmbedTimeout, logger)
	s.retention = newRetentionManager(s.facts, s.summaries, policy.MaxFacts, policy.Retention, logger)

	if opts.SweepInterval >= 0 {
		interval := opts.SweepInterval
		if interval == 0 {
			interval = time.Hour
		}
		if err := s.retention.Start(interval); err != nil {
			d.Close()
			return nil, err
		}
	}

	logger.Info().Str("db", path).Int("dimension", dimension).Msg("Memory store opened")
	return s, nil
}

// Close stops the retention scheduler and closes the database.
func (s *Service) Close() error {
	s.retention.Stop()
	return s.db.Close()
}

// ApplyPolicy swaps thresholds at runtime. Used by config hot-reload.
func (s *Service) ApplyPolicy(p Policy) {
	p = p.withDefaults()
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
	s.engine.setEmbedTimeout(p.EmbedTimeout)
	s.retention.UpdatePolicy(p.MaxFacts, p.Retention)
	s.logger.Info().
		Float64("general_floor", p.GeneralFloor).
		Int("max_facts", p.MaxFacts).
		Dur("retention", p.Retention).
		Msg("Memory policy updated")
}

func (s *Service) currentPolicy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Remember stores a fact. An empty category is inferred from the content.
// Returns the stored fact including its generated ID.
func (s *Service) Remember(ctx context.Context, content string, category Category) (Fact, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Fact{}, ErrInvalidInput
	}
	if category == "" {
		category = s.categorizer.Categorize(content)
	}

	ctx, span := tracing.StartSpan(ctx, "engram.memory", "memory.remember")
	defer span.End()

	fact := Fact{
		ID:        uuid.NewString(),
		Content:   content,
		Category:  category,
		CreatedAt: time.Now(),
	}

	embedding := s.embed(ctx, content)
	fact.Embedded = embedding != nil

	if err := s.facts.Put(ctx, fact, embedding); err != nil {
		return Fact{}, err
	}

	observability.RecordMemoryWrite("fact")
	s.retention.Notify()
	return fact, nil
}

// preferenceSignalWords gate preference inclusion in recall: preferences have
// no embeddings, so similarity cannot surface them, and dumping every setting
// into unrelated recalls would drown the ranked results.
var preferenceSignalWords = []string{"preference", "setting", "config", "like", "prefer"}

func mentionsPreferences(query string) bool {
	q := strings.ToLower(query)
	for _, w := range preferenceSignalWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// Recall retrieves memories for an explicit recall query: facts and
// summaries, low relevance floor, recall limit. Queries that mention
// preferences additionally get every stored preference, appended after the
// ranked results.
func (s *Service) Recall(ctx context.Context, query string, limit int) ([]RetrievalResult, error) {
	p := s.currentPolicy()
	if limit <= 0 {
		limit = p.RecallLimit
	}
	results, err := s.engine.Retrieve(ctx, query, RetrieveOptions{
		Limit:            limit,
		MinRelevance:     p.RecallFloor,
		IncludeFacts:     true,
		IncludeSummaries: true,
	})
	if err != nil {
		return nil, err
	}

	if mentionsPreferences(query) {
		prefs, err := s.preferences.All(ctx)
		if err != nil {
			return nil, err
		}
		for i := range prefs {
			results = append(results, RetrievalResult{Preference: &prefs[i], Relevance: 1})
		}
	}
	return results, nil
}

// Forget deletes the single best-matching fact for the query, provided it
// clears the forget floor. Returns the deleted fact, or ErrNotFound when
// nothing matches confidently enough. Summaries and preferences are exempt:
// summaries age out on their own and preferences are removed by key.
func (s *Service) Forget(ctx context.Context, query string) (Fact, error) {
	p := s.currentPolicy()

	results, err := s.engine.Retrieve(ctx, query, RetrieveOptions{
		Limit:        1,
		MinRelevance: p.ForgetFloor,
		IncludeFacts: true,
	})
	if err != nil {
		return Fact{}, err
	}
	if len(results) == 0 || results[0].Fact == nil {
		return Fact{}, ErrNotFound
	}

	fact := *results[0].Fact
	deleted, err := s.facts.Delete(ctx, fact.ID)
	if err != nil {
		return Fact{}, err
	}
	if !deleted {
		return Fact{}, ErrNotFound
	}

	s.logger.Info().Str("fact_id", fact.ID).Msg("Fact forgotten")
	return fact, nil
}

// SetPreference stores an exact key/value preference, last write wins.
func (s *Service) SetPreference(ctx context.Context, key string, value any) error {
	if err := s.preferences.Set(ctx, key, value); err != nil {
		return err
	}
	observability.RecordMemoryWrite("preference")
	return nil
}

// GetPreference returns the preference for key, or ErrNotFound.
func (s *Service) GetPreference(ctx context.Context, key string) (Preference, error) {
	return s.preferences.Get(ctx, key)
}

// AllPreferences returns every stored preference ordered by key.
func (s *Service) AllPreferences(ctx context.Context) ([]Preference, error) {
	return s.preferences.All(ctx)
}

// DeletePreference removes a preference by exact key. Missing keys are a
// no-op returning false.
func (s *Service) DeletePreference(ctx context.Context, key string) (bool, error) {
	return s.preferences.Delete(ctx, key)
}

// OnSessionEnd summarizes a finished session and stores the summary. Sessions
// with no messages are skipped.
func (s *Service) OnSessionEnd(ctx context.Context, sessionID string, messages []Message, toolUsage map[string]int) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	if len(messages) == 0 {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "engram.memory", "memory.session_end")
	defer span.End()

	text, topics, err := s.summarizer.Summarize(ctx, messages)
	if err != nil {
		return fmt.Errorf("summarize session %s: %w", sessionID, err)
	}

	summary := ConversationSummary{
		SessionID:    sessionID,
		CreatedAt:    time.Now(),
		Summary:      text,
		Topics:       topics,
		ToolUsage:    toolUsage,
		MessageCount: len(messages),
	}

	embedding := s.embed(ctx, text)
	summary.Embedded = embedding != nil

	if err := s.summaries.Put(ctx, summary, embedding); err != nil {
		return err
	}

	observability.RecordMemoryWrite("summary")
	s.retention.Notify()
	s.logger.Info().Str("session_id", sessionID).
		Int("messages", summary.MessageCount).
		Strs("topics", topics).
		Msg("Session summarized")
	return nil
}

// BuildContext classifies the query and produces the injection payload for
// it. Tool-focused queries and queries with no sufficiently relevant memories
// yield an empty payload. Injection is best-effort: a blank query or a
// retrieval failure also yields an empty payload, never an error.
func (s *Service) BuildContext(ctx context.Context, query string) (Payload, error) {
	state := s.classifier.Classify(query)
	p := s.currentPolicy()
	injector := Injector{InjectLimit: p.InjectLimit}

	switch state {
	case StateToolFocused:
		return Payload{State: state}, nil
	case StateExplicitRecall:
		results, err := s.Recall(ctx, query, p.RecallLimit)
		if err != nil {
			// The turn proceeds without memory rather than failing on a
			// read error.
			if err != ErrInvalidInput {
				s.logger.Warn().Err(err).Msg("Context retrieval failed, injecting nothing")
			}
			return Payload{State: state}, nil
		}
		payload := injector.Build(state, results)
		observability.RecordContextInjection(state.String())
		return payload, nil
	default:
		results, err := s.engine.Retrieve(ctx, query, RetrieveOptions{
			Limit:        p.InjectLimit,
			MinRelevance: p.GeneralFloor,
			IncludeFacts: true,
		})
		if err != nil {
			if err != ErrInvalidInput {
				s.logger.Warn().Err(err).Msg("Context retrieval failed, injecting nothing")
			}
			return Payload{State: state}, nil
		}
		payload := injector.Build(state, results)
		if !payload.Empty() {
			observability.RecordContextInjection(state.String())
		}
		return payload, nil
	}
}

// Sweep runs one retention pass immediately.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	return s.retention.Sweep(ctx)
}

// Stats reports collection sizes.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	facts, err := s.facts.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	prefs, err := s.preferences.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	summaries, err := s.summaries.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Facts:       facts,
		Preferences: prefs,
		Summaries:   summaries,
		DBPath:      s.db.path,
	}, nil
}

// embed produces an embedding with the policy timeout, or nil when no
// provider is configured or the call fails. Writes never fail on embedding
// errors; the record is stored unembedded and scored by keywords.
func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.provider == nil {
		return nil
	}
	p := s.currentPolicy()
	ctx, cancel := context.WithTimeout(ctx, p.EmbedTimeout)
	defer cancel()

	embedding, err := s.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		observability.RecordEmbeddingFallback()
		s.logger.Warn().Err(err).Msg("Embedding failed, storing unembedded")
		return nil
	}
	if len(embedding) != s.db.dimension {
		s.logger.Warn().Int("got", len(embedding)).Int("want", s.db.dimension).
			Msg("Embedding dimension mismatch, storing unembedded")
		return nil
	}
	return embedding
}
