package memory

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/engramkit/engram/internal/observability"
	"github.com/engramkit/engram/internal/tracing"
)

// vectorCandidateLimit bounds how many nearest neighbors are pulled from the
// vector tables before relevance gating.
const vectorCandidateLimit = 200

// RetrieveOptions controls a single retrieval.
type RetrieveOptions struct {
	// Limit caps the number of results. Values <= 0 default to 10.
	Limit int
	// MinRelevance drops candidates scoring below the floor.
	MinRelevance float64
	// IncludeFacts and IncludeSummaries select the collections searched.
	// Both false searches facts only.
	IncludeFacts     bool
	IncludeSummaries bool
}

func (o RetrieveOptions) limit() int {
	if o.Limit <= 0 {
		return 10
	}
	return o.Limit
}

// Engine ranks stored records against a query. It owns the similarity
// computation and the keyword fallback: when the embedding provider is
// unreachable, or for records stored without an embedding, relevance is the
// fraction of query words found in the record text. Retrieval is read-only
// and side-effect free; an abandoned request needs no cleanup.
type Engine struct {
	facts     *FactStore
	summaries *SummaryStore
	provider  EmbeddingProvider
	// embedTimeout holds nanoseconds; config hot-reload swaps it while
	// retrievals are in flight.
	embedTimeout atomic.Int64
	logger       zerolog.Logger
}

func newEngine(facts *FactStore, summaries *SummaryStore, provider EmbeddingProvider, embedTimeout time.Duration, logger zerolog.Logger) *Engine {
	e := &Engine{
		facts:     facts,
		summaries: summaries,
		provider:  provider,
		logger:    logger.With().Str("component", "retrieval").Logger(),
	}
	e.embedTimeout.Store(int64(embedTimeout))
	return e
}

// setEmbedTimeout swaps the embedding timeout for subsequent queries. Safe to
// call during concurrent retrievals.
func (e *Engine) setEmbedTimeout(d time.Duration) {
	e.embedTimeout.Store(int64(d))
}

// Retrieve returns records relevant to query, ordered by descending relevance
// with ties broken by recency (newer first), truncated to the limit. All
// returned relevances are in [0,1] and at least opts.MinRelevance.
func (e *Engine) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	if !opts.IncludeFacts && !opts.IncludeSummaries {
		opts.IncludeFacts = true
	}

	ctx, span := tracing.StartSpan(ctx, "engram.memory", "memory.retrieve",
		attribute.Int("limit", opts.limit()),
		attribute.Float64("min_relevance", opts.MinRelevance),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	start := time.Now()
	defer func() { observability.RecordRetrieval(time.Since(start)) }()

	queryEmbedding := e.embedQuery(ctx, logger, query)
	queryWords := wordSet(query)

	var results []RetrievalResult
	if opts.IncludeFacts {
		factResults, err := e.retrieveFacts(ctx, queryEmbedding, queryWords)
		if err != nil {
			return nil, err
		}
		results = append(results, factResults...)
	}
	if opts.IncludeSummaries {
		summaryResults, err := e.retrieveSummaries(ctx, queryEmbedding, queryWords)
		if err != nil {
			return nil, err
		}
		results = append(results, summaryResults...)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Relevance >= opts.MinRelevance {
			filtered = append(filtered, r)
		}
	}
	results = filtered

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		return results[i].createdAt().After(results[j].createdAt())
	})

	if len(results) > opts.limit() {
		results = results[:opts.limit()]
	}

	logger.Debug().Int("results", len(results)).
		Bool("vector_path", queryEmbedding != nil).
		Msg("Retrieval completed")
	return results, nil
}

// embedQuery embeds the query with a bounded timeout. Any failure degrades to
// the keyword path and is never surfaced to the caller.
func (e *Engine) embedQuery(ctx context.Context, logger zerolog.Logger, query string) []float32 {
	if e.provider == nil {
		return nil
	}

	embedCtx := ctx
	if timeout := time.Duration(e.embedTimeout.Load()); timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	embedding, err := e.provider.GenerateEmbedding(embedCtx, query)
	if err != nil {
		observability.RecordEmbeddingFallback()
		logger.Warn().Err(err).Msg("Query embedding failed, falling back to keyword search")
		return nil
	}
	return embedding
}

func (e *Engine) retrieveFacts(ctx context.Context, queryEmbedding []float32, queryWords map[string]struct{}) ([]RetrievalResult, error) {
	var results []RetrievalResult

	if queryEmbedding != nil {
		scored, err := e.facts.similar(ctx, queryEmbedding, vectorCandidateLimit)
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			fact := s.fact
			results = append(results, RetrievalResult{
				Fact:      &fact,
				Relevance: distanceToRelevance(s.distance),
			})
		}

		// Records stored without an embedding still participate via the
		// keyword path.
		rest, err := e.facts.unembedded(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, keywordScoreFacts(rest, queryWords)...)
		return results, nil
	}

	all, err := e.facts.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return keywordScoreFacts(all, queryWords), nil
}

func (e *Engine) retrieveSummaries(ctx context.Context, queryEmbedding []float32, queryWords map[string]struct{}) ([]RetrievalResult, error) {
	var results []RetrievalResult

	if queryEmbedding != nil {
		scored, err := e.summaries.similar(ctx, queryEmbedding, vectorCandidateLimit)
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			summary := s.summary
			results = append(results, RetrievalResult{
				Summary:   &summary,
				Relevance: distanceToRelevance(s.distance),
			})
		}

		rest, err := e.summaries.unembedded(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, keywordScoreSummaries(rest, queryWords)...)
		return results, nil
	}

	all, err := e.summaries.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return keywordScoreSummaries(all, queryWords), nil
}

func keywordScoreFacts(facts []Fact, queryWords map[string]struct{}) []RetrievalResult {
	var results []RetrievalResult
	for i := range facts {
		score := keywordOverlap(queryWords, wordSet(facts[i].Content))
		if score > 0 {
			results = append(results, RetrievalResult{Fact: &facts[i], Relevance: score})
		}
	}
	return results
}

func keywordScoreSummaries(summaries []ConversationSummary, queryWords map[string]struct{}) []RetrievalResult {
	var results []RetrievalResult
	for i := range summaries {
		// Summaries match on summary text plus extracted topics.
		candidate := wordSet(summaries[i].Summary + " " + strings.Join(summaries[i].Topics, " "))
		score := keywordOverlap(queryWords, candidate)
		if score > 0 {
			results = append(results, RetrievalResult{Summary: &summaries[i], Relevance: score})
		}
	}
	return results
}

// distanceToRelevance converts a cosine distance to a [0,1] relevance score.
// Floating-point noise can push 1-distance slightly outside the range; clamp.
func distanceToRelevance(distance float64) float64 {
	relevance := 1.0 - distance
	if relevance < 0 {
		return 0
	}
	if relevance > 1 {
		return 1
	}
	return relevance
}

// keywordOverlap scores a candidate as the fraction of query words it
// contains. An empty query word set scores zero, never a division error.
func keywordOverlap(queryWords, candidateWords map[string]struct{}) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	common := 0
	for w := range queryWords {
		if _, ok := candidateWords[w]; ok {
			common++
		}
	}
	return float64(common) / float64(len(queryWords))
}

// wordSet lowercases and splits text into a set of words, trimming edge
// punctuation so "Acme." matches "Acme".
func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]")
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
