package memory

import "strings"

// MemoryState is the retrieval/injection mode chosen for an incoming query.
type MemoryState int

const (
	// StateGeneral is the default: retrieve with a high relevance floor and a
	// small cap, injected as synthetic prior turns.
	StateGeneral MemoryState = iota
	// StateExplicitRecall marks queries asking what the system remembers.
	// Retrieval runs with a low floor and results are returned as a direct,
	// itemized answer.
	StateExplicitRecall
	// StateToolFocused marks data-fetching queries (prices, weather, videos).
	// Retrieval is skipped entirely: injected memory here has produced
	// contradictory responses.
	StateToolFocused
)

func (s MemoryState) String() string {
	switch s {
	case StateExplicitRecall:
		return "explicit_recall"
	case StateToolFocused:
		return "tool_focused"
	default:
		return "general"
	}
}

// QueryClassifier decides the memory state for an incoming query. The default
// is lexical and rule-based; a learned classifier can be substituted without
// touching the retrieval or injection contracts.
type QueryClassifier interface {
	Classify(query string) MemoryState
}

// RuleClassifier classifies by substring matching against phrase lists.
// Recall phrases are checked before tool keywords so that an explicit recall
// request is never treated as tool-focused; anything ambiguous defaults to
// general.
type RuleClassifier struct {
	recallPhrases []string
	toolKeywords  []string
}

// NewRuleClassifier returns a classifier with the default phrase lists.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		recallPhrases: []string{
			"remember",
			"recall",
			"about me",
			"about myself",
			"my preferences",
			"my details",
			"what do you know",
			"what have you learned",
			"stored information",
			"personal info",
		},
		toolKeywords: []string{
			"youtube", "video", "transcript",
			"stock", "price", "crypto", "market", "ticker", "finance",
			"weather", "forecast", "temperature", "climate",
			"tide", "tides",
			"arxiv", "paper",
			"web search", "google",
			"url", "website", "link",
		},
	}
}

func (c *RuleClassifier) Classify(query string) MemoryState {
	q := strings.ToLower(query)

	for _, phrase := range c.recallPhrases {
		if strings.Contains(q, phrase) {
			return StateExplicitRecall
		}
	}
	for _, kw := range c.toolKeywords {
		if strings.Contains(q, kw) {
			return StateToolFocused
		}
	}
	return StateGeneral
}
