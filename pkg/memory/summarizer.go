package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// maxSummaryChars bounds summary text so one session cannot dominate context
// injection.
const maxSummaryChars = 300

// Summarizer condenses a finished session into summary text plus topics.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (summary string, topics []string, err error)
}

// RuleSummarizer builds a summary without any model call: it takes the
// leading sentences of the first user messages up to the character cap, and
// extracts topics by keyword frequency. It is the fallback when no API key is
// configured or the model call fails, so it must never return an error.
type RuleSummarizer struct{}

func NewRuleSummarizer() *RuleSummarizer { return &RuleSummarizer{} }

func (RuleSummarizer) Summarize(_ context.Context, messages []Message) (string, []string, error) {
	var parts []string
	total := 0
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		s := firstSentence(m.Content)
		if s == "" {
			continue
		}
		if total+len(s) > maxSummaryChars {
			break
		}
		parts = append(parts, s)
		total += len(s) + 1
	}

	summary := strings.Join(parts, " ")
	if summary == "" {
		summary = "Brief exchange with no substantive user messages."
	}
	summary = truncate(summary, maxSummaryChars)

	return summary, extractTopics(messages), nil
}

// firstSentence returns the text up to and including the first terminal
// punctuation mark, or the whole trimmed string if there is none.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return s[:i+1]
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so a multibyte character is never split.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}

// topicStopwords excludes filler tokens from topic extraction.
var topicStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"you": {}, "your": {}, "have": {}, "what": {}, "about": {}, "from": {},
	"can": {}, "could": {}, "would": {}, "should": {}, "please": {},
	"just": {}, "like": {}, "want": {}, "need": {}, "know": {}, "tell": {},
	"how": {}, "when": {}, "where": {}, "why": {}, "who": {}, "are": {},
	"was": {}, "were": {}, "will": {}, "there": {}, "they": {}, "them": {},
	"some": {}, "more": {}, "been": {}, "into": {}, "also": {}, "because": {},
}

// extractTopics returns up to five non-stopword tokens that occur at least
// twice across user messages, most frequent first.
func extractTopics(messages []Message) []string {
	counts := map[string]int{}
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		for w := range wordSet(m.Content) {
			if len(w) < 4 {
				continue
			}
			if _, stop := topicStopwords[w]; stop {
				continue
			}
			counts[w]++
		}
	}

	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(counts))
	for w, c := range counts {
		if c >= 2 {
			ranked = append(ranked, wc{w, c})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	topics := make([]string, 0, 5)
	for _, r := range ranked {
		topics = append(topics, r.word)
		if len(topics) == 5 {
			break
		}
	}
	return topics
}

// AnthropicSummarizer asks a Claude model for the summary and falls back to
// the rule summarizer on any API failure.
type AnthropicSummarizer struct {
	client   anthropic.Client
	model    string
	fallback RuleSummarizer
	logger   zerolog.Logger
}

func NewAnthropicSummarizer(apiKey, model string, logger zerolog.Logger) *AnthropicSummarizer {
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	return &AnthropicSummarizer{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger.With().Str("component", "summarizer").Logger(),
	}
}

const summarizerSystemPrompt = "Summarize the conversation in at most two sentences, " +
	"written in the third person, focusing on what the user asked about and decided. " +
	"Do not include preamble."

func (s *AnthropicSummarizer) Summarize(ctx context.Context, messages []Message) (string, []string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 256,
		System: []anthropic.TextBlockParam{
			{Text: summarizerSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript(messages))),
		},
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		s.logger.Warn().Err(err).Msg("model summarization failed, using rule fallback")
		return s.fallback.Summarize(ctx, messages)
	}

	var text string
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.fallback.Summarize(ctx, messages)
	}

	return truncate(text, maxSummaryChars), extractTopics(messages), nil
}

// transcript renders messages as a plain-text exchange for the model prompt.
func transcript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
