package memory

import (
	"fmt"
	"strings"
)

// Turn is a synthetic conversation message produced by context injection.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the result of building injection context for a query. For
// explicit recall the Text field carries an itemized answer; for general
// queries Turns carries paired synthetic messages to prepend to the
// conversation; for tool-focused queries both are empty.
type Payload struct {
	State MemoryState `json:"state"`
	Turns []Turn      `json:"turns,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// Empty reports whether the payload carries no injectable content.
func (p Payload) Empty() bool {
	return len(p.Turns) == 0 && p.Text == ""
}

// Injector turns retrieval results into injection payloads according to the
// classified memory state.
type Injector struct {
	// InjectLimit caps the number of results used for general injection.
	InjectLimit int
}

// Build produces the injection payload for the given state and results.
// Results are assumed already ordered by relevance.
func (in Injector) Build(state MemoryState, results []RetrievalResult) Payload {
	p := Payload{State: state}

	switch state {
	case StateToolFocused:
		return p
	case StateExplicitRecall:
		p.Text = recallText(results)
		return p
	default:
		limit := in.InjectLimit
		if limit <= 0 {
			limit = 2
		}
		if len(results) > limit {
			results = results[:limit]
		}
		for _, r := range results {
			p.Turns = append(p.Turns,
				Turn{Role: "user", Content: statementFor(r)},
				Turn{Role: "assistant", Content: "Noted."},
			)
		}
		return p
	}
}

// recallText formats stored items as a direct answer to "what do you know".
func recallText(results []RetrievalResult) string {
	if len(results) == 0 {
		return "I don't have any stored memories matching that yet."
	}

	var b strings.Builder
	b.WriteString("Here's what I remember:\n")
	for i, r := range results {
		switch {
		case r.Fact != nil:
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, r.Fact.Category, r.Fact.Content)
		case r.Summary != nil:
			fmt.Fprintf(&b, "%d. [conversation on %s] %s\n",
				i+1, r.Summary.CreatedAt.Format("2006-01-02"), r.Summary.Summary)
		case r.Preference != nil:
			fmt.Fprintf(&b, "%d. [setting] %s: %v\n", i+1, r.Preference.Key, r.Preference.Value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// statementFor phrases a result as a third-person statement of prior context.
func statementFor(r RetrievalResult) string {
	switch {
	case r.Summary != nil:
		return fmt.Sprintf("For context, a previous conversation covered: %s", r.Summary.Summary)
	case r.Preference != nil:
		return fmt.Sprintf("For context, the user's stored setting: %s", r.Content())
	}
	return fmt.Sprintf("For context, the user previously mentioned: %s", r.Content())
}
