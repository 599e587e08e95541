package memory

import "strings"

// Categorizer assigns a Category to fact content when the caller does not
// supply one.
type Categorizer interface {
	Categorize(content string) Category
}

// RuleCategorizer categorizes by keyword lists, in priority order:
// preference signals win over work signals, work over personal, and anything
// unmatched lands in general.
type RuleCategorizer struct{}

func NewRuleCategorizer() *RuleCategorizer { return &RuleCategorizer{} }

var (
	preferenceSignals = []string{
		"prefer", "like", "love", "hate", "dislike", "favorite", "favourite",
		"always use", "never use",
	}
	workSignals = []string{
		"work", "job", "project", "deadline", "meeting", "colleague",
		"company", "client", "office", "team",
	}
	personalSignals = []string{
		"my name", "i live", "i am from", "my birthday", "my family",
		"my wife", "my husband", "my partner", "my kids", "my children",
		"my dog", "my cat", "i was born", "years old",
	}
)

func (RuleCategorizer) Categorize(content string) Category {
	c := strings.ToLower(content)

	for _, s := range preferenceSignals {
		if strings.Contains(c, s) {
			return CategoryPreference
		}
	}
	for _, s := range workSignals {
		if strings.Contains(c, s) {
			return CategoryWork
		}
	}
	for _, s := range personalSignals {
		if strings.Contains(c, s) {
			return CategoryPersonal
		}
	}
	return CategoryGeneral
}
