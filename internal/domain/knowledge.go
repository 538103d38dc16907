package domain

import (
	"strings"
	"time"
)

// KnowledgeEntry is one question/answer pair consulted by the automated
// assistant. Keywords hold a comma-separated list.
type KnowledgeEntry struct {
	ID        int64     `db:"id"`
	Question  string    `db:"question"`
	Answer    string    `db:"answer"`
	Keywords  string    `db:"keywords"`
	Category  *string   `db:"category"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

const minQueryWordLen = 3

// QueryWords splits free text into the lower-cased words eligible for
// knowledge matching. Words shorter than three characters are discarded.
func QueryWords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, field := range fields {
		word := strings.Trim(field, ".,;:!?\"'()")
		if len([]rune(word)) >= minQueryWordLen {
			words = append(words, word)
		}
	}
	return words
}

// MatchesQuery reports whether any query word appears in the entry's
// keyword list or question text. Matching is case-insensitive substring
// containment.
func (e KnowledgeEntry) MatchesQuery(words []string) bool {
	keywords := strings.ToLower(e.Keywords)
	question := strings.ToLower(e.Question)
	for _, word := range words {
		if strings.Contains(keywords, word) || strings.Contains(question, word) {
			return true
		}
	}
	return false
}
