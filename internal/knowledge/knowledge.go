// Package knowledge answers common clinic FAQs by keyword matching over the
// FAQ dataset.
package knowledge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BTreeMap/CareLine/internal/dataset"
	"github.com/BTreeMap/CareLine/internal/models"
)

// minOverlap is the minimum number of shared tokens required for a match,
// to avoid false positives from common words.
const minOverlap = 2

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Match is the best FAQ entry for a query.
type Match struct {
	Question   string
	Answer     string
	Confidence float64
}

// Base holds the FAQ entries.
type Base struct {
	entries []models.FAQEntry
}

// NewBase loads FAQ entries from the dataset directory.
func NewBase(loader *dataset.Loader) (*Base, error) {
	entries, err := loader.LoadFAQ()
	if err != nil {
		return nil, fmt.Errorf("failed to load FAQ: %w", err)
	}
	return NewBaseWithEntries(entries), nil
}

// NewBaseWithEntries creates a base over the given entries. Used by tests.
func NewBaseWithEntries(entries []models.FAQEntry) *Base {
	return &Base{entries: entries}
}

// Answer returns the best FAQ match for the query by token-set overlap.
// Confidence is overlap divided by the query token count.
func (b *Base) Answer(query string) (*Match, bool) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, false
	}

	var best *models.FAQEntry
	bestScore := 0
	for i := range b.entries {
		entryTokens := tokenize(b.entries[i].Question)
		score := 0
		for tok := range tokens {
			if entryTokens[tok] {
				score++
			}
		}
		if score > bestScore {
			best = &b.entries[i]
			bestScore = score
		}
	}

	if best == nil || bestScore < minOverlap {
		return nil, false
	}
	return &Match{
		Question:   best.Question,
		Answer:     best.Answer,
		Confidence: float64(bestScore) / float64(len(tokens)),
	}, true
}

func tokenize(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenRegex.FindAllString(strings.ToLower(text), -1) {
		set[tok] = true
	}
	return set
}
