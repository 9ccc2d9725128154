package knowledge

import (
	"strings"
	"testing"

	"github.com/BTreeMap/CareLine/internal/models"
)

func testBase() *Base {
	return NewBaseWithEntries([]models.FAQEntry{
		{Question: "What are your clinic hours?", Answer: "We're open Monday through Friday, 8 AM to 6 PM."},
		{Question: "Where is the clinic located?", Answer: "We're at 500 Market Street, Suite 210."},
		{Question: "Do you accept my insurance plan?", Answer: "We accept most major insurance plans."},
	})
}

func TestAnswerMatches(t *testing.T) {
	base := testBase()

	match, ok := base.Answer("What are your hours?")
	if !ok {
		t.Fatal("expected a match for hours question")
	}
	if !strings.Contains(match.Answer, "Monday through Friday") {
		t.Errorf("unexpected answer: %q", match.Answer)
	}
	if match.Confidence <= 0 || match.Confidence > 1 {
		t.Errorf("confidence out of range: %v", match.Confidence)
	}

	match, ok = base.Answer("do you take insurance? is my plan accepted?")
	if !ok {
		t.Fatal("expected a match for insurance question")
	}
	if !strings.Contains(match.Answer, "insurance") {
		t.Errorf("unexpected answer: %q", match.Answer)
	}
}

func TestAnswerRequiresMinimumOverlap(t *testing.T) {
	base := testBase()

	// A single shared token is not enough to count as a match.
	if _, ok := base.Answer("hours"); ok {
		t.Error("expected no match below the overlap minimum")
	}
	if _, ok := base.Answer("tell me about parking"); ok {
		t.Error("expected no match for unrelated question")
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	base := testBase()
	if _, ok := base.Answer(""); ok {
		t.Error("expected no match for empty query")
	}
	if _, ok := base.Answer("?!"); ok {
		t.Error("expected no match for tokenless query")
	}
}
