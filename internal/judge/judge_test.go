package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/models"
)

// stubClient returns a canned judge completion.
type stubClient struct {
	response string
	err      error
}

func (c *stubClient) Generate(ctx context.Context, req genai.Request) (string, error) {
	return c.response, c.err
}

func (c *stubClient) GenerateStructured(ctx context.Context, prompt, system string, out any) error {
	return errors.New("not used")
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"0.85", 0.85, true},
		{"1.0", 1.0, true},
		{"0", 0, true},
		{"Score: 0.4, needs review", 0.4, true},
		{"  0.72\n", 0.72, true},
		{"no score here", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseScore(c.in)
		if ok != c.ok {
			t.Errorf("ParseScore(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseScore(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestScoreModelPath(t *testing.T) {
	scorer := NewScorer(&stubClient{response: "0.85"}, 0.7)
	score := scorer.Score(context.Background(), "What are your hours?", "We're open 8 to 6.", Context{})
	if score != 0.85 {
		t.Errorf("expected model score 0.85, got %v", score)
	}
	if scorer.ShouldFlag(score) {
		t.Error("score above threshold should not flag")
	}
}

func TestScoreFallsBackOnError(t *testing.T) {
	scorer := NewScorer(&stubClient{err: errors.New("model unavailable")}, 0.7)
	score := scorer.Score(context.Background(), "hours?", "We're open Monday through Friday, 8 AM to 6 PM.", Context{})
	// Heuristic base for a normal-length response with no hedging.
	if score != 0.75 {
		t.Errorf("expected heuristic 0.75, got %v", score)
	}
}

func TestScoreFallsBackOnUnparsableOutput(t *testing.T) {
	scorer := NewScorer(&stubClient{response: "looks great to me!"}, 0.7)
	score := scorer.Score(context.Background(), "hours?", "We're open Monday through Friday, 8 AM to 6 PM.", Context{})
	if score != 0.75 {
		t.Errorf("expected heuristic fallback, got %v", score)
	}
}

func TestHeuristicScore(t *testing.T) {
	scorer := NewScorer(nil, 0.7)
	ctx := context.Background()

	// Empty response is scored near zero.
	if got := scorer.Score(ctx, "hours?", "", Context{}); got != 0.1 {
		t.Errorf("empty response: expected 0.1, got %v", got)
	}

	// Hedging language is penalized.
	hedged := scorer.Score(ctx, "hours?", "I'm not sure about that one, you could try the front desk.", Context{})
	if hedged != 0.55 {
		t.Errorf("hedged response: expected 0.55, got %v", hedged)
	}

	// Very short responses are penalized.
	short := scorer.Score(ctx, "hours?", "Yes we are.", Context{})
	if short != 0.5 {
		t.Errorf("short response: expected 0.5, got %v", short)
	}

	// Entity mentions earn a small bonus.
	withEntity := scorer.Score(ctx, "book with Dr. Singh", "I can book you with Dr. Singh on Monday morning.", Context{
		Entities: models.Entities{Doctor: "Dr. Singh"},
	})
	if withEntity != 0.77 {
		t.Errorf("entity mention: expected 0.77, got %v", withEntity)
	}
}

func TestShouldFlagThreshold(t *testing.T) {
	scorer := NewScorer(nil, 0.7)
	if !scorer.ShouldFlag(0.69) {
		t.Error("score below threshold should flag")
	}
	if scorer.ShouldFlag(0.7) {
		t.Error("score at threshold should not flag")
	}
	if scorer.Threshold() != 0.7 {
		t.Errorf("unexpected threshold: %v", scorer.Threshold())
	}

	// Zero threshold falls back to the default.
	def := NewScorer(nil, 0)
	if def.Threshold() != DefaultThreshold {
		t.Errorf("expected default threshold, got %v", def.Threshold())
	}
}

func TestExplainScoreFallback(t *testing.T) {
	scorer := NewScorer(nil, 0.7)
	explanation := scorer.ExplainScore(context.Background(), "hours?", "We're open.", 0.5)
	if explanation == "" {
		t.Error("expected fallback explanation")
	}

	withModel := NewScorer(&stubClient{response: "The response was terse."}, 0.7)
	explanation = withModel.ExplainScore(context.Background(), "hours?", "We're open.", 0.5)
	if explanation != "The response was terse." {
		t.Errorf("expected model explanation, got %q", explanation)
	}
}
