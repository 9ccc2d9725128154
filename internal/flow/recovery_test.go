package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/BTreeMap/CareLine/internal/models"
)

func TestRecoveryLadder(t *testing.T) {
	o, _ := newTestOrchestrator(DefaultConfig(), nil, nil)
	ctx := context.Background()

	// First unclear turn: clarification question.
	first := o.Execute(ctx, TurnInput{Utterance: "hmm"})
	if first.Status != models.StatusPartial {
		t.Fatalf("expected partial status, got %q", first.Status)
	}
	if len(first.Warnings) != 1 || first.Warnings[0] != "NLU_LOW_CONFIDENCE" {
		t.Errorf("expected low-confidence warning, got %v", first.Warnings)
	}
	if !strings.Contains(first.Text(), "Could you share a bit more") {
		t.Errorf("expected clarification question, got %q", first.Text())
	}
	if first.Metadata["fallback_level"] != 1 {
		t.Errorf("expected fallback level 1, got %v", first.Metadata["fallback_level"])
	}

	// Second unclear turn: explicit menu.
	second := o.Execute(ctx, TurnInput{Utterance: "uh", State: stateOf(t, first)})
	if !strings.Contains(second.Text(), "1. Schedule a new appointment") {
		t.Errorf("expected menu options, got %q", second.Text())
	}
	if !strings.Contains(second.Text(), "6. Speak with a staff member") {
		t.Errorf("menu should list all six options, got %q", second.Text())
	}
	if second.Metadata["fallback_level"] != 2 {
		t.Errorf("expected fallback level 2, got %v", second.Metadata["fallback_level"])
	}

	// Third unclear turn: human escalation, and the retry counter resets so
	// the caller is not immediately re-escalated.
	third := o.Execute(ctx, TurnInput{Utterance: "err", State: stateOf(t, second)})
	if !strings.Contains(third.Text(), "(555) 0100") {
		t.Errorf("expected escalation with phone number, got %q", third.Text())
	}
	state := stateOf(t, third)
	if state["retry_count"] != 0 {
		t.Errorf("expected retry counter reset after escalation, got %v", state["retry_count"])
	}
}

func TestRecoveryResetsOnConfidentTurn(t *testing.T) {
	o, _ := newTestOrchestrator(DefaultConfig(), nil, nil)
	ctx := context.Background()

	first := o.Execute(ctx, TurnInput{Utterance: "hmm"})
	if first.Status != models.StatusPartial {
		t.Fatalf("expected partial status, got %q", first.Status)
	}

	// A confident FAQ turn clears the retry counter.
	second := o.Execute(ctx, TurnInput{Utterance: "What are your hours?", State: stateOf(t, first)})
	if !second.IsSuccess() {
		t.Fatalf("expected FAQ success, got %+v", second)
	}
	if !strings.Contains(second.Text(), "Monday through Friday") {
		t.Errorf("unexpected FAQ answer: %q", second.Text())
	}
	if stateOf(t, second)["retry_count"] != 0 {
		t.Errorf("expected retry counter reset, got %v", stateOf(t, second)["retry_count"])
	}
}

func TestRecoveryClarificationFromModel(t *testing.T) {
	client := &stubClient{generateResponse: "Were you hoping to book a visit, or something else?"}
	cfg := DefaultConfig()
	cfg.EnableConfidenceScoring = false
	o, _ := newTestOrchestrator(cfg, client, nil)

	result := o.Execute(context.Background(), TurnInput{Utterance: "hmm"})
	if result.Text() != "Were you hoping to book a visit, or something else?" {
		t.Errorf("expected model clarification, got %q", result.Text())
	}
}

func TestRecoveryDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableErrorRecovery = false
	o, _ := newTestOrchestrator(cfg, nil, nil)

	// Low-confidence turns route to the default handler instead.
	result := o.Execute(context.Background(), TurnInput{Utterance: "hmm"})
	if !strings.Contains(result.Text(), "I can help with appointments, records, or clinic questions.") {
		t.Errorf("expected default routing, got %q", result.Text())
	}
	if stateOf(t, result)["retry_count"] != 0 {
		t.Errorf("retry counter should stay untouched, got %v", stateOf(t, result)["retry_count"])
	}
}
