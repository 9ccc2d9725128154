package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/models"
)

// stubClient returns canned completions for classifier tests.
type stubClient struct {
	structuredJSON string
	structuredErr  error
}

func (c *stubClient) Generate(ctx context.Context, req genai.Request) (string, error) {
	return c.structuredJSON, c.structuredErr
}

func (c *stubClient) GenerateStructured(ctx context.Context, prompt, system string, out any) error {
	if c.structuredErr != nil {
		return c.structuredErr
	}
	return json.Unmarshal([]byte(c.structuredJSON), out)
}

func TestClassifyFallbackLadder(t *testing.T) {
	classifier := NewClassifier(nil)
	ctx := context.Background()

	cases := []struct {
		utterance  string
		intent     models.Intent
		confidence float64
	}{
		{"I'm a new patient and want to sign up", models.IntentRegisterNewPatient, 0.8},
		{"This is my first time calling", models.IntentRegisterNewPatient, 0.8},
		{"I need to cancel my visit", models.IntentCancelAppointment, 0.85},
		{"Can we reschedule for next week?", models.IntentRescheduleAppointment, 0.8},
		{"Can you move my appointment?", models.IntentRescheduleAppointment, 0.8},
		{"I'd like to book with Dr. Singh", models.IntentScheduleAppointment, 0.8},
		{"Did my lab results come in?", models.IntentInfoQuery, 0.75},
		{"What medication am I on?", models.IntentInfoQuery, 0.75},
		{"What are your hours?", models.IntentFAQ, 0.7},
		{"Do you take my insurance?", models.IntentFAQ, 0.7},
		{"Hello there", models.IntentOther, 0.4},
	}
	for _, c := range cases {
		got := classifier.Classify(ctx, c.utterance, nil)
		if got.Intent != c.intent {
			t.Errorf("Classify(%q) intent = %q, want %q", c.utterance, got.Intent, c.intent)
		}
		if got.Confidence != c.confidence {
			t.Errorf("Classify(%q) confidence = %v, want %v", c.utterance, got.Confidence, c.confidence)
		}
	}
}

func TestClassifyFallbackOrder(t *testing.T) {
	// "cancel" outranks "appointment" even though both keywords are present.
	classifier := NewClassifier(nil)
	got := classifier.Classify(context.Background(), "cancel my appointment", nil)
	if got.Intent != models.IntentCancelAppointment {
		t.Errorf("expected cancel to win, got %q", got.Intent)
	}
}

func TestClassifyModelPath(t *testing.T) {
	client := &stubClient{structuredJSON: `{"intent":"ScheduleAppointment","entities":{"doctor":"Dr. Singh"},"confidence":0.93}`}
	classifier := NewClassifier(client)

	got := classifier.Classify(context.Background(), "something for my knee", nil)
	if got.Intent != models.IntentScheduleAppointment {
		t.Errorf("expected model intent, got %q", got.Intent)
	}
	if got.Confidence != 0.93 {
		t.Errorf("expected model confidence, got %v", got.Confidence)
	}
	if got.Entities.Doctor != "Dr. Singh" {
		t.Errorf("expected extracted doctor, got %q", got.Entities.Doctor)
	}
}

func TestClassifyModelFailureFallsBack(t *testing.T) {
	client := &stubClient{structuredErr: errors.New("model unavailable")}
	classifier := NewClassifier(client)

	got := classifier.Classify(context.Background(), "I want to book an appointment", nil)
	if got.Intent != models.IntentScheduleAppointment {
		t.Errorf("expected keyword fallback, got %q", got.Intent)
	}
	if got.Confidence != 0.8 {
		t.Errorf("expected fallback confidence, got %v", got.Confidence)
	}
}

func TestClassifyUnknownModelIntentFallsBack(t *testing.T) {
	client := &stubClient{structuredJSON: `{"intent":"OrderPizza","confidence":0.99}`}
	classifier := NewClassifier(client)

	got := classifier.Classify(context.Background(), "what are your hours", nil)
	if got.Intent != models.IntentFAQ {
		t.Errorf("expected keyword fallback for unknown intent, got %q", got.Intent)
	}
}

func TestClassifyEstimatesMissingConfidence(t *testing.T) {
	// Model output with no confidence field falls back to the word-count
	// heuristic.
	client := &stubClient{structuredJSON: `{"intent":"InfoQuery","entities":{}}`}
	classifier := NewClassifier(client)

	short := classifier.Classify(context.Background(), "labs please", nil)
	if short.Confidence != 0.6 {
		t.Errorf("short utterance: expected 0.6, got %v", short.Confidence)
	}

	long := classifier.Classify(context.Background(), "could you please check whether my recent blood work results have come back yet", nil)
	if long.Confidence != 0.8 {
		t.Errorf("long utterance: expected 0.8, got %v", long.Confidence)
	}
}

func TestEstimateConfidence(t *testing.T) {
	if got := estimateConfidence(models.IntentInfoQuery, "   "); got != 0.2 {
		t.Errorf("empty utterance: expected 0.2, got %v", got)
	}
	if got := estimateConfidence(models.IntentOther, "hello there friend"); got != 0.5 {
		t.Errorf("Other intent: expected 0.5, got %v", got)
	}
	if got := estimateConfidence(models.IntentFAQ, "one two three four five six"); got != 0.7 {
		t.Errorf("medium utterance: expected 0.7, got %v", got)
	}
}
