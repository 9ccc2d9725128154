package models

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestConversationStateRoundTrip(t *testing.T) {
	s := NewConversationState()
	s.SetIntent(IntentScheduleAppointment)
	s.SetPatient("P-1001")
	s.SessionID = "session-abc"
	s.SetStep(StepAwaitingAuth)
	s.UpdateSlots(map[string]any{"doctor": "Dr. Maya Singh"})
	s.SetRegistrationField("name", "Jordan Avery")
	s.AddTurn("user", "I need an appointment")
	s.AddTurn("assistant", "Sure, let me check.")
	s.IncrementRetry("Other", "hmm")

	// Serialize through JSON the way the HTTP boundary does; integers come
	// back as float64 and must still restore.
	data, err := json.Marshal(s.ToMap())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	restored := StateFromMap(raw)
	if restored.CurrentIntent != IntentScheduleAppointment {
		t.Errorf("intent not restored: %q", restored.CurrentIntent)
	}
	if restored.PatientID != "P-1001" {
		t.Errorf("patient id not restored: %q", restored.PatientID)
	}
	if restored.SessionID != "session-abc" {
		t.Errorf("session id not restored: %q", restored.SessionID)
	}
	if restored.Step != StepAwaitingAuth {
		t.Errorf("step not restored: %q", restored.Step)
	}
	if restored.SlotString("doctor") != "Dr. Maya Singh" {
		t.Errorf("slot not restored: %q", restored.SlotString("doctor"))
	}
	if restored.RegistrationField("name") != "Jordan Avery" {
		t.Errorf("registration data not restored: %q", restored.RegistrationField("name"))
	}
	if len(restored.History) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(restored.History))
	}
	if restored.History[0].Role != "user" || restored.History[1].Role != "assistant" {
		t.Errorf("history roles not restored: %+v", restored.History)
	}
	if restored.RetryCount != 1 {
		t.Errorf("retry count not restored: %d", restored.RetryCount)
	}
	if restored.LastFailedIntent != "Other" || restored.LastFailedUtterance != "hmm" {
		t.Errorf("failure record not restored: %q / %q", restored.LastFailedIntent, restored.LastFailedUtterance)
	}
}

func TestStateFromMapNil(t *testing.T) {
	s := StateFromMap(nil)
	if s == nil {
		t.Fatal("expected fresh state for nil input")
	}
	if s.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected default retry budget, got %d", s.MaxRetries)
	}
	if s.Slots == nil || s.RegistrationData == nil {
		t.Error("expected initialized maps")
	}
}

func TestAddTurnTrimsHistory(t *testing.T) {
	s := NewConversationState()
	for i := 0; i < MaxHistory+5; i++ {
		s.AddTurn("user", fmt.Sprintf("turn %d", i))
	}
	if len(s.History) != MaxHistory {
		t.Fatalf("expected history capped at %d, got %d", MaxHistory, len(s.History))
	}
	// The oldest turns should have been dropped.
	if s.History[0].Text != "turn 5" {
		t.Errorf("expected oldest kept turn to be 'turn 5', got %q", s.History[0].Text)
	}
}

func TestRetryTracking(t *testing.T) {
	s := NewConversationState()
	if s.MaxRetriesReached() {
		t.Error("fresh state should not report retries reached")
	}
	s.IncrementRetry("Other", "uh")
	s.IncrementRetry("Other", "um")
	if !s.MaxRetriesReached() {
		t.Error("expected retry budget exhausted at default max")
	}
	s.ResetRetry()
	if s.RetryCount != 0 || s.LastFailedIntent != "" || s.LastFailedUtterance != "" {
		t.Error("reset should clear the retry record")
	}
}

func TestStepIsRegistration(t *testing.T) {
	registration := []Step{
		StepRegistrationOffered,
		StepRegistrationCollectingName,
		StepRegistrationCollectingDOB,
		StepRegistrationCollectingPhone,
		StepRegistrationCollectingEmail,
	}
	for _, step := range registration {
		if !step.IsRegistration() {
			t.Errorf("expected %q to be a registration step", step)
		}
	}
	if StepNone.IsRegistration() || StepAwaitingAuth.IsRegistration() {
		t.Error("non-registration steps misclassified")
	}
}

func TestUpdateSlotsIgnoresNil(t *testing.T) {
	s := NewConversationState()
	s.UpdateSlots(map[string]any{"doctor": "Dr. Cole", "noise": nil})
	if s.SlotString("doctor") != "Dr. Cole" {
		t.Errorf("expected doctor slot, got %q", s.SlotString("doctor"))
	}
	if _, ok := s.Slots["noise"]; ok {
		t.Error("nil values should not be stored")
	}
	s.ClearSlot("doctor")
	if s.SlotString("doctor") != "" {
		t.Error("expected cleared slot")
	}
}

func TestUserTurnCount(t *testing.T) {
	s := NewConversationState()
	s.AddTurn("user", "hi")
	s.AddTurn("assistant", "hello")
	s.AddTurn("user", "book me in")
	if got := s.UserTurnCount(); got != 2 {
		t.Errorf("expected 2 user turns, got %d", got)
	}
}
