package flow

import (
	"context"
	"strings"
	"testing"

	"github.com/BTreeMap/CareLine/internal/models"
)

// registrationConfig keeps recovery out of the way so free-form answers like
// names and dates reach the registration flow.
func registrationConfig() Config {
	cfg := DefaultConfig()
	cfg.EnableErrorRecovery = false
	cfg.EnableConfidenceScoring = false
	return cfg
}

func offeredState() *models.ConversationState {
	state := models.NewConversationState()
	state.SetStep(models.StepRegistrationOffered)
	state.SetRegistrationField("name", "Pat Doe")
	state.SetRegistrationField("dob", "1990-01-01")
	return state
}

func TestRegistrationOfferAccepted(t *testing.T) {
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)

	result := o.Execute(context.Background(), TurnInput{Utterance: "yes please", State: offeredState().ToMap()})
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Text() != "Great! What's your phone number?" {
		t.Errorf("unexpected accept response: %q", result.Text())
	}
	// Name and DOB were captured during failed auth; collection resumes at
	// the phone number.
	if stateOf(t, result)["step"] != string(models.StepRegistrationCollectingPhone) {
		t.Errorf("expected phone collection step, got %v", stateOf(t, result)["step"])
	}
}

func TestRegistrationOfferDeclined(t *testing.T) {
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)

	result := o.Execute(context.Background(), TurnInput{Utterance: "no thanks", State: offeredState().ToMap()})
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if !strings.Contains(result.Text(), "415-555-0100") {
		t.Errorf("decline should offer the front-desk number: %q", result.Text())
	}
	state := stateOf(t, result)
	if state["step"] != "" {
		t.Errorf("expected cleared step, got %v", state["step"])
	}
	reg, _ := state["registration_data"].(map[string]any)
	if len(reg) != 0 {
		t.Errorf("expected cleared registration data, got %+v", reg)
	}
}

func TestRegistrationFullFlow(t *testing.T) {
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)
	ctx := context.Background()

	// "new patient" keyword starts the flow.
	result := o.Execute(ctx, TurnInput{Utterance: "Hi, I'm a new patient"})
	if !strings.Contains(result.Text(), "What's your full name?") {
		t.Fatalf("unexpected opening: %q", result.Text())
	}

	result = o.Execute(ctx, TurnInput{Utterance: "Jordan Avery", State: stateOf(t, result)})
	if result.Text() != "Thanks. What's your date of birth?" {
		t.Fatalf("unexpected name step response: %q", result.Text())
	}

	result = o.Execute(ctx, TurnInput{Utterance: "April 3, 1992", State: stateOf(t, result)})
	if result.Text() != "Perfect. What's your phone number?" {
		t.Fatalf("unexpected dob step response: %q", result.Text())
	}

	result = o.Execute(ctx, TurnInput{Utterance: "415 555 1234", State: stateOf(t, result)})
	if result.Text() != "Great. What's your email address?" {
		t.Fatalf("unexpected phone step response: %q", result.Text())
	}

	result = o.Execute(ctx, TurnInput{Utterance: "jordan@example.com", State: stateOf(t, result)})
	if !result.IsSuccess() {
		t.Fatalf("expected registration success, got %+v", result)
	}
	if !strings.Contains(result.Text(), "Welcome, Jordan! You're all registered.") {
		t.Errorf("unexpected completion: %q", result.Text())
	}
	state := stateOf(t, result)
	if state["patient_id"] != "P-1005" {
		t.Errorf("expected new patient bound to session, got %v", state["patient_id"])
	}
	if result.Output["patient_id"] != "P-1005" {
		t.Errorf("expected patient id in output, got %v", result.Output["patient_id"])
	}
	if state["step"] != "" {
		t.Errorf("expected cleared step, got %v", state["step"])
	}
}

func TestRegistrationValidationErrors(t *testing.T) {
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)
	ctx := context.Background()

	state := models.NewConversationState()
	state.SetStep(models.StepRegistrationCollectingName)

	// Single-word name re-prompts without advancing.
	result := o.Execute(ctx, TurnInput{Utterance: "Jordan", State: state.ToMap()})
	if !result.IsFailure() {
		t.Fatalf("expected validation failure, got %q", result.Status)
	}
	if result.Text() != "Please provide both first and last name" {
		t.Errorf("unexpected validation prompt: %q", result.Text())
	}
	if stateOf(t, result)["step"] != string(models.StepRegistrationCollectingName) {
		t.Errorf("step should not advance on validation failure")
	}

	// Bad phone re-prompts.
	state = models.NewConversationState()
	state.SetStep(models.StepRegistrationCollectingPhone)
	result = o.Execute(ctx, TurnInput{Utterance: "12345", State: state.ToMap()})
	if result.Text() != "Please provide a 10-digit phone number" {
		t.Errorf("unexpected phone prompt: %q", result.Text())
	}

	// Bad email re-prompts.
	state = models.NewConversationState()
	state.SetStep(models.StepRegistrationCollectingEmail)
	result = o.Execute(ctx, TurnInput{Utterance: "not an email", State: state.ToMap()})
	if result.Text() != "Please provide a valid email address" {
		t.Errorf("unexpected email prompt: %q", result.Text())
	}
}

func TestRegistrationAmbiguousDOB(t *testing.T) {
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)
	ctx := context.Background()

	state := models.NewConversationState()
	state.SetStep(models.StepRegistrationCollectingDOB)
	state.SetRegistrationField("name", "Jordan Avery")

	// A slash date that could be MM/DD or DD/MM asks for the month name.
	result := o.Execute(ctx, TurnInput{Utterance: "3/4/1992", State: state.ToMap()})
	if !strings.Contains(result.Text(), "say it with the month name") {
		t.Errorf("expected ambiguity re-prompt, got %q", result.Text())
	}
	if stateOf(t, result)["step"] != string(models.StepRegistrationCollectingDOB) {
		t.Error("step should not advance on ambiguous date")
	}

	// Unparseable input gets the generic re-prompt.
	result = o.Execute(ctx, TurnInput{Utterance: "sometime in spring", State: stateOf(t, result)})
	if result.Text() != "I didn't catch that date. Please provide your date of birth." {
		t.Errorf("unexpected unparseable prompt: %q", result.Text())
	}
}

func TestRegistrationDuplicateAuthenticates(t *testing.T) {
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)

	state := models.NewConversationState()
	state.SetStep(models.StepRegistrationCollectingDOB)
	state.SetRegistrationField("name", "Alicia Thompson")

	result := o.Execute(context.Background(), TurnInput{Utterance: "April 12, 1985", State: state.ToMap()})
	if !result.IsSuccess() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Text() != "You're already registered! How can I help you?" {
		t.Errorf("unexpected duplicate response: %q", result.Text())
	}
	newState := stateOf(t, result)
	if newState["patient_id"] != "P-1001" {
		t.Errorf("existing patient should be authenticated, got %v", newState["patient_id"])
	}
	if newState["step"] != "" {
		t.Errorf("expected cleared step, got %v", newState["step"])
	}
}

func TestRegistrationCompletionMentionsScheduling(t *testing.T) {
	// When the caller came in wanting an appointment, the completion pivots
	// back to scheduling.
	o, _ := newTestOrchestrator(registrationConfig(), nil, nil)

	state := models.NewConversationState()
	state.SetIntent(models.IntentScheduleAppointment)
	state.SetStep(models.StepRegistrationCollectingEmail)
	state.SetRegistrationField("name", "Jordan Avery")
	state.SetRegistrationField("dob", "1992-04-03")
	state.SetRegistrationField("phone", "+1-415-555-1234")

	result := o.Execute(context.Background(), TurnInput{Utterance: "jordan@example.com", State: state.ToMap()})
	if !strings.Contains(result.Text(), "Let's schedule your appointment.") {
		t.Errorf("expected scheduling pivot, got %q", result.Text())
	}
}
