// Package flow implements the dialogue orchestrator for CareLine.
//
// Each call to Execute processes one conversation turn: it resumes any
// pending authentication or registration sub-flow, classifies the utterance,
// applies graduated recovery when classification confidence is low, routes the
// intent to the scheduling, records, or knowledge operation, scores the final
// response, and flags low-confidence answers for human review.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/judge"
	"github.com/BTreeMap/CareLine/internal/knowledge"
	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/nlu"
	"github.com/BTreeMap/CareLine/internal/phi"
	"github.com/BTreeMap/CareLine/internal/records"
	"github.com/BTreeMap/CareLine/internal/respond"
	"github.com/BTreeMap/CareLine/internal/scheduling"
	"github.com/BTreeMap/CareLine/internal/store"
	"github.com/BTreeMap/CareLine/internal/util"
)

// Orchestrator default configuration values.
const (
	// DefaultConfidenceThreshold flags responses scoring below it for review.
	DefaultConfidenceThreshold = 0.7
	// DefaultLowConfidenceThreshold triggers NLU-failure recovery below it.
	DefaultLowConfidenceThreshold = 0.6
	// DefaultMaxRetryAttempts bounds recovery attempts before escalation.
	DefaultMaxRetryAttempts = 2
	// DefaultEscalationPhone is offered when recovery is exhausted.
	DefaultEscalationPhone = "(555) 0100"
	// DefaultDoctor is used when the caller names no provider.
	DefaultDoctor = "Dr. Maya Singh"
)

// reviewDisclaimer is appended to flagged responses when disclaimers are on.
const reviewDisclaimer = "\n\n(Note: This response will be reviewed by our team to ensure accuracy.)"

// Config controls orchestrator behavior.
type Config struct {
	EnableConfidenceScoring bool
	ConfidenceThreshold     float64
	AddDisclaimer           bool
	EnableErrorRecovery     bool
	LowConfidenceThreshold  float64
	MaxRetryAttempts        int
	EscalationPhone         string
	DemoMode                bool
	DefaultDoctor           string
}

// DefaultConfig returns the standard production configuration.
func DefaultConfig() Config {
	return Config{
		EnableConfidenceScoring: true,
		ConfidenceThreshold:     DefaultConfidenceThreshold,
		AddDisclaimer:           true,
		EnableErrorRecovery:     true,
		LowConfidenceThreshold:  DefaultLowConfidenceThreshold,
		MaxRetryAttempts:        DefaultMaxRetryAttempts,
		EscalationPhone:         DefaultEscalationPhone,
		DemoMode:                true,
		DefaultDoctor:           DefaultDoctor,
	}
}

// Deps carries the collaborating services the orchestrator routes to.
type Deps struct {
	Classifier *nlu.Classifier
	Records    *records.Store
	Scheduling *scheduling.Store
	Knowledge  *knowledge.Base
	Responder  *respond.Generator
	GenAI      genai.ClientInterface
	Store      store.Store
}

// Orchestrator is the central coordinator for multi-turn conversations.
type Orchestrator struct {
	cfg        Config
	classifier *nlu.Classifier
	records    *records.Store
	scheduling *scheduling.Store
	knowledge  *knowledge.Base
	responder  *respond.Generator
	client     genai.ClientInterface
	scorer     *judge.Scorer
	store      store.Store
}

// NewOrchestrator creates an orchestrator over the given services. Zero-value
// Config fields fall back to the defaults.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.LowConfidenceThreshold <= 0 {
		cfg.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if cfg.EscalationPhone == "" {
		cfg.EscalationPhone = DefaultEscalationPhone
	}
	if cfg.DefaultDoctor == "" {
		cfg.DefaultDoctor = DefaultDoctor
	}
	o := &Orchestrator{
		cfg:        cfg,
		classifier: deps.Classifier,
		records:    deps.Records,
		scheduling: deps.Scheduling,
		knowledge:  deps.Knowledge,
		responder:  deps.Responder,
		client:     deps.GenAI,
		store:      deps.Store,
	}
	if cfg.EnableConfidenceScoring {
		o.scorer = judge.NewScorer(deps.GenAI, cfg.ConfidenceThreshold)
	}
	return o
}

// TurnInput is the request for one conversation turn. State is the serialized
// conversation state from the previous turn's output; omit it to start fresh.
type TurnInput struct {
	Utterance     string         `json:"utterance"`
	State         map[string]any `json:"state,omitempty"`
	PatientName   string         `json:"patient_name,omitempty"`
	DOB           string         `json:"dob,omitempty"`
	SlotID        string         `json:"slot_id,omitempty"`
	AppointmentID string         `json:"appointment_id,omitempty"`
	NewSlot       string         `json:"new_slot,omitempty"`
	Doctor        string         `json:"doctor,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
}

// Execute processes one conversation turn and returns the response envelope.
// The output always carries "text" and "state"; the caller round-trips the
// state into the next turn.
func (o *Orchestrator) Execute(ctx context.Context, in TurnInput) models.AgentResult {
	state := models.StateFromMap(in.State)
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = state.SessionID
	}
	if sessionID == "" {
		sessionID = util.GenerateSessionID()
	}
	state.SessionID = sessionID
	state.MaxRetries = o.cfg.MaxRetryAttempts
	state.AddTurn("user", in.Utterance)
	turnNumber := state.UserTurnCount()

	// Resume authentication flow before re-classifying intent. Once verified,
	// the caller gets the intent that prompted verification; their credential
	// utterance is not worth reclassifying.
	resumedIntent := models.Intent("")
	if state.Step == models.StepAwaitingAuth {
		pending := state.CurrentIntent
		if result, handled := o.authenticatePatient(state, in); handled {
			return o.finishTurn(state, turnNumber, in.Utterance, result, 0)
		}
		if pending != "" && pending != models.IntentOther {
			resumedIntent = pending
		}
	}

	var nluResult nlu.Result
	if resumedIntent != "" {
		nluResult = nlu.Result{Intent: resumedIntent, Confidence: 1}
	} else {
		nluResult = o.classifier.Classify(ctx, in.Utterance, state.ToMap())
	}
	intent := nluResult.Intent
	// Mid-registration answers (names, dates, emails) classify as noise; keep
	// the intent that brought the caller here so completion can resume it.
	if !state.Step.IsRegistration() {
		state.SetIntent(intent)
	}
	slog.Debug("flow.Execute: classified", "intent", intent, "confidence", nluResult.Confidence, "sessionID", sessionID)

	if o.cfg.EnableErrorRecovery && nluResult.Confidence < o.cfg.LowConfidenceThreshold {
		fallbackText := o.handleNLUFailure(ctx, in.Utterance, nluResult, state)
		state.AddTurn("assistant", fallbackText)
		result := models.AgentResult{
			Status: models.StatusPartial,
			Output: map[string]any{"text": fallbackText},
			Metadata: map[string]any{
				"nlu_confidence": nluResult.Confidence,
				"fallback_level": state.RetryCount,
				"intent":         string(intent),
			},
			Warnings: []string{"NLU_LOW_CONFIDENCE"},
		}
		return o.finishTurn(state, turnNumber, in.Utterance, result, 0)
	}

	if state.Step.IsRegistration() {
		result := o.handleRegistrationFlow(in.Utterance, state, in)
		state.AddTurn("assistant", result.Text())
		result.Output["state"] = state.ToMap()
		return o.finishTurn(state, turnNumber, in.Utterance, result, 0)
	}

	if intent == models.IntentRegisterNewPatient {
		state.SetStep(models.StepRegistrationCollectingName)
		text := "Welcome! Let's get you registered. What's your full name?"
		state.AddTurn("assistant", text)
		result := models.SuccessResult(map[string]any{"text": text})
		return o.finishTurn(state, turnNumber, in.Utterance, result, 0)
	}

	if intent.RequiresPatient() && state.PatientID == "" {
		if result, handled := o.authenticatePatient(state, in); handled {
			return o.finishTurn(state, turnNumber, in.Utterance, result, 0)
		}
	}

	routed := o.routeIntent(ctx, intent, in.Utterance, state, in)
	if o.cfg.EnableErrorRecovery && nluResult.Confidence >= o.cfg.LowConfidenceThreshold && state.RetryCount > 0 {
		state.ResetRetry()
	}

	responseText := routed.Text()
	var score float64
	if o.scorer != nil && responseText != "" {
		score = o.scorer.Score(ctx, in.Utterance, responseText, judge.Context{
			Intent:        intent,
			Entities:      nluResult.Entities,
			Authenticated: state.PatientID != "",
			History:       lastTurns(state.History, 3),
		})
		routed.Metadata["confidence_score"] = score
		routed.Output["confidence_score"] = score
		slog.Info("flow.Execute: response confidence score", "score", score, "sessionID", sessionID)

		if o.scorer.ShouldFlag(score) {
			o.flagForReview(sessionID, turnNumber, in.Utterance, responseText, score, nluResult, state.PatientID)
			routed.Metadata["flagged_for_review"] = true
			if o.cfg.AddDisclaimer {
				responseText += reviewDisclaimer
			}
		}
	}

	routed.Output["text"] = responseText
	state.AddTurn("assistant", responseText)
	routed.Output["state"] = state.ToMap()
	return o.finishTurn(state, turnNumber, in.Utterance, routed, score)
}

// finishTurn guarantees the state is in the output and records the turn log.
func (o *Orchestrator) finishTurn(state *models.ConversationState, turnNumber int, utterance string, result models.AgentResult, score float64) models.AgentResult {
	if result.Output == nil {
		result.Output = map[string]any{}
	}
	if _, ok := result.Output["state"]; !ok {
		result.Output["state"] = state.ToMap()
	}

	if o.store != nil {
		entry := models.TurnLog{
			SessionID:       state.SessionID,
			Turn:            turnNumber,
			Timestamp:       models.UTCTimestamp(time.Now()),
			Utterance:       phi.Mask(utterance),
			Intent:          string(state.CurrentIntent),
			ResponseText:    phi.Mask(result.Text()),
			Status:          string(result.Status),
			ConfidenceScore: score,
		}
		// Logging must not block or fail the turn.
		go func() {
			if err := o.store.AddTurnLog(entry); err != nil {
				slog.Error("flow.finishTurn: turn log write failed", "error", err, "sessionID", entry.SessionID)
			}
		}()
	}
	return result
}

// flagForReview appends the response to the durable review queue.
func (o *Orchestrator) flagForReview(sessionID string, turnNumber int, utterance, responseText string, score float64, nluResult nlu.Result, patientID string) {
	if sessionID == "" {
		sessionID = "session-unknown"
	}
	flagged := models.FlaggedResponse{
		SessionID:       sessionID,
		Turn:            turnNumber,
		Timestamp:       models.UTCTimestamp(time.Now()),
		UserQuery:       utterance,
		AgentResponse:   responseText,
		ConfidenceScore: score,
		Intent:          string(nluResult.Intent),
		Entities:        nluResult.Entities,
		PatientID:       patientID,
	}
	slog.Warn("flow.flagForReview: response flagged for review", "score", score, "response", truncate(responseText, 120))
	if o.store == nil {
		return
	}
	go func() {
		// The reviewer note is generated off the turn path; the caller
		// already has their response.
		flagged.ScoreExplanation = o.scorer.ExplainScore(context.Background(), utterance, responseText, score)
		if err := o.store.AddFlaggedResponse(flagged); err != nil {
			slog.Error("flow.flagForReview: review queue write failed", "error", err, "sessionID", flagged.SessionID)
		}
	}()
}

func lastTurns(history []models.Turn, n int) []models.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
