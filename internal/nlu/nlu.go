// Package nlu classifies caller intents and extracts entities.
//
// The primary path is a schema-constrained model call; on any failure a
// keyword fallback keeps behavior predictable offline. The fallback checks
// run most-specific first and their order is significant, since utterances
// may contain multiple trigger words.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/models"
)

// Result is a classification outcome.
type Result struct {
	Intent     models.Intent
	Entities   models.Entities
	Confidence float64
}

const classifierSystemPrompt = `You are an NLU classifier for a healthcare clinic voice assistant. Classify the user's intent and extract relevant entities.

Valid intents: ScheduleAppointment, RescheduleAppointment, CancelAppointment, InfoQuery, FAQ, RegisterNewPatient, Other

Intent definitions:
- FAQ: General clinic questions (hours, location, services) - NO patient data
- InfoQuery: Patient-specific medical info (lab results, medications, records)
- ScheduleAppointment: Book new appointment
- RescheduleAppointment: Change existing appointment
- CancelAppointment: Cancel existing appointment
- RegisterNewPatient: New patient signup
- Other: Greetings, unclear, or out-of-scope

Entity extraction:
- patient_name: Full name (e.g., 'John Smith', 'Alicia Thompson')
- date: Any date mentioned (normalize to YYYY-MM-DD if possible)
- time: Appointment time (e.g., '2:00 PM', '14:00')
- doctor: Doctor name (e.g., 'Dr. Singh', 'Dr. Maya Singh')
- test_type: Medical test (e.g., 'lab results', 'blood work')

Return ONLY a JSON object: {"intent": "...", "entities": {...}, "confidence": 0.0-1.0}`

// Classifier maps utterances to intents with a confidence score.
type Classifier struct {
	client genai.ClientInterface
}

// NewClassifier creates a classifier over the completion client. A nil
// client always takes the keyword fallback path.
func NewClassifier(client genai.ClientInterface) *Classifier {
	return &Classifier{client: client}
}

// structuredResult matches the classifier's JSON output schema.
type structuredResult struct {
	Intent     string          `json:"intent"`
	Entities   models.Entities `json:"entities"`
	Confidence *float64        `json:"confidence"`
}

// Classify determines the intent of the utterance. The serialized state is
// passed as classifier context. Classification never fails: model errors and
// malformed output fall through to the keyword rules.
func (c *Classifier) Classify(ctx context.Context, utterance string, stateContext map[string]any) Result {
	structured, err := c.analyzeWithModel(ctx, utterance, stateContext)
	if err != nil {
		slog.Warn("nlu.Classify: model path failed, using keyword fallback", "error", err)
		return c.fallbackRules(utterance)
	}

	intent := models.Intent(structured.Intent)
	if !models.IsValidIntent(intent) {
		slog.Warn("nlu.Classify: model returned unknown intent, using keyword fallback", "intent", structured.Intent)
		return c.fallbackRules(utterance)
	}

	confidence := 0.0
	if structured.Confidence != nil {
		confidence = *structured.Confidence
	} else {
		confidence = estimateConfidence(intent, utterance)
	}

	return Result{Intent: intent, Entities: structured.Entities, Confidence: confidence}
}

func (c *Classifier) analyzeWithModel(ctx context.Context, utterance string, stateContext map[string]any) (*structuredResult, error) {
	if c.client == nil {
		return nil, fmt.Errorf("no completion client configured")
	}
	contextJSON, err := json.Marshal(stateContext)
	if err != nil {
		contextJSON = []byte("{}")
	}
	prompt := fmt.Sprintf("User utterance: %s\nContext: %s", utterance, contextJSON)

	var out structuredResult
	if err := c.client.GenerateStructured(ctx, prompt, classifierSystemPrompt, &out); err != nil {
		return nil, err
	}
	if out.Intent == "" {
		return nil, fmt.Errorf("classifier output missing intent")
	}
	return &out, nil
}

// fallbackRules is the deterministic keyword ladder. Registration keywords
// first (most specific), then cancel, reschedule, schedule, info, FAQ.
func (c *Classifier) fallbackRules(utterance string) Result {
	lower := strings.ToLower(utterance)

	if containsAny(lower, "new patient", "register", "sign up", "first time") {
		return Result{Intent: models.IntentRegisterNewPatient, Confidence: 0.8}
	}
	if strings.Contains(lower, "cancel") {
		return Result{Intent: models.IntentCancelAppointment, Confidence: 0.85}
	}
	if strings.Contains(lower, "reschedule") || strings.Contains(lower, "move") {
		return Result{Intent: models.IntentRescheduleAppointment, Confidence: 0.8}
	}
	if containsAny(lower, "book", "schedule", "appointment") {
		return Result{Intent: models.IntentScheduleAppointment, Confidence: 0.8}
	}
	if containsAny(lower, "lab", "result", "medication", "test") {
		return Result{Intent: models.IntentInfoQuery, Confidence: 0.75}
	}
	if containsAny(lower, "hours", "location", "insurance", "faq") {
		return Result{Intent: models.IntentFAQ, Confidence: 0.7}
	}
	return Result{Intent: models.IntentOther, Confidence: 0.4}
}

// estimateConfidence is the heuristic used when the model supplies no score.
func estimateConfidence(intent models.Intent, utterance string) float64 {
	if strings.TrimSpace(utterance) == "" {
		return 0.2
	}
	if intent == models.IntentOther {
		return 0.5
	}
	wordCount := len(strings.Fields(utterance))
	switch {
	case wordCount > 10:
		return 0.8
	case wordCount > 5:
		return 0.7
	default:
		return 0.6
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
