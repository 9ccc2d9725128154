// Package models defines conversation state structures for CareLine dialogues.
package models

// MaxHistory bounds the number of turns kept in conversation history.
const MaxHistory = 20

// DefaultMaxRetries is the default retry budget for NLU-failure recovery.
const DefaultMaxRetries = 2

// Step drives sub-flow resumption across turns. At most one sub-flow is
// pending at a time; every branch that claims a step overwrites it wholesale.
type Step string

const (
	// StepNone means no sub-flow is pending.
	StepNone Step = ""
	// StepAwaitingAuth resumes the authentication sub-protocol.
	StepAwaitingAuth Step = "awaiting_auth"
	// StepRegistrationOffered awaits accept/decline of the registration offer.
	StepRegistrationOffered Step = "registration_offered"
	// StepRegistrationCollectingName collects the full name.
	StepRegistrationCollectingName Step = "registration_collecting_name"
	// StepRegistrationCollectingDOB collects the date of birth.
	StepRegistrationCollectingDOB Step = "registration_collecting_dob"
	// StepRegistrationCollectingPhone collects the phone number.
	StepRegistrationCollectingPhone Step = "registration_collecting_phone"
	// StepRegistrationCollectingEmail collects the email address.
	StepRegistrationCollectingEmail Step = "registration_collecting_email"
)

// IsRegistration reports whether the step belongs to the registration flow.
func (s Step) IsRegistration() bool {
	return len(s) >= len("registration_") && s[:len("registration_")] == "registration_"
}

// Turn is one utterance in the conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ConversationState tracks dialogue context across turns. It is owned by the
// caller between turns and round-tripped through the turn output; the
// orchestrator only mutates the copy it is given.
type ConversationState struct {
	CurrentIntent       Intent            `json:"current_intent,omitempty"`
	PatientID           string            `json:"patient_id,omitempty"`
	Slots               map[string]any    `json:"slots"`
	History             []Turn            `json:"history"`
	Step                Step              `json:"step,omitempty"`
	RegistrationData    map[string]string `json:"registration_data"`
	SessionID           string            `json:"session_id,omitempty"`
	RetryCount          int               `json:"retry_count"`
	MaxRetries          int               `json:"max_retries"`
	LastFailedIntent    string            `json:"last_failed_intent,omitempty"`
	LastFailedUtterance string            `json:"last_failed_utterance,omitempty"`
}

// NewConversationState creates an empty state with default retry budget.
func NewConversationState() *ConversationState {
	return &ConversationState{
		Slots:            make(map[string]any),
		History:          []Turn{},
		RegistrationData: make(map[string]string),
		MaxRetries:       DefaultMaxRetries,
	}
}

// AddTurn appends a dialogue turn, trimming to the most recent MaxHistory.
func (s *ConversationState) AddTurn(role, text string) {
	s.History = append(s.History, Turn{Role: role, Text: text})
	if len(s.History) > MaxHistory {
		s.History = s.History[len(s.History)-MaxHistory:]
	}
}

// SetIntent records the last classified intent.
func (s *ConversationState) SetIntent(intent Intent) {
	s.CurrentIntent = intent
}

// SetPatient binds the authenticated patient id.
func (s *ConversationState) SetPatient(patientID string) {
	s.PatientID = patientID
}

// UpdateSlots merges the given key/values into the scratch slot store,
// ignoring nil values.
func (s *ConversationState) UpdateSlots(kv map[string]any) {
	if s.Slots == nil {
		s.Slots = make(map[string]any)
	}
	for k, v := range kv {
		if v == nil {
			continue
		}
		s.Slots[k] = v
	}
}

// SlotString returns the string value of a slot, or "" when absent.
func (s *ConversationState) SlotString(key string) string {
	if s.Slots == nil {
		return ""
	}
	if v, ok := s.Slots[key].(string); ok {
		return v
	}
	return ""
}

// ClearSlot removes a slot entry.
func (s *ConversationState) ClearSlot(key string) {
	delete(s.Slots, key)
}

// SetStep sets the pending sub-flow step.
func (s *ConversationState) SetStep(step Step) {
	s.Step = step
}

// RegistrationField returns a collected registration field value.
func (s *ConversationState) RegistrationField(field string) string {
	return s.RegistrationData[field]
}

// SetRegistrationField stores a collected registration field value.
func (s *ConversationState) SetRegistrationField(field, value string) {
	if s.RegistrationData == nil {
		s.RegistrationData = make(map[string]string)
	}
	s.RegistrationData[field] = value
}

// ClearRegistrationData drops all collected registration fields.
func (s *ConversationState) ClearRegistrationData() {
	s.RegistrationData = make(map[string]string)
}

// IncrementRetry bumps the NLU-failure retry counter and records what failed.
func (s *ConversationState) IncrementRetry(failedIntent, utterance string) {
	s.RetryCount++
	s.LastFailedIntent = failedIntent
	s.LastFailedUtterance = utterance
}

// ResetRetry zeroes the retry counter and clears the failure record.
func (s *ConversationState) ResetRetry() {
	s.RetryCount = 0
	s.LastFailedIntent = ""
	s.LastFailedUtterance = ""
}

// MaxRetriesReached reports whether the retry budget is exhausted.
func (s *ConversationState) MaxRetriesReached() bool {
	return s.RetryCount >= s.MaxRetries
}

// UserTurnCount derives the turn number from user messages in history.
func (s *ConversationState) UserTurnCount() int {
	n := 0
	for _, t := range s.History {
		if t.Role == "user" {
			n++
		}
	}
	return n
}

// ToMap serializes the state to a plain key/value structure suitable for
// crossing the stateless request boundary. Round-trips losslessly through
// StateFromMap.
func (s *ConversationState) ToMap() map[string]any {
	history := make([]any, 0, len(s.History))
	for _, t := range s.History {
		history = append(history, map[string]any{"role": t.Role, "text": t.Text})
	}
	slots := s.Slots
	if slots == nil {
		slots = map[string]any{}
	}
	reg := map[string]any{}
	for k, v := range s.RegistrationData {
		reg[k] = v
	}
	return map[string]any{
		"current_intent":        string(s.CurrentIntent),
		"patient_id":            s.PatientID,
		"slots":                 slots,
		"history":               history,
		"step":                  string(s.Step),
		"registration_data":     reg,
		"session_id":            s.SessionID,
		"retry_count":           s.RetryCount,
		"max_retries":           s.MaxRetries,
		"last_failed_intent":    s.LastFailedIntent,
		"last_failed_utterance": s.LastFailedUtterance,
	}
}

// StateFromMap reconstructs a ConversationState from its serialized form.
// Unknown keys are ignored, not rejected.
func StateFromMap(data map[string]any) *ConversationState {
	s := NewConversationState()
	if data == nil {
		return s
	}
	s.CurrentIntent = Intent(stringValue(data["current_intent"]))
	s.PatientID = stringValue(data["patient_id"])
	if slots, ok := data["slots"].(map[string]any); ok {
		s.Slots = slots
	}
	if history, ok := data["history"].([]any); ok {
		for _, raw := range history {
			if m, ok := raw.(map[string]any); ok {
				s.History = append(s.History, Turn{Role: stringValue(m["role"]), Text: stringValue(m["text"])})
			}
		}
	}
	s.Step = Step(stringValue(data["step"]))
	if reg, ok := data["registration_data"].(map[string]any); ok {
		for k, v := range reg {
			s.RegistrationData[k] = stringValue(v)
		}
	}
	s.SessionID = stringValue(data["session_id"])
	s.RetryCount = intValue(data["retry_count"])
	if mr := intValue(data["max_retries"]); mr > 0 {
		s.MaxRetries = mr
	}
	s.LastFailedIntent = stringValue(data["last_failed_intent"])
	s.LastFailedUtterance = stringValue(data["last_failed_utterance"])
	return s
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
