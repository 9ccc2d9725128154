// Package models defines the core data structures for CareLine.
//
// It includes intents, the agent result envelope, conversation state, and the
// patient/schedule record types shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Intent is the closed vocabulary of caller intents.
type Intent string

const (
	// IntentScheduleAppointment books a new appointment.
	IntentScheduleAppointment Intent = "ScheduleAppointment"
	// IntentRescheduleAppointment moves an existing appointment.
	IntentRescheduleAppointment Intent = "RescheduleAppointment"
	// IntentCancelAppointment cancels an existing appointment.
	IntentCancelAppointment Intent = "CancelAppointment"
	// IntentInfoQuery asks for patient-specific medical information.
	IntentInfoQuery Intent = "InfoQuery"
	// IntentFAQ asks a general clinic question (hours, location, insurance).
	IntentFAQ Intent = "FAQ"
	// IntentRegisterNewPatient starts new patient signup.
	IntentRegisterNewPatient Intent = "RegisterNewPatient"
	// IntentOther covers greetings, unclear, or out-of-scope utterances.
	IntentOther Intent = "Other"
)

// AllIntents lists the valid intents in classifier order.
var AllIntents = []Intent{
	IntentScheduleAppointment,
	IntentRescheduleAppointment,
	IntentCancelAppointment,
	IntentInfoQuery,
	IntentFAQ,
	IntentRegisterNewPatient,
	IntentOther,
}

// IsValidIntent checks if the given intent is part of the vocabulary.
func IsValidIntent(i Intent) bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// RequiresPatient reports whether the intent needs an authenticated patient.
func (i Intent) RequiresPatient() bool {
	switch i {
	case IntentScheduleAppointment, IntentRescheduleAppointment, IntentCancelAppointment, IntentInfoQuery:
		return true
	default:
		return false
	}
}

// Status represents the outcome of an agent or orchestrator call.
type Status string

const (
	// StatusSuccess indicates the call completed normally.
	StatusSuccess Status = "success"
	// StatusFailure indicates the call failed; Errors carries details.
	StatusFailure Status = "failure"
	// StatusPartial indicates the call completed with warnings.
	StatusPartial Status = "partial"
	// StatusSkipped indicates the call was not performed.
	StatusSkipped Status = "skipped"
)

// AgentResult is the uniform envelope returned by every agent and by the
// orchestrator. Output conventionally carries "text" and, from the
// orchestrator, "state" (the serialized conversation state to round-trip).
type AgentResult struct {
	Status   Status         `json:"status"`
	Output   map[string]any `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// SuccessResult creates a success envelope with the given output.
func SuccessResult(output map[string]any) AgentResult {
	return AgentResult{Status: StatusSuccess, Output: output, Metadata: map[string]any{}}
}

// FailureResult creates a failure envelope carrying the error message.
func FailureResult(errMsg string, output map[string]any) AgentResult {
	if output == nil {
		output = map[string]any{}
	}
	return AgentResult{Status: StatusFailure, Output: output, Metadata: map[string]any{}, Errors: []string{errMsg}}
}

// PartialResult creates a partial envelope with warnings.
func PartialResult(output map[string]any, warnings ...string) AgentResult {
	return AgentResult{Status: StatusPartial, Output: output, Metadata: map[string]any{}, Warnings: warnings}
}

// IsSuccess reports whether the call completed normally.
func (r AgentResult) IsSuccess() bool { return r.Status == StatusSuccess }

// IsFailure reports whether the call failed.
func (r AgentResult) IsFailure() bool { return r.Status == StatusFailure }

// Text returns the response text from the output, if any.
func (r AgentResult) Text() string {
	if r.Output == nil {
		return ""
	}
	if s, ok := r.Output["text"].(string); ok {
		return s
	}
	return ""
}

// Error variables for expected domain conditions. The orchestrator matches
// these with errors.Is instead of wrapping calls in broad handlers.
var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDuplicatePatient    = errors.New("patient already exists")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotBooked          = errors.New("slot already booked")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Contact holds patient contact details.
type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// LabResult is a single lab entry in a patient record.
type LabResult struct {
	TestType       string `json:"test_type"`
	Date           string `json:"date,omitempty"`
	Value          string `json:"value,omitempty"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
}

// Medication is a single medication entry in a patient record.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Patient is a record in the patients dataset, keyed by id (P-xxxx).
type Patient struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	DOB          string         `json:"dob"`
	Contact      Contact        `json:"contact,omitempty"`
	Appointments []*Appointment `json:"appointments"`
	Medications  []Medication   `json:"medications"`
	LabResults   []LabResult    `json:"lab_results"`
	VisitNotes   []string       `json:"visit_notes,omitempty"`
}

// FirstName returns the first word of the patient name, or "there".
func (p *Patient) FirstName() string {
	if p == nil {
		return "there"
	}
	return FirstNameOf(p.Name)
}

// Slot is an appointment time unit tied to a doctor (S-xxx-n).
type Slot struct {
	SlotID        string `json:"slot_id"`
	Start         string `json:"start"`
	End           string `json:"end,omitempty"`
	Location      string `json:"location,omitempty"`
	Status        string `json:"status"`
	PatientID     string `json:"patient_id,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Doctor        string `json:"doctor,omitempty"`
	DoctorID      string `json:"doctor_id,omitempty"`
}

// Slot status values.
const (
	SlotAvailable = "available"
	SlotBooked    = "booked"
)

// Doctor is a provider entry in the schedule dataset.
type Doctor struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Specialty    string  `json:"specialty,omitempty"`
	Availability []*Slot `json:"availability"`
}

// Schedule is the clinic schedule dataset.
type Schedule struct {
	Doctors []*Doctor `json:"doctors"`
}

// Appointment is a booked visit (A-xxxxxxxx).
type Appointment struct {
	AppointmentID string `json:"appointment_id"`
	SlotID        string `json:"slot_id"`
	DoctorID      string `json:"doctor_id"`
	Doctor        string `json:"doctor"`
	PatientID     string `json:"patient_id,omitempty"`
	Datetime      string `json:"datetime"`
	Location      string `json:"location,omitempty"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// Appointment status values.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCanceled  = "canceled"
)

// FAQEntry is a question/answer pair in the FAQ dataset.
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FlaggedResponse is one record in the durable review log, appended whenever
// a scored response falls below the review threshold.
type FlaggedResponse struct {
	SessionID       string   `json:"session_id"`
	Turn            int      `json:"turn"`
	Timestamp       string   `json:"timestamp"`
	UserQuery       string   `json:"user_query"`
	AgentResponse   string   `json:"agent_response"`
	ConfidenceScore float64  `json:"confidence_score"`
	Intent          string   `json:"intent"`
	Entities        Entities `json:"entities"`
	PatientID       string   `json:"patient_id,omitempty"`
	// ScoreExplanation is a short judge note for the reviewer.
	ScoreExplanation string `json:"score_explanation,omitempty"`
}

// TurnLog is one record in the per-session conversation log. Utterance and
// response text are PHI-masked before the record is constructed.
type TurnLog struct {
	SessionID       string  `json:"session_id"`
	Turn            int     `json:"turn"`
	Timestamp       string  `json:"timestamp"`
	Utterance       string  `json:"utterance"`
	Intent          string  `json:"intent,omitempty"`
	ResponseText    string  `json:"response_text,omitempty"`
	Status          string  `json:"status,omitempty"`
	ConfidenceScore float64 `json:"confidence_score,omitempty"`
}

// UTCTimestamp formats t the way log records expect.
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

// FirstNameOf returns the first word of a full name, or "there" when empty.
func FirstNameOf(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	if i := strings.IndexByte(name, ' '); i >= 0 {
		return name[:i]
	}
	return name
}
