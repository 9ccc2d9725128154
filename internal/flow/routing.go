// Package flow implements the dialogue orchestrator for CareLine.
//
// This file dispatches a classified turn to the scheduling, records, or
// knowledge operation and shapes the response envelope.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/phi"
)

// followupKeywords in a lab interpretation trigger a proactive follow-up
// suggestion.
var followupKeywords = []string{"recommend", "recommendation", "elevated", "above", "suggest"}

func (o *Orchestrator) routeIntent(ctx context.Context, intent models.Intent, utterance string, state *models.ConversationState, in TurnInput) models.AgentResult {
	switch intent {
	case models.IntentFAQ:
		return o.handleFAQ(utterance)
	case models.IntentInfoQuery:
		return o.handleInfoQuery(ctx, state)
	case models.IntentScheduleAppointment:
		return o.handleSchedule(ctx, state, in)
	case models.IntentRescheduleAppointment:
		return o.handleReschedule(state, in)
	case models.IntentCancelAppointment:
		return o.handleCancel(state, in)
	default:
		result := models.PartialResult(
			map[string]any{"text": "I can help with appointments, records, or clinic questions. How can I assist?"},
			"Unhandled intent",
		)
		result.Metadata["intent"] = string(intent)
		return result
	}
}

func (o *Orchestrator) handleFAQ(query string) models.AgentResult {
	match, ok := o.knowledge.Answer(query)
	if !ok {
		result := models.PartialResult(
			map[string]any{
				"text":  "I'm not sure about that one. You can reach our front desk for anything I can't answer. Is there something else I can help with?",
				"query": phi.Mask(query),
			},
			"No FAQ matched query",
		)
		return result
	}
	result := models.SuccessResult(map[string]any{
		"text":       match.Answer,
		"question":   match.Question,
		"answer":     match.Answer,
		"confidence": match.Confidence,
	})
	return result
}

func (o *Orchestrator) handleInfoQuery(ctx context.Context, state *models.ConversationState) models.AgentResult {
	labs, err := o.records.LabResults(state.PatientID)
	if err != nil {
		return o.operationFailure("I couldn't pull up your records just now. Please try again in a moment.", err)
	}
	patient, err := o.records.GetPatientByID(state.PatientID)
	if err != nil {
		return o.operationFailure("I couldn't pull up your records just now. Please try again in a moment.", err)
	}
	firstName := patient.FirstName()

	if len(labs) == 0 {
		return models.SuccessResult(map[string]any{"text": "No lab results found.", "data": labs})
	}

	explanation := o.responder.InfoResponse(ctx, firstName, "lab_results", formatLabResults(labs))

	followUpSuggested := false
	for _, lab := range labs {
		interp := strings.ToLower(lab.Interpretation)
		for _, keyword := range followupKeywords {
			if strings.Contains(interp, keyword) {
				followUpSuggested = true
				break
			}
		}
		if followUpSuggested {
			break
		}
	}

	result := models.SuccessResult(map[string]any{"text": explanation, "data": labs})
	result.Metadata["follow_up_suggested"] = followUpSuggested
	if followUpSuggested {
		result.Output["follow_up_prompt"] = o.responder.ProactiveFollowup(firstName, "")
	}
	return result
}

func (o *Orchestrator) handleSchedule(ctx context.Context, state *models.ConversationState, in TurnInput) models.AgentResult {
	patient, err := o.records.GetPatientByID(state.PatientID)
	if err != nil {
		return o.operationFailure("I couldn't pull up your record just now. Please try again in a moment.", err)
	}
	firstName := patient.FirstName()

	if in.SlotID != "" {
		// Caller selected a slot: book it.
		appt, err := o.scheduling.BookAppointment(state.PatientID, in.SlotID)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrSlotBooked):
				return o.operationFailure("I'm sorry, that time was just taken. Would you like to pick another slot?", err)
			case errors.Is(err, models.ErrSlotNotFound):
				return o.operationFailure("I couldn't find that time slot. Could you pick one of the offered times?", err)
			default:
				return o.operationFailure("Something went wrong while booking your appointment. Please try again.", err)
			}
		}
		if err := o.records.AttachAppointment(state.PatientID, appt); err != nil {
			// Booking stands; the patient record link can be repaired offline.
			slog.Warn("flow.handleSchedule: failed to attach appointment to patient record", "error", err)
		}
		confirmation := o.responder.BookingConfirmation(ctx, firstName, appt)
		return models.SuccessResult(map[string]any{"text": confirmation, "appointment": appt})
	}

	// No slot picked yet: offer availability.
	doctor := in.Doctor
	if doctor == "" {
		doctor = state.SlotString("doctor")
	}
	if doctor == "" {
		doctor = o.cfg.DefaultDoctor
	}
	slots, err := o.scheduling.FindAvailableSlots(doctor, nil, nil)
	if err != nil {
		if errors.Is(err, models.ErrDoctorNotFound) {
			return o.operationFailure(fmt.Sprintf("I couldn't find a provider named %s. Could you check the name?", doctor), err)
		}
		return o.operationFailure("Something went wrong while checking availability. Please try again.", err)
	}
	if len(slots) == 0 {
		msg := fmt.Sprintf(
			"I'm sorry, %s, but %s doesn't have any available appointments right now. Would you like me to check with a different provider?",
			firstName, doctor,
		)
		return models.FailureResult(msg, map[string]any{"text": msg})
	}

	state.UpdateSlots(map[string]any{"doctor": doctor})
	offer := o.responder.SlotOffer(ctx, firstName, doctor, slots)
	return models.SuccessResult(map[string]any{"text": offer, "options": slots})
}

func (o *Orchestrator) handleReschedule(state *models.ConversationState, in TurnInput) models.AgentResult {
	if in.AppointmentID == "" || in.NewSlot == "" {
		msg := "To reschedule, I'll need your appointment ID and the new time you'd prefer."
		return models.FailureResult(msg, map[string]any{"text": msg})
	}
	appt, err := o.scheduling.RescheduleAppointment(in.AppointmentID, in.NewSlot)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAppointmentNotFound):
			return o.operationFailure("I couldn't find that appointment. Could you double-check the appointment ID?", err)
		case errors.Is(err, models.ErrSlotBooked):
			return o.operationFailure("I'm sorry, that new time was just taken. Would you like a different slot?", err)
		case errors.Is(err, models.ErrSlotNotFound):
			return o.operationFailure("I couldn't find that new time slot. Could you pick another time?", err)
		default:
			return o.operationFailure("Something went wrong while rescheduling. Please try again.", err)
		}
	}
	return models.SuccessResult(map[string]any{"text": "Your appointment has been rescheduled.", "appointment": appt})
}

func (o *Orchestrator) handleCancel(state *models.ConversationState, in TurnInput) models.AgentResult {
	patient, err := o.records.GetPatientByID(state.PatientID)
	if err != nil {
		return o.operationFailure("I couldn't pull up your record just now. Please try again in a moment.", err)
	}
	firstName := patient.FirstName()

	if in.AppointmentID == "" {
		msg := fmt.Sprintf(
			"I'd be happy to help cancel your appointment, %s. Could you tell me which appointment you'd like to cancel?",
			firstName,
		)
		return models.FailureResult(msg, map[string]any{"text": msg})
	}

	appt, err := o.scheduling.CancelAppointment(in.AppointmentID)
	if err != nil {
		if errors.Is(err, models.ErrAppointmentNotFound) {
			return o.operationFailure("I couldn't find that appointment. Could you double-check the appointment ID?", err)
		}
		return o.operationFailure("Something went wrong while cancelling. Please try again.", err)
	}

	confirmation := o.responder.CancellationConfirmation(firstName, appt)
	return models.SuccessResult(map[string]any{"text": confirmation, "appointment": appt})
}

// operationFailure shapes a user-facing failure while keeping the raw error
// in metadata for diagnostics.
func (o *Orchestrator) operationFailure(msg string, err error) models.AgentResult {
	result := models.FailureResult(msg, map[string]any{"text": msg})
	result.Metadata["error"] = err.Error()
	return result
}

func formatLabResults(labs []models.LabResult) string {
	data, err := json.Marshal(labs)
	if err != nil {
		return ""
	}
	return string(data)
}
