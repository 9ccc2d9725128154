// Package flow implements the dialogue orchestrator for CareLine.
//
// This file implements the identity-verification sub-protocol. Credentials
// can arrive across turns: a partial name or date of birth is parked in the
// state slots until the other half shows up.
package flow

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/phi"
)

// Slot keys for credentials collected across turns.
const (
	slotPartialAuthName = "partial_auth_name"
	slotPartialAuthDOB  = "partial_auth_dob"
)

// authenticatePatient attempts identity verification. It returns handled=false
// when authentication succeeded and the pipeline should continue; otherwise it
// returns the prompt or offer that ends the turn.
func (o *Orchestrator) authenticatePatient(state *models.ConversationState, in TurnInput) (models.AgentResult, bool) {
	partialName := state.SlotString(slotPartialAuthName)
	partialDOB := state.SlotString(slotPartialAuthDOB)
	if in.PatientName != "" {
		partialName = in.PatientName
	}
	if in.DOB != "" {
		partialDOB = in.DOB
	}

	slog.Info("flow.authenticatePatient: attempt",
		"name", phi.MaskValue(partialName), "dob", phi.MaskValue(partialDOB))

	// Both credentials present: verify against the patient records.
	if partialName != "" && partialDOB != "" {
		if patient, ok := o.records.Authenticate(partialName, partialDOB); ok {
			slog.Info("flow.authenticatePatient: success", "patientID", patient.ID)
			state.SetPatient(patient.ID)
			state.SetStep(models.StepNone)
			state.ClearSlot(slotPartialAuthName)
			state.ClearSlot(slotPartialAuthDOB)
			return models.AgentResult{}, false
		}

		// No record matched: offer registration instead of a dead end.
		slog.Warn("flow.authenticatePatient: no matching record",
			"name", phi.MaskValue(partialName), "dob", phi.MaskValue(partialDOB))

		state.SetRegistrationField("name", partialName)
		state.SetRegistrationField("dob", partialDOB)
		state.SetStep(models.StepRegistrationOffered)
		state.ClearSlot(slotPartialAuthName)
		state.ClearSlot(slotPartialAuthDOB)

		firstName := models.FirstNameOf(partialName)
		offerText := fmt.Sprintf(
			"I don't see a record for %s in our system. Would you like to register as a new patient? It'll just take a minute.",
			firstName,
		)
		result := models.FailureResult(offerText, map[string]any{"text": offerText})
		result.Metadata["auth_failed"] = true
		result.Metadata["registration_offered"] = true
		result.Metadata["phi_hash"] = phi.MaskValue(partialName + "|" + partialDOB)
		return result, true
	}

	// Name without DOB: park the name and ask for the date of birth.
	if partialName != "" {
		slog.Info("flow.authenticatePatient: partial, have name, need DOB")
		state.UpdateSlots(map[string]any{slotPartialAuthName: partialName})
		state.SetStep(models.StepAwaitingAuth)
		message := fmt.Sprintf(
			"Thanks, %s. To verify your identity, what's your date of birth? Please include the month, day, and year.",
			models.FirstNameOf(partialName),
		)
		result := models.FailureResult(message, map[string]any{"text": message})
		result.Metadata["auth_prompted"] = true
		result.Metadata["partial_auth"] = "name_only"
		result.Metadata["auth_expected"] = "dob"
		return result, true
	}

	// DOB without name.
	if partialDOB != "" {
		slog.Info("flow.authenticatePatient: partial, have DOB, need name")
		state.UpdateSlots(map[string]any{slotPartialAuthDOB: partialDOB})
		state.SetStep(models.StepAwaitingAuth)
		message := "Thank you. To continue, could you please tell me your full name? For example: Alicia Thompson."
		result := models.FailureResult(message, map[string]any{"text": message})
		result.Metadata["auth_prompted"] = true
		result.Metadata["partial_auth"] = "dob_only"
		result.Metadata["auth_expected"] = "name"
		return result, true
	}

	// No credentials yet: prompt, phrased around what the caller asked for.
	action := "assist you"
	switch state.CurrentIntent {
	case models.IntentInfoQuery:
		action = "access your medical information"
	case models.IntentScheduleAppointment, models.IntentRescheduleAppointment, models.IntentCancelAppointment:
		action = "help with your appointment"
	}

	message := fmt.Sprintf(
		"To %s, I'll need to verify your identity. What's your full name? After that I'll ask for your date of birth.",
		action,
	)
	responseText := message
	if !o.cfg.DemoMode {
		responseText = "Need patient verification to continue."
	}
	state.SetStep(models.StepAwaitingAuth)
	result := models.FailureResult(responseText, map[string]any{"text": responseText})
	result.Metadata["auth_prompted"] = true
	result.Metadata["auth_expected"] = "name"
	return result, true
}
