// Package flow implements the dialogue orchestrator for CareLine.
//
// This file implements the multi-turn new-patient registration flow: offer,
// name, date of birth, phone, and email collection, then record creation.
package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/validation"
)

// acceptWords signal the caller accepted the registration offer.
var acceptWords = []string{"yes", "sure", "okay", "yeah", "yep", "please"}

// declineContactNumber is offered when the caller declines registration.
const declineContactNumber = "415-555-0100"

func (o *Orchestrator) handleRegistrationFlow(utterance string, state *models.ConversationState, in TurnInput) models.AgentResult {
	switch state.Step {
	case models.StepRegistrationOffered:
		lower := strings.ToLower(utterance)
		for _, word := range acceptWords {
			if strings.Contains(lower, word) {
				// Name and DOB were captured during the failed auth attempt;
				// resume collection at the phone number.
				state.SetStep(models.StepRegistrationCollectingPhone)
				return models.SuccessResult(map[string]any{"text": "Great! What's your phone number?"})
			}
		}
		state.ClearRegistrationData()
		state.SetStep(models.StepNone)
		text := fmt.Sprintf("No problem. If you'd like to speak with someone, please call %s.", declineContactNumber)
		return models.SuccessResult(map[string]any{"text": text})

	case models.StepRegistrationCollectingName:
		name := in.PatientName
		if name == "" {
			name = strings.TrimSpace(utterance)
		}
		cleanName, err := validation.ValidateName(name)
		if err != nil {
			return models.FailureResult(err.Error(), map[string]any{"text": err.Error()})
		}
		state.SetRegistrationField("name", cleanName)
		state.SetStep(models.StepRegistrationCollectingDOB)
		return models.SuccessResult(map[string]any{"text": "Thanks. What's your date of birth?"})

	case models.StepRegistrationCollectingDOB:
		dob := in.DOB
		if dob == "" {
			parsed, err := validation.ParseDate(utterance)
			if err != nil {
				text := "I didn't catch that date. Please provide your date of birth."
				if errors.Is(err, validation.ErrAmbiguousDate) {
					text = "I want to get your birthday right. Could you say it with the month name, like April 12, 1985?"
				}
				return models.FailureResult(text, map[string]any{"text": text})
			}
			dob = parsed.Format("2006-01-02")
		}

		name := state.RegistrationField("name")
		if patient, ok := o.records.Authenticate(name, dob); ok {
			// Already on file: authenticate instead of creating a duplicate.
			slog.Info("flow.handleRegistrationFlow: duplicate detected, authenticating", "patientID", patient.ID)
			state.SetPatient(patient.ID)
			state.ClearRegistrationData()
			state.SetStep(models.StepNone)
			return models.SuccessResult(map[string]any{"text": "You're already registered! How can I help you?"})
		}

		state.SetRegistrationField("dob", dob)
		state.SetStep(models.StepRegistrationCollectingPhone)
		return models.SuccessResult(map[string]any{"text": "Perfect. What's your phone number?"})

	case models.StepRegistrationCollectingPhone:
		normPhone, err := validation.ValidatePhone(strings.TrimSpace(utterance))
		if err != nil {
			return models.FailureResult(err.Error(), map[string]any{"text": err.Error()})
		}
		state.SetRegistrationField("phone", normPhone)
		state.SetStep(models.StepRegistrationCollectingEmail)
		return models.SuccessResult(map[string]any{"text": "Great. What's your email address?"})

	case models.StepRegistrationCollectingEmail:
		normEmail, err := validation.ValidateEmail(strings.TrimSpace(utterance))
		if err != nil {
			return models.FailureResult(err.Error(), map[string]any{"text": err.Error()})
		}

		patient, err := o.records.CreatePatient(
			state.RegistrationField("name"),
			state.RegistrationField("dob"),
			state.RegistrationField("phone"),
			normEmail,
		)
		if err != nil {
			slog.Error("flow.handleRegistrationFlow: registration failed", "error", err)
			text := fmt.Sprintf("Registration error: %v", err)
			return models.FailureResult(text, map[string]any{"text": text})
		}

		firstName := patient.FirstName()
		state.SetPatient(patient.ID)
		state.ClearRegistrationData()
		state.SetStep(models.StepNone)

		var text string
		if state.CurrentIntent == models.IntentScheduleAppointment {
			text = fmt.Sprintf("Perfect, %s! You're registered. Let's schedule your appointment.", firstName)
		} else {
			text = fmt.Sprintf("Welcome, %s! You're all registered. How can I help?", firstName)
		}
		return models.SuccessResult(map[string]any{"text": text, "patient_id": patient.ID})
	}

	slog.Error("flow.handleRegistrationFlow: unknown registration step", "step", state.Step)
	state.ClearRegistrationData()
	state.SetStep(models.StepNone)
	text := "Something went wrong. How can I help you?"
	return models.FailureResult(text, map[string]any{"text": text})
}
