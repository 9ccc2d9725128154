// Package flow implements the dialogue orchestrator for CareLine.
//
// This file implements graduated recovery when intent classification
// confidence is low: clarification question first, explicit menu second,
// human escalation once the retry budget is exhausted.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/nlu"
)

const fallbackClarification = "I want to be sure I help with the right thing. Could you share a bit more about what you need help with?"

const menuOptions = "I want to make sure I help you with the right thing. Here's what I can assist with:\n\n" +
	"1. Schedule a new appointment\n" +
	"2. Reschedule an existing appointment\n" +
	"3. Cancel an appointment\n" +
	"4. Check lab results or medications\n" +
	"5. Get clinic information (hours, location, insurance)\n" +
	"6. Speak with a staff member\n\n" +
	"Please tell me the number or describe what you need."

// handleNLUFailure picks the recovery response for a low-confidence turn.
func (o *Orchestrator) handleNLUFailure(ctx context.Context, utterance string, nluResult nlu.Result, state *models.ConversationState) string {
	state.IncrementRetry(string(nluResult.Intent), utterance)
	retryCount := state.RetryCount

	slog.Warn("flow.handleNLUFailure: low NLU confidence",
		"confidence", nluResult.Confidence, "retryCount", retryCount)

	if retryCount == 1 {
		return o.generateClarificationQuestion(ctx, utterance, nluResult)
	}

	if retryCount == 2 && state.MaxRetries > 1 {
		slog.Info("flow.handleNLUFailure: offered menu options")
		return menuOptions
	}

	if retryCount >= state.MaxRetries {
		state.ResetRetry()
		slog.Warn("flow.handleNLUFailure: escalated to human assistance after max retries")
		return o.escalationMessage()
	}

	// Max retries set to 1: still give one more structured attempt.
	return menuOptions
}

// generateClarificationQuestion asks the model for a contextual clarification,
// falling back to a fixed question on any failure.
func (o *Orchestrator) generateClarificationQuestion(ctx context.Context, utterance string, nluResult nlu.Result) string {
	if o.client == nil {
		return fallbackClarification
	}
	prompt := fmt.Sprintf(
		"You are a helpful healthcare assistant. The user said something unclear, and you need to politely ask for clarification.\n\n"+
			"User said: %q\n\n"+
			"Our system detected intent '%s' with entities %v, but we're not confident.\n\n"+
			"Generate a SHORT, friendly clarification question (1-2 sentences) to understand what they need.",
		utterance, nluResult.Intent, nluResult.Entities.Values(),
	)
	out, err := o.client.Generate(ctx, genai.Request{Prompt: prompt, Temperature: 0.7, MaxTokens: 120})
	if err != nil {
		slog.Warn("flow.generateClarificationQuestion: model call failed", "error", err)
		return fallbackClarification
	}
	if text := strings.TrimSpace(out); text != "" {
		return text
	}
	return fallbackClarification
}

func (o *Orchestrator) escalationMessage() string {
	return fmt.Sprintf(
		"I apologize, but I'm having trouble understanding your request. "+
			"Let me connect you with a team member who can better assist you. "+
			"Please call our main line at %s, or stay on the line and someone will be with you shortly.",
		o.cfg.EscalationPhone,
	)
}
