// Package respond turns structured operation results into natural,
// receptionist-style phone responses. Generation is LLM-first with
// deterministic template fallbacks so every call path produces text even
// when the model is unreachable.
package respond

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/models"
)

const maxOfferedSlots = 3

// Generator produces conversational response text.
type Generator struct {
	client genai.ClientInterface
}

// NewGenerator creates a response generator. A nil client disables LLM
// generation and every method returns its template fallback.
func NewGenerator(client genai.ClientInterface) *Generator {
	return &Generator{client: client}
}

// AuthPrompt produces the identity-verification request. When a partial name
// is already known the prompt addresses the caller by it.
func (g *Generator) AuthPrompt(patientName string) string {
	if patientName != "" {
		return fmt.Sprintf(
			"Thanks %s! To confirm your identity, could you please tell me your full name and date of birth? For example: My name is Alicia Thompson, born April 12, 1985.",
			patientName,
		)
	}
	return "To help you with that, I'll need to verify your identity first. Could you please tell me your name and date of birth? For example: My name is Alicia Thompson, born April 12, 1985."
}

// Greeting produces the call-opening line.
func (g *Generator) Greeting(patientName string) string {
	if patientName != "" {
		return fmt.Sprintf("Hi %s! How can I help you today?", patientName)
	}
	return "Thanks for calling the clinic. How can I help you today?"
}

// Fallback produces the generic did-not-catch-that reprompt.
func (g *Generator) Fallback(patientName string) string {
	namePart := ""
	if patientName != "" {
		namePart = ", " + patientName
	}
	return fmt.Sprintf("I'm sorry%s, I didn't quite catch that. Could you please repeat what you need help with?", namePart)
}

// Goodbye produces the call-closing line.
func (g *Generator) Goodbye(patientName string) string {
	namePart := ""
	if patientName != "" {
		namePart = " " + patientName
	}
	return fmt.Sprintf("Thanks for calling%s! If you need anything else, don't hesitate to call us back. Take care!", namePart)
}

// SlotOffer presents up to three available slots and asks the caller to pick
// one.
func (g *Generator) SlotOffer(ctx context.Context, patientName, doctorName string, slots []*models.Slot) string {
	if len(slots) == 0 {
		return fmt.Sprintf(
			"I'm sorry, %s, but %s doesn't have any available appointments in the next few weeks. Would you like me to check with a different provider or put you on a waitlist?",
			patientName, doctorName,
		)
	}

	descriptions := describeSlots(slots)

	if g.client != nil {
		prompt := fmt.Sprintf(
			"Generate a friendly, natural response offering appointment slots to a patient. Context:\n- Patient name: %s\n- Doctor: %s\n- Available times: %s\n\nGenerate a warm, conversational response that:\n1. Acknowledges the request\n2. Presents the options clearly\n3. Asks which time works best\n4. Keeps it concise (2-3 sentences max)\n\nResponse:",
			patientName, doctorName, strings.Join(descriptions, ", "),
		)
		out, err := g.client.Generate(ctx, genai.Request{
			System:      "You are a friendly clinic receptionist having a phone conversation.",
			Prompt:      prompt,
			Temperature: 0.7,
			MaxTokens:   150,
		})
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		slog.Warn("respond.SlotOffer: using template fallback", "error", err)
	}

	return fmt.Sprintf(
		"Great, %s! I have some available appointments with %s. I can offer you %s. Which one works best for you?",
		patientName, doctorName, joinNaturally(descriptions),
	)
}

// BookingConfirmation confirms a newly booked appointment.
func (g *Generator) BookingConfirmation(ctx context.Context, patientName string, appt *models.Appointment) string {
	day, clock, ok := formatAppointmentTime(appt.Datetime)
	if !ok {
		return fmt.Sprintf(
			"Perfect! I've booked your appointment with %s. You'll receive a reminder the day before. Is there anything else I can help you with?",
			doctorOrDefault(appt.Doctor),
		)
	}

	if g.client != nil {
		prompt := fmt.Sprintf(
			"Generate a friendly appointment confirmation message. Context:\n- Patient name: %s\n- Doctor: %s\n- Date/time: %s at %s\n- Location: %s\n\nGenerate a warm confirmation that:\n1. Confirms the booking\n2. Includes all key details\n3. Mentions they'll get a reminder\n4. Asks if they need anything else\n5. Keeps it friendly and concise (2-3 sentences)\n\nResponse:",
			patientName, doctorOrDefault(appt.Doctor), day, clock, locationOrDefault(appt.Location),
		)
		out, err := g.client.Generate(ctx, genai.Request{
			System:      "You are a helpful clinic receptionist confirming an appointment.",
			Prompt:      prompt,
			Temperature: 0.7,
			MaxTokens:   150,
		})
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		slog.Warn("respond.BookingConfirmation: using template fallback", "error", err)
	}

	return fmt.Sprintf(
		"Perfect! I've booked your appointment with %s for %s at %s. You'll receive a reminder the day before. Is there anything else I can help you with?",
		doctorOrDefault(appt.Doctor), day, clock,
	)
}

// CancellationConfirmation confirms a cancellation. Always templated; the
// message has no free-form content worth a model call.
func (g *Generator) CancellationConfirmation(patientName string, appt *models.Appointment) string {
	day, clock, ok := formatAppointmentTime(appt.Datetime)
	if !ok {
		return fmt.Sprintf(
			"I've cancelled your appointment, %s. Feel free to call us if you'd like to reschedule. Is there anything else I can help you with?",
			patientName,
		)
	}
	return fmt.Sprintf(
		"I've cancelled your appointment for %s at %s. If you need to reschedule, just give us a call anytime. Is there anything else I can help you with today, %s?",
		day, clock, patientName,
	)
}

// InfoResponse presents record data (lab results, medications, appointments)
// in plain language.
func (g *Generator) InfoResponse(ctx context.Context, patientName, infoType, data string) string {
	if g.client != nil {
		prompt := fmt.Sprintf(
			"Generate a friendly, clear response to a patient asking about their %s. Context:\n- Patient name: %s\n- Info type: %s\n- Data: %s\n\nGenerate a response that:\n1. Presents the information clearly\n2. Explains any medical terms simply\n3. Offers to schedule follow-up if relevant\n4. Stays warm and professional\n5. Keeps it concise (3-4 sentences max)\n\nResponse:",
			infoType, patientName, infoType, data,
		)
		out, err := g.client.Generate(ctx, genai.Request{
			System:      "You are a knowledgeable clinic receptionist explaining medical information.",
			Prompt:      prompt,
			Temperature: 0.7,
			MaxTokens:   200,
		})
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		slog.Warn("respond.InfoResponse: using template fallback", "error", err)
	}
	return fmt.Sprintf("Here's the information you requested, %s: %s", patientName, data)
}

// ProactiveFollowup suggests scheduling a follow-up visit after presenting
// results.
func (g *Generator) ProactiveFollowup(patientName, reason string) string {
	if reason != "" {
		return fmt.Sprintf(
			"%s, based on these results I recommend a follow-up visit to discuss %s. Would you like me to schedule that for you?",
			patientName, reason,
		)
	}
	return fmt.Sprintf(
		"%s, I can schedule a follow-up appointment to discuss these results if you'd like. Would you like me to check availability now?",
		patientName,
	)
}

func describeSlots(slots []*models.Slot) []string {
	limit := len(slots)
	if limit > maxOfferedSlots {
		limit = maxOfferedSlots
	}
	descriptions := make([]string, 0, limit)
	for _, slot := range slots[:limit] {
		if t, err := time.Parse(time.RFC3339, slot.Start); err == nil {
			descriptions = append(descriptions, formatDay(t)+" at "+formatClock(t))
			continue
		}
		descriptions = append(descriptions, "slot "+slot.SlotID)
	}
	return descriptions
}

func joinNaturally(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " or " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", or " + parts[len(parts)-1]
	}
}

func formatAppointmentTime(value string) (day, clock string, ok bool) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "", "", false
	}
	return formatDay(t), formatClock(t), true
}

func formatDay(t time.Time) string {
	return t.Format("Monday, January 02")
}

func formatClock(t time.Time) string {
	return strings.TrimPrefix(t.Format("3:04 PM"), "0")
}

func doctorOrDefault(doctor string) string {
	if doctor == "" {
		return "the doctor"
	}
	return doctor
}

func locationOrDefault(location string) string {
	if location == "" {
		return "the clinic"
	}
	return location
}
