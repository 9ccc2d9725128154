// Package nlu provides intent classification and entity extraction.
//
// This file extracts identity credentials (name and date of birth) from
// free-form speech, regex-first with a model backfill for phrasings the
// patterns miss.
package nlu

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/validation"
)

var (
	// "My name is Alicia Thompson, born April 12, 1985"
	nameBornPattern = regexp.MustCompile(`(?i)my name is\s+([A-Za-z\-' ]+?),?\s+born\s+(.+)`)
	// "born April 12, 1985" / "I was born April 12, 1985"
	bornPattern = regexp.MustCompile(`(?i)(?:i was )?born\s+(.+?)(?:\.|$)`)
	// "name is Alicia Thompson"
	namePattern = regexp.MustCompile(`(?i)name is\s+([A-Za-z\-' ]+?)(?:\.|,|$)`)
)

type credentialPayload struct {
	PatientName string `json:"patient_name"`
	DOB         string `json:"dob"`
}

// ExtractCredentials pulls a patient name and ISO date of birth out of an
// utterance. Regex patterns run first; when either field is missing and a
// client is available, a structured model call backfills it. Empty strings
// mean the field was not found.
func ExtractCredentials(ctx context.Context, client genai.ClientInterface, text string) (name, dob string) {
	name, dob = extractCredentialsRegex(text)
	if (name != "" && dob != "") || client == nil || strings.TrimSpace(text) == "" {
		return name, dob
	}

	prompt := "Extract the patient's full name and date of birth from this utterance, if present.\n\n" +
		"Utterance: " + text + "\n\n" +
		`Return ONLY a JSON object: {"patient_name": "<full name or empty string>", "dob": "<YYYY-MM-DD or empty string>"}`
	var payload credentialPayload
	if err := client.GenerateStructured(ctx, prompt,
		"You extract identity fields from clinic phone calls. Return only JSON.", &payload); err != nil {
		slog.Warn("nlu.ExtractCredentials: model backfill failed", "error", err)
		return name, dob
	}

	if name == "" {
		name = strings.TrimSpace(payload.PatientName)
	}
	if dob == "" {
		dob = normalizeDOB(payload.DOB)
	}
	return name, dob
}

func extractCredentialsRegex(text string) (name, dob string) {
	if m := nameBornPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), normalizeDOB(m[2])
	}
	if m := bornPattern.FindStringSubmatch(text); m != nil {
		dob = normalizeDOB(m[1])
	}
	if m := namePattern.FindStringSubmatch(text); m != nil {
		name = strings.TrimSpace(m[1])
	}
	return name, dob
}

// normalizeDOB returns the ISO form of a spoken date, or "" when it cannot be
// parsed unambiguously.
func normalizeDOB(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := validation.ParseDate(raw)
	if err != nil {
		return ""
	}
	return parsed.Format("2006-01-02")
}
