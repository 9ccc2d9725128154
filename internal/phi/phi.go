// Package phi masks protected health information before text reaches logs
// or persistent storage.
package phi

import "regexp"

var (
	phoneRegex    = regexp.MustCompile(`\+?1?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	dmyDateRegex  = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	isoDateRegex  = regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`)
	bornRegex     = regexp.MustCompile(`(?i)born\s+[\w\s,]+\d{1,4}`)
	nameRegex     = regexp.MustCompile(`(?i)(my name is|I am|I'm)\s+([A-Z][a-z]+\s+[A-Z][a-z]+)`)
	labValueRegex = regexp.MustCompile(`\b\d+\.?\d*\s*(mg/dL|mmHg|%|IU)\b`)
)

// Mask replaces phone numbers, dates of birth, self-identified names, and lab
// values with placeholder tokens. Safe on empty input.
func Mask(text string) string {
	if text == "" {
		return text
	}
	text = phoneRegex.ReplaceAllString(text, "[PHONE]")
	text = dmyDateRegex.ReplaceAllString(text, "[DATE]")
	text = isoDateRegex.ReplaceAllString(text, "[DATE]")
	text = bornRegex.ReplaceAllString(text, "born [DATE]")
	text = nameRegex.ReplaceAllString(text, "$1 [NAME]")
	text = labValueRegex.ReplaceAllString(text, "[LAB_VALUE]")
	return text
}

// MaskValue masks a single credential-like value (name, DOB) wholesale for
// log lines that must record that a value was present without recording it.
func MaskValue(value string) string {
	if value == "" {
		return value
	}
	return "[PHI]"
}
