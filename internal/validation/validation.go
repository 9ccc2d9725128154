// Package validation provides input validation for patient registration.
//
// Validators return the normalized value on success and an error whose text
// is the user-facing prompt on failure, so flow code can surface it directly.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	nonDigitRegex = regexp.MustCompile(`[^\d]`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidateName checks a patient name: minimum length 2 and at least a first
// and last name. Returns the trimmed name.
func ValidateName(name string) (string, error) {
	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return "", errors.New("Name is required")
	}
	if len(cleaned) < 2 {
		return "", errors.New("Please provide your full name")
	}
	if !strings.Contains(cleaned, " ") {
		return "", errors.New("Please provide both first and last name")
	}
	return cleaned, nil
}

// ValidatePhone validates and normalizes a US phone number. Accepts 10 digits
// or 11 with a leading 1, in any common punctuation. Returns +1-NNN-NNN-NNNN.
func ValidatePhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", errors.New("Phone number is required")
	}
	digits := nonDigitRegex.ReplaceAllString(phone, "")
	switch {
	case len(digits) == 10:
		return "+1-" + digits[0:3] + "-" + digits[3:6] + "-" + digits[6:10], nil
	case len(digits) == 11 && digits[0] == '1':
		return "+1-" + digits[1:4] + "-" + digits[4:7] + "-" + digits[7:11], nil
	default:
		return "", errors.New("Please provide a 10-digit phone number")
	}
}

// ValidateEmail performs format validation and normalizes to lowercase. It
// does not verify deliverability.
func ValidateEmail(email string) (string, error) {
	cleaned := strings.TrimSpace(email)
	if cleaned == "" {
		return "", errors.New("Email address is required")
	}
	if !emailRegex.MatchString(cleaned) {
		return "", errors.New("Please provide a valid email address")
	}
	return strings.ToLower(cleaned), nil
}
