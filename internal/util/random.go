// Package util provides utility functions for the CareLine application.
package util

import (
	"math/rand"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified
// length. Uses math/rand/v2; ids are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.Intn(16)])
	}

	return builder.String()
}

// GenerateAppointmentID generates a unique appointment ID with "A-" prefix.
func GenerateAppointmentID() string {
	return GenerateRandomID("A-", 8)
}

// GenerateSessionID generates a unique session ID with "session-" prefix.
func GenerateSessionID() string {
	return GenerateRandomID("session-", 16)
}
