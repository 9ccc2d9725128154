package phi

import (
	"strings"
	"testing"
)

func TestMask(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"phone", "Call me at 415-555-1234 tomorrow", "[PHONE]"},
		{"phone with parens", "It's (415) 555-1234", "[PHONE]"},
		{"iso date", "My appointment is on 1985-04-12", "[DATE]"},
		{"slash date", "DOB 4/12/1985 on file", "[DATE]"},
		{"spoken dob", "I was born April 12, 1985", "born [DATE]"},
		{"self-identified name", "My name is Alicia Thompson", "My name is [NAME]"},
		{"lab value", "Your cholesterol is 212 mg/dL", "[LAB_VALUE]"},
	}
	for _, c := range cases {
		got := Mask(c.in)
		if !strings.Contains(got, c.want) {
			t.Errorf("%s: Mask(%q) = %q, expected to contain %q", c.name, c.in, got, c.want)
		}
	}
}

func TestMaskLeavesCleanTextAlone(t *testing.T) {
	in := "What are your clinic hours?"
	if got := Mask(in); got != in {
		t.Errorf("clean text changed: %q", got)
	}
	if Mask("") != "" {
		t.Error("empty input should stay empty")
	}
}

func TestMaskValue(t *testing.T) {
	if MaskValue("Alicia Thompson") != "[PHI]" {
		t.Error("non-empty values should mask wholesale")
	}
	if MaskValue("") != "" {
		t.Error("empty value should stay empty")
	}
}
