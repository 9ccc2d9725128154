package nlu

import (
	"context"
	"errors"
	"testing"
)

func TestExtractCredentialsRegex(t *testing.T) {
	ctx := context.Background()

	// Canonical phrasing with both fields.
	name, dob := ExtractCredentials(ctx, nil, "My name is Alicia Thompson, born April 12, 1985")
	if name != "Alicia Thompson" {
		t.Errorf("expected full name, got %q", name)
	}
	if dob != "1985-04-12" {
		t.Errorf("expected ISO dob, got %q", dob)
	}

	// Name only.
	name, dob = ExtractCredentials(ctx, nil, "My name is Marcus Webb.")
	if name != "Marcus Webb" {
		t.Errorf("expected name, got %q", name)
	}
	if dob != "" {
		t.Errorf("expected no dob, got %q", dob)
	}

	// DOB only.
	name, dob = ExtractCredentials(ctx, nil, "I was born November 3, 1972")
	if name != "" {
		t.Errorf("expected no name, got %q", name)
	}
	if dob != "1972-11-03" {
		t.Errorf("expected ISO dob, got %q", dob)
	}

	// Nothing extractable.
	name, dob = ExtractCredentials(ctx, nil, "I'd like to book an appointment")
	if name != "" || dob != "" {
		t.Errorf("expected empty credentials, got %q / %q", name, dob)
	}
}

func TestExtractCredentialsModelBackfill(t *testing.T) {
	client := &stubClient{structuredJSON: `{"patient_name":"Priya Raman","dob":"1990-02-27"}`}
	name, dob := ExtractCredentials(context.Background(), client, "this is priya, birthday february twenty-seventh nineteen ninety")
	if name != "Priya Raman" {
		t.Errorf("expected backfilled name, got %q", name)
	}
	if dob != "1990-02-27" {
		t.Errorf("expected backfilled dob, got %q", dob)
	}
}

func TestExtractCredentialsBackfillKeepsRegexFields(t *testing.T) {
	// Regex found the name; the model only fills the missing dob.
	client := &stubClient{structuredJSON: `{"patient_name":"Wrong Person","dob":"1964-08-19"}`}
	name, dob := ExtractCredentials(context.Background(), client, "My name is Daniel Okafor, and my birthday is the nineteenth of august sixty-four")
	if name != "Daniel Okafor" {
		t.Errorf("regex name should win, got %q", name)
	}
	if dob != "1964-08-19" {
		t.Errorf("expected backfilled dob, got %q", dob)
	}
}

func TestExtractCredentialsBackfillFailure(t *testing.T) {
	client := &stubClient{structuredErr: errors.New("model unavailable")}
	name, dob := ExtractCredentials(context.Background(), client, "My name is Rosa Delgado")
	if name != "Rosa Delgado" {
		t.Errorf("regex result should survive backfill failure, got %q", name)
	}
	if dob != "" {
		t.Errorf("expected empty dob, got %q", dob)
	}
}
