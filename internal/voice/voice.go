// Package voice wraps the Twilio telephony surface for CareLine.
//
// It validates webhook signatures and builds the TwiML documents that speak a
// response and gather the caller's next utterance.
package voice

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	twilioclient "github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"
)

// Opts holds configuration options for the voice integration.
type Opts struct {
	AuthToken string
	// BaseURL is the externally visible URL Twilio signs requests against.
	BaseURL string
}

// Option defines a configuration option for the voice integration.
type Option func(*Opts)

// WithAuthToken sets the Twilio auth token used for signature validation.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithBaseURL sets the externally visible base URL for signature validation.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// Client validates Twilio webhooks and renders TwiML.
type Client struct {
	validator twilioclient.RequestValidator
	baseURL   string
	validate  bool
}

// NewClient creates a voice client. Falls back to TWILIO_AUTH_TOKEN and
// VOICE_BASE_URL environment variables when options are not provided. An
// empty auth token disables signature validation (local development).
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("VOICE_BASE_URL")
	}
	slog.Debug("voice client config loaded",
		"AuthToken_set", cfg.AuthToken != "",
		"BaseURL_set", cfg.BaseURL != "")

	return &Client{
		validator: twilioclient.NewRequestValidator(cfg.AuthToken),
		baseURL:   cfg.BaseURL,
		validate:  cfg.AuthToken != "",
	}
}

// ValidateRequest checks the X-Twilio-Signature header against the request
// form parameters. Requests are accepted unchecked when no auth token is
// configured.
func (c *Client) ValidateRequest(r *http.Request) bool {
	if !c.validate {
		return true
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("voice.ValidateRequest: failed to parse form", "error", err)
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}
	url := c.baseURL + r.URL.RequestURI()
	signature := r.Header.Get("X-Twilio-Signature")
	return c.validator.Validate(url, params, signature)
}

// GatherResponse renders a TwiML document that speaks the message and gathers
// the caller's next utterance as speech, posting it to actionURL.
func GatherResponse(message, actionURL string) (string, error) {
	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        actionURL,
		SpeechTimeout: "auto",
		InnerElements: []twiml.Element{
			&twiml.VoiceSay{Message: message},
		},
	}
	doc, err := twiml.Voice([]twiml.Element{gather})
	if err != nil {
		return "", fmt.Errorf("failed to render gather TwiML: %w", err)
	}
	return doc, nil
}

// SayResponse renders a TwiML document that speaks the message and ends the
// call.
func SayResponse(message string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: message},
		&twiml.VoiceHangup{},
	})
	if err != nil {
		return "", fmt.Errorf("failed to render say TwiML: %w", err)
	}
	return doc, nil
}
