// Package api provides HTTP handlers and the main API server logic for
// CareLine.
//
// It exposes the conversation turn endpoint, the human-review queue, the
// per-session turn logs, and the Twilio voice webhooks.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CareLine/internal/flow"
	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/respond"
	"github.com/BTreeMap/CareLine/internal/store"
	"github.com/BTreeMap/CareLine/internal/voice"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Deps carries the services the HTTP layer fronts.
type Deps struct {
	Orchestrator *flow.Orchestrator
	Store        store.Store
	Voice        *voice.Client
	GenAI        genai.ClientInterface
	Responder    *respond.Generator
}

// Server hosts the CareLine HTTP endpoints.
type Server struct {
	addr         string
	orchestrator *flow.Orchestrator
	store        store.Store
	voice        *voice.Client
	genai        genai.ClientInterface
	responder    *respond.Generator
}

// NewServer creates the HTTP server. An empty addr falls back to DefaultAddr.
func NewServer(addr string, deps Deps) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		addr:         addr,
		orchestrator: deps.Orchestrator,
		store:        deps.Store,
		voice:        deps.Voice,
		genai:        deps.GenAI,
		responder:    deps.Responder,
	}
}

// Handler returns the route table. Split out from Run so tests can drive the
// mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/turn", s.turnHandler)
	mux.HandleFunc("/flagged", s.flaggedHandler)
	mux.HandleFunc("/turns", s.turnLogsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/twilio/voice", s.voiceHandler)
	mux.HandleFunc("/twilio/collect", s.collectHandler)
	return mux
}

// Run starts the HTTP server and blocks until it fails.
func (s *Server) Run() error {
	slog.Info("CareLine API running", "addr", s.addr)
	if err := http.ListenAndServe(s.addr, s.Handler()); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}
