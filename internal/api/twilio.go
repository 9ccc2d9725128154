// Package api provides the Twilio voice webhook handlers for CareLine.
//
// /twilio/voice answers the call with a greeting; /twilio/collect receives
// each speech result, runs the dialogue turn, and responds with TwiML that
// speaks the answer and gathers the next utterance.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/CareLine/internal/flow"
	"github.com/BTreeMap/CareLine/internal/models"
	"github.com/BTreeMap/CareLine/internal/nlu"
	"github.com/BTreeMap/CareLine/internal/store"
	"github.com/BTreeMap/CareLine/internal/voice"
)

const collectActionURL = "/twilio/collect"

// voiceHandler answers an incoming call with the greeting and the first
// speech gather.
func (s *Server) voiceHandler(w http.ResponseWriter, r *http.Request) {
	if !s.voice.ValidateRequest(r) {
		slog.Warn("Server.voiceHandler: webhook signature validation failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	callSid := r.FormValue("CallSid")
	slog.Info("Server.voiceHandler: call started", "callSid", callSid, "direction", r.FormValue("Direction"))

	// Fresh conversation state for the call, keyed by CallSid.
	if s.store != nil && callSid != "" {
		state := models.NewConversationState()
		state.SessionID = callSid
		if err := s.store.SaveSessionState(callSid, state.ToMap()); err != nil {
			slog.Error("Server.voiceHandler: failed to save initial state", "error", err, "callSid", callSid)
		}
	}

	doc, err := voice.GatherResponse(s.responder.Greeting(""), collectActionURL)
	if err != nil {
		slog.Error("Server.voiceHandler: failed to render TwiML", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeTwiML(w, doc)
}

// collectHandler processes one spoken turn of the call.
func (s *Server) collectHandler(w http.ResponseWriter, r *http.Request) {
	if !s.voice.ValidateRequest(r) {
		slog.Warn("Server.collectHandler: webhook signature validation failed")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	callSid := r.FormValue("CallSid")
	utterance := r.FormValue("SpeechResult")
	if utterance == "" {
		utterance = r.FormValue("Digits")
	}
	slog.Info("Server.collectHandler: processing turn", "callSid", callSid)

	in := flow.TurnInput{Utterance: utterance, SessionID: callSid}
	if s.store != nil && callSid != "" {
		state, err := s.store.GetSessionState(callSid)
		if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			slog.Error("Server.collectHandler: failed to load session state", "error", err, "callSid", callSid)
		}
		in.State = state
	}

	// Speech carries credentials inline, so try extraction on every turn.
	name, dob := nlu.ExtractCredentials(r.Context(), s.genai, utterance)
	if name != "" {
		in.PatientName = name
	}
	if dob != "" {
		in.DOB = dob
	}

	result := s.orchestrator.Execute(r.Context(), in)

	newState, _ := result.Output["state"].(map[string]any)
	if s.store != nil && callSid != "" && newState != nil {
		if err := s.store.SaveSessionState(callSid, newState); err != nil {
			slog.Error("Server.collectHandler: failed to save session state", "error", err, "callSid", callSid)
		}
	}

	responseText := result.Text()
	if responseText == "" {
		responseText = s.responder.Fallback("")
	}

	// Keep the call open while a sub-flow is waiting on the caller; hang up
	// on goodbye or a dead-end failure.
	pendingStep := false
	if newState != nil {
		if step, ok := newState["step"].(string); ok && step != "" {
			pendingStep = true
		}
	}
	shouldEnd := strings.Contains(strings.ToLower(utterance), "goodbye") ||
		(result.IsFailure() && !pendingStep)

	var doc string
	var err error
	if shouldEnd {
		slog.Info("Server.collectHandler: ending call", "callSid", callSid, "status", result.Status)
		doc, err = voice.SayResponse(responseText)
	} else {
		doc, err = voice.GatherResponse(responseText, collectActionURL)
	}
	if err != nil {
		slog.Error("Server.collectHandler: failed to render TwiML", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeTwiML(w, doc)
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	if _, err := w.Write([]byte(doc)); err != nil {
		slog.Error("Server.writeTwiML: failed to write response", "error", err)
	}
}
