// Package api provides HTTP handlers for CareLine endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CareLine/internal/flow"
	"github.com/BTreeMap/CareLine/internal/models"
)

// turnHandler processes one conversation turn: POST /turn with a JSON
// flow.TurnInput, returning the full agent result envelope. The client
// round-trips output.state into the next request.
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.turnHandler: processing turn request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.turnHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var in flow.TurnInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if in.Utterance == "" {
		writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}

	result := s.orchestrator.Execute(r.Context(), in)
	if state, ok := result.Output["state"].(map[string]any); ok && s.store != nil {
		if sessionID, ok := state["session_id"].(string); ok && sessionID != "" {
			if err := s.store.SaveSessionState(sessionID, state); err != nil {
				slog.Error("Server.turnHandler: failed to save session state", "error", err, "sessionID", sessionID)
			}
		}
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// flaggedHandler returns the human-review queue: GET /flagged.
func (s *Server) flaggedHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.flaggedHandler: processing flagged request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flagged, err := s.store.ListFlaggedResponses()
	if err != nil {
		slog.Error("Server.flaggedHandler: failed to list flagged responses", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load flagged responses")
		return
	}
	if flagged == nil {
		flagged = []models.FlaggedResponse{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(flagged))
}

// turnLogsHandler returns the PHI-masked turn log for one session:
// GET /turns?session_id=...
func (s *Server) turnLogsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.turnLogsHandler: processing turn logs request", "method", r.Method)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	logs, err := s.store.ListTurnLogs(sessionID)
	if err != nil {
		slog.Error("Server.turnLogsHandler: failed to list turn logs", "error", err, "sessionID", sessionID)
		writeError(w, http.StatusInternalServerError, "Failed to load turn logs")
		return
	}
	if logs == nil {
		logs = []models.TurnLog{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(logs))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
