// Package store provides storage backends for CareLine.
//
// This file implements the in-memory store used by tests and ephemeral
// deployments.
package store

import (
	"sync"

	"github.com/BTreeMap/CareLine/internal/models"
)

// InMemoryStore keeps all records in process memory.
type InMemoryStore struct {
	mu       sync.Mutex
	flagged  []models.FlaggedResponse
	turnLogs []models.TurnLog
	sessions map[string]map[string]any
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]map[string]any)}
}

func (s *InMemoryStore) AddFlaggedResponse(f models.FlaggedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flagged = append(s.flagged, f)
	return nil
}

func (s *InMemoryStore) ListFlaggedResponses() ([]models.FlaggedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FlaggedResponse, len(s.flagged))
	copy(out, s.flagged)
	return out, nil
}

func (s *InMemoryStore) AddTurnLog(t models.TurnLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnLogs = append(s.turnLogs, t)
	return nil
}

func (s *InMemoryStore) ListTurnLogs(sessionID string) ([]models.TurnLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TurnLog
	for _, t := range s.turnLogs {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) SaveSessionState(sessionID string, state map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = state
	return nil
}

func (s *InMemoryStore) GetSessionState(sessionID string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (s *InMemoryStore) Close() error { return nil }
