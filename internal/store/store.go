// Package store provides storage backends for CareLine.
//
// It persists the human-review queue (flagged responses), PHI-masked
// conversation turn logs, and serialized session state. An in-memory store
// backs tests and ephemeral deployments; SQLite and PostgreSQL back real
// deployments.
package store

import (
	"errors"
	"strings"

	"github.com/BTreeMap/CareLine/internal/models"
)

// ErrSessionNotFound indicates no saved state exists for a session id.
var ErrSessionNotFound = errors.New("session not found")

// Store is the persistence interface used by the orchestrator and API layer.
type Store interface {
	// AddFlaggedResponse appends a low-confidence response to the review queue.
	AddFlaggedResponse(f models.FlaggedResponse) error
	// ListFlaggedResponses returns the review queue, oldest first.
	ListFlaggedResponses() ([]models.FlaggedResponse, error)
	// AddTurnLog appends one PHI-masked turn record.
	AddTurnLog(t models.TurnLog) error
	// ListTurnLogs returns the turn records for a session, oldest first.
	ListTurnLogs(sessionID string) ([]models.TurnLog, error)
	// SaveSessionState upserts the serialized conversation state for a session.
	SaveSessionState(sessionID string, state map[string]any) error
	// GetSessionState loads the serialized conversation state for a session.
	// Returns ErrSessionNotFound when the session has no saved state.
	GetSessionState(sessionID string) (map[string]any, error)
	// Close releases the backing resources.
	Close() error
}

// Opts holds configuration options for database-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for database-backed stores.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
