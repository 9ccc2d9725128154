// Package store provides storage backends for CareLine.
//
// This file implements a PostgreSQL-backed store for flagged responses, turn
// logs, and session state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/CareLine/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddFlaggedResponse(f models.FlaggedResponse) error {
	entities, err := json.Marshal(f.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO flagged_responses (session_id, turn, timestamp, user_query, agent_response, confidence_score, intent, entities, patient_id, score_explanation)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.SessionID, f.Turn, f.Timestamp, f.UserQuery, f.AgentResponse, f.ConfidenceScore, f.Intent, string(entities), f.PatientID, f.ScoreExplanation,
	)
	if err != nil {
		slog.Error("PostgresStore AddFlaggedResponse failed", "error", err, "sessionID", f.SessionID)
		return fmt.Errorf("failed to insert flagged response for %s: %w", f.SessionID, err)
	}
	slog.Debug("PostgresStore AddFlaggedResponse succeeded", "sessionID", f.SessionID, "turn", f.Turn)
	return nil
}

func (s *PostgresStore) ListFlaggedResponses() ([]models.FlaggedResponse, error) {
	rows, err := s.db.Query(
		`SELECT session_id, turn, timestamp, user_query, agent_response, confidence_score, intent, entities, patient_id, score_explanation
		 FROM flagged_responses ORDER BY id`,
	)
	if err != nil {
		slog.Error("PostgresStore ListFlaggedResponses query failed", "error", err)
		return nil, fmt.Errorf("failed to query flagged responses: %w", err)
	}
	defer rows.Close()

	var flagged []models.FlaggedResponse
	for rows.Next() {
		var f models.FlaggedResponse
		var entities string
		if err := rows.Scan(&f.SessionID, &f.Turn, &f.Timestamp, &f.UserQuery, &f.AgentResponse, &f.ConfidenceScore, &f.Intent, &entities, &f.PatientID, &f.ScoreExplanation); err != nil {
			slog.Error("PostgresStore ListFlaggedResponses scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flagged response row: %w", err)
		}
		if entities != "" {
			if err := json.Unmarshal([]byte(entities), &f.Entities); err != nil {
				slog.Warn("PostgresStore ListFlaggedResponses: bad entities payload", "error", err)
			}
		}
		flagged = append(flagged, f)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListFlaggedResponses rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate flagged response rows: %w", err)
	}
	return flagged, nil
}

func (s *PostgresStore) AddTurnLog(t models.TurnLog) error {
	_, err := s.db.Exec(
		`INSERT INTO turn_logs (session_id, turn, timestamp, utterance, intent, response_text, status, confidence_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.SessionID, t.Turn, t.Timestamp, t.Utterance, t.Intent, t.ResponseText, t.Status, t.ConfidenceScore,
	)
	if err != nil {
		slog.Error("PostgresStore AddTurnLog failed", "error", err, "sessionID", t.SessionID)
		return fmt.Errorf("failed to insert turn log for %s: %w", t.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) ListTurnLogs(sessionID string) ([]models.TurnLog, error) {
	rows, err := s.db.Query(
		`SELECT session_id, turn, timestamp, utterance, intent, response_text, status, confidence_score
		 FROM turn_logs WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		slog.Error("PostgresStore ListTurnLogs query failed", "error", err)
		return nil, fmt.Errorf("failed to query turn logs: %w", err)
	}
	defer rows.Close()

	var logs []models.TurnLog
	for rows.Next() {
		var t models.TurnLog
		if err := rows.Scan(&t.SessionID, &t.Turn, &t.Timestamp, &t.Utterance, &t.Intent, &t.ResponseText, &t.Status, &t.ConfidenceScore); err != nil {
			slog.Error("PostgresStore ListTurnLogs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan turn log row: %w", err)
		}
		logs = append(logs, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListTurnLogs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate turn log rows: %w", err)
	}
	return logs, nil
}

func (s *PostgresStore) SaveSessionState(sessionID string, state map[string]any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_states (session_id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		sessionID, string(payload), models.UTCTimestamp(time.Now()),
	)
	if err != nil {
		slog.Error("PostgresStore SaveSessionState failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to save session state for %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetSessionState(sessionID string) (map[string]any, error) {
	var payload string
	err := s.db.QueryRow(`SELECT state FROM session_states WHERE session_id = $1`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetSessionState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session state for %s: %w", sessionID, err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state for %s: %w", sessionID, err)
	}
	return state, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
