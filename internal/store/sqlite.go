// Package store provides storage backends for CareLine.
//
// This file implements an SQLite-backed store for flagged responses, turn
// logs, and session state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/CareLine/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddFlaggedResponse(f models.FlaggedResponse) error {
	entities, err := json.Marshal(f.Entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO flagged_responses (session_id, turn, timestamp, user_query, agent_response, confidence_score, intent, entities, patient_id, score_explanation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.SessionID, f.Turn, f.Timestamp, f.UserQuery, f.AgentResponse, f.ConfidenceScore, f.Intent, string(entities), f.PatientID, f.ScoreExplanation,
	)
	if err != nil {
		slog.Error("SQLiteStore AddFlaggedResponse failed", "error", err, "sessionID", f.SessionID)
		return fmt.Errorf("failed to insert flagged response for %s: %w", f.SessionID, err)
	}
	slog.Debug("SQLiteStore AddFlaggedResponse succeeded", "sessionID", f.SessionID, "turn", f.Turn)
	return nil
}

func (s *SQLiteStore) ListFlaggedResponses() ([]models.FlaggedResponse, error) {
	rows, err := s.db.Query(
		`SELECT session_id, turn, timestamp, user_query, agent_response, confidence_score, intent, entities, patient_id, score_explanation
		 FROM flagged_responses ORDER BY id`,
	)
	if err != nil {
		slog.Error("SQLiteStore ListFlaggedResponses query failed", "error", err)
		return nil, fmt.Errorf("failed to query flagged responses: %w", err)
	}
	defer rows.Close()

	var flagged []models.FlaggedResponse
	for rows.Next() {
		var f models.FlaggedResponse
		var entities string
		if err := rows.Scan(&f.SessionID, &f.Turn, &f.Timestamp, &f.UserQuery, &f.AgentResponse, &f.ConfidenceScore, &f.Intent, &entities, &f.PatientID, &f.ScoreExplanation); err != nil {
			slog.Error("SQLiteStore ListFlaggedResponses scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flagged response row: %w", err)
		}
		if entities != "" {
			if err := json.Unmarshal([]byte(entities), &f.Entities); err != nil {
				slog.Warn("SQLiteStore ListFlaggedResponses: bad entities payload", "error", err)
			}
		}
		flagged = append(flagged, f)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListFlaggedResponses rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate flagged response rows: %w", err)
	}
	return flagged, nil
}

func (s *SQLiteStore) AddTurnLog(t models.TurnLog) error {
	_, err := s.db.Exec(
		`INSERT INTO turn_logs (session_id, turn, timestamp, utterance, intent, response_text, status, confidence_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Turn, t.Timestamp, t.Utterance, t.Intent, t.ResponseText, t.Status, t.ConfidenceScore,
	)
	if err != nil {
		slog.Error("SQLiteStore AddTurnLog failed", "error", err, "sessionID", t.SessionID)
		return fmt.Errorf("failed to insert turn log for %s: %w", t.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ListTurnLogs(sessionID string) ([]models.TurnLog, error) {
	rows, err := s.db.Query(
		`SELECT session_id, turn, timestamp, utterance, intent, response_text, status, confidence_score
		 FROM turn_logs WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListTurnLogs query failed", "error", err)
		return nil, fmt.Errorf("failed to query turn logs: %w", err)
	}
	defer rows.Close()

	var logs []models.TurnLog
	for rows.Next() {
		var t models.TurnLog
		if err := rows.Scan(&t.SessionID, &t.Turn, &t.Timestamp, &t.Utterance, &t.Intent, &t.ResponseText, &t.Status, &t.ConfidenceScore); err != nil {
			slog.Error("SQLiteStore ListTurnLogs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan turn log row: %w", err)
		}
		logs = append(logs, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListTurnLogs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate turn log rows: %w", err)
	}
	return logs, nil
}

func (s *SQLiteStore) SaveSessionState(sessionID string, state map[string]any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_states (session_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		sessionID, string(payload), models.UTCTimestamp(time.Now()),
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSessionState failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to save session state for %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionState(sessionID string) (map[string]any, error) {
	var payload string
	err := s.db.QueryRow(`SELECT state FROM session_states WHERE session_id = ?`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetSessionState failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load session state for %s: %w", sessionID, err)
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state for %s: %w", sessionID, err)
	}
	return state, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
