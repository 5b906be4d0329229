// Package store persists call records, transcripts and suggestions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Braham27/salesgpt/internal/call"
)

// CallRecord is a persisted call row.
type CallRecord struct {
	CallID          string
	ProspectName    string
	ProspectCompany string
	Objective       string
	ConsentStatus   string
	Status          string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	Summary         json.RawMessage
	Analytics       json.RawMessage
}

// Store is the persistence surface used by the call server.
type Store interface {
	CreateCall(ctx context.Context, rec *CallRecord) error
	GetCall(ctx context.Context, callID string) (*CallRecord, error)
	UpdateConsent(ctx context.Context, callID, status string) error
	FinishCall(ctx context.Context, callID string, duration int, summary, analytics json.RawMessage) error
	SaveTranscript(ctx context.Context, callID, fullText string, segments []call.TranscriptSegment) error
	SaveSuggestion(ctx context.Context, callID string, s call.Suggestion) error
	RecordFeedback(ctx context.Context, suggestionID string, wasUsed, wasHelpful bool) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection so the schema survives across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			call_id TEXT PRIMARY KEY,
			prospect_name TEXT,
			prospect_company TEXT,
			objective TEXT,
			consent_status TEXT NOT NULL DEFAULT 'unset',
			status TEXT NOT NULL DEFAULT 'active',
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			analytics TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			call_id TEXT PRIMARY KEY,
			full_text TEXT NOT NULL,
			segments TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (call_id) REFERENCES calls(call_id)
		)`,
		`CREATE TABLE IF NOT EXISTS suggestions (
			suggestion_id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 0,
			was_used INTEGER NOT NULL DEFAULT 0,
			was_helpful INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (call_id) REFERENCES calls(call_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_call ON suggestions(call_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCall inserts a new call row.
func (s *SQLiteStore) CreateCall(ctx context.Context, rec *CallRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (call_id, prospect_name, prospect_company, objective, consent_status, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.ProspectName, rec.ProspectCompany, rec.Objective, rec.ConsentStatus, rec.Status, rec.StartedAt)
	return err
}

// GetCall retrieves a call by ID, or nil when no row exists.
func (s *SQLiteStore) GetCall(ctx context.Context, callID string) (*CallRecord, error) {
	var rec CallRecord
	var endedAt sql.NullTime
	var summary, analytics sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT call_id, prospect_name, prospect_company, objective, consent_status, status, started_at, ended_at, duration_seconds, summary, analytics FROM calls WHERE call_id = ?`,
		callID).Scan(&rec.CallID, &rec.ProspectName, &rec.ProspectCompany, &rec.Objective, &rec.ConsentStatus, &rec.Status, &rec.StartedAt, &endedAt, &rec.DurationSeconds, &summary, &analytics)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		rec.EndedAt = &endedAt.Time
	}
	if summary.Valid {
		rec.Summary = json.RawMessage(summary.String)
	}
	if analytics.Valid {
		rec.Analytics = json.RawMessage(analytics.String)
	}
	return &rec, nil
}

// UpdateConsent records the consent decision on the call row.
func (s *SQLiteStore) UpdateConsent(ctx context.Context, callID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET consent_status = ? WHERE call_id = ?`,
		status, callID)
	return err
}

// FinishCall marks a call completed and stores its summary and analytics.
func (s *SQLiteStore) FinishCall(ctx context.Context, callID string, duration int, summary, analytics json.RawMessage) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET status = 'completed', ended_at = ?, duration_seconds = ?, summary = ?, analytics = ? WHERE call_id = ?`,
		now, duration, nullStringBytes(summary), nullStringBytes(analytics), callID)
	return err
}

// SaveTranscript stores the final transcript for a call, replacing any
// earlier snapshot.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, callID, fullText string, segments []call.TranscriptSegment) error {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO transcripts (call_id, full_text, segments) VALUES (?, ?, ?)`,
		callID, fullText, string(segJSON))
	return err
}

// SaveSuggestion inserts a delivered suggestion.
func (s *SQLiteStore) SaveSuggestion(ctx context.Context, callID string, sg call.Suggestion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suggestions (suggestion_id, call_id, type, content, context, confidence, priority) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, callID, string(sg.Type), sg.Content, sg.Context, sg.Confidence, sg.Priority)
	return err
}

// RecordFeedback marks a suggestion with the user's verdict.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, suggestionID string, wasUsed, wasHelpful bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET was_used = ?, was_helpful = ? WHERE suggestion_id = ?`,
		boolInt(wasUsed), boolInt(wasHelpful), suggestionID)
	return err
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
