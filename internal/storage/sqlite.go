package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteStorage) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		format TEXT NOT NULL,
		participants_json TEXT NOT NULL,
		max_iterations INTEGER NOT NULL,
		gain INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'not_started',
		metrics_json TEXT,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_run_id ON messages(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveRun archives a completed run with its transcript and final
// metrics. Saving the same run again replaces the previous record.
func (s *SQLiteStorage) SaveRun(run *core.Run, messages []core.Message, metrics core.Metrics) error {
	participantsJSON, err := json.Marshal(run.Participants)
	if err != nil {
		return fmt.Errorf("failed to marshal participants: %w", err)
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
	INSERT OR REPLACE INTO runs (id, topic, format, participants_json, max_iterations, gain, status, metrics_json, created_at, completed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Topic,
		run.Format,
		string(participantsJSON),
		run.MaxIterations,
		run.Gain,
		run.Status,
		string(metricsJSON),
		run.CreatedAt,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for i, msg := range messages {
		_, err := tx.Exec(`
		INSERT INTO messages (id, run_id, position, speaker, role, content, iteration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			msg.ID,
			run.ID,
			i,
			msg.Speaker,
			msg.Role,
			msg.Content,
			msg.Iteration,
			msg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves an archived run and its final metrics by ID. A
// missing run returns nil without error.
func (s *SQLiteStorage) GetRun(id string) (*core.Run, *core.Metrics, error) {
	query := `
	SELECT id, topic, format, participants_json, max_iterations, gain, status, metrics_json, created_at, completed_at
	FROM runs
	WHERE id = ?
	`

	var run core.Run
	var participantsJSON string
	var metricsJSON sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRow(query, id).Scan(
		&run.ID,
		&run.Topic,
		&run.Format,
		&participantsJSON,
		&run.MaxIterations,
		&run.Gain,
		&run.Status,
		&metricsJSON,
		&run.CreatedAt,
		&completedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal([]byte(participantsJSON), &run.Participants); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal participants: %w", err)
	}

	var metrics *core.Metrics
	if metricsJSON.Valid {
		var m core.Metrics
		if err := json.Unmarshal([]byte(metricsJSON.String), &m); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		metrics = &m
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, metrics, nil
}

// DeleteRun deletes a run and its messages.
func (s *SQLiteStorage) DeleteRun(id string) error {
	_, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// ListRuns returns archived run summaries, newest first.
func (s *SQLiteStorage) ListRuns(limit, offset int) ([]*core.RunSummary, error) {
	query := `
	SELECT r.id, r.topic, r.format, r.status, r.created_at,
		   (SELECT COUNT(*) FROM messages WHERE run_id = r.id) as message_count
	FROM runs r
	ORDER BY r.created_at DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []*core.RunSummary
	for rows.Next() {
		var summary core.RunSummary
		err := rows.Scan(
			&summary.ID,
			&summary.Topic,
			&summary.Format,
			&summary.Status,
			&summary.CreatedAt,
			&summary.MessageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		summaries = append(summaries, &summary)
	}

	return summaries, rows.Err()
}

// GetMessages returns a run's transcript in original order.
func (s *SQLiteStorage) GetMessages(runID string) ([]core.Message, error) {
	query := `
	SELECT id, speaker, role, content, iteration, created_at
	FROM messages
	WHERE run_id = ?
	ORDER BY position ASC
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var msg core.Message
		err := rows.Scan(
			&msg.ID,
			&msg.Speaker,
			&msg.Role,
			&msg.Content,
			&msg.Iteration,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
