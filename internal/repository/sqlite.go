// Package repository provides the durable record store for the tracer.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// SQLiteStore mirrors runs and steps into SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
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

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT,
			customer_id TEXT,
			customer_context TEXT,
			parent_run_id TEXT,
			status TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT,
			error TEXT,
			metadata TEXT,
			total_tokens_input INTEGER NOT NULL DEFAULT 0,
			total_tokens_output INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_parent ON runs(parent_run_id)`,
		`CREATE TABLE IF NOT EXISTS steps (
			step_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			input TEXT,
			output TEXT,
			parent_step_id TEXT,
			duration_ms INTEGER,
			tokens_input INTEGER,
			tokens_output INTEGER,
			metadata TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id, created_at)`,
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

// InsertRun persists a newly created run.
func (s *SQLiteStore) InsertRun(ctx context.Context, run *domain.Run) error {
	customerContext, _ := json.Marshal(run.CustomerContext)
	metadata, _ := json.Marshal(run.Metadata)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, agent_id, agent_name, agent_type, user_id, session_id, customer_id, customer_context, parent_run_id, status, input, output, error, metadata, total_tokens_input, total_tokens_output, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AgentID, run.AgentName, run.AgentType, run.UserID,
		nullString(run.SessionID), nullString(run.CustomerID), string(customerContext),
		nullString(run.ParentRunID), run.Status, run.Input,
		nullString(run.Output), nullString(run.Error), string(metadata),
		run.TotalTokens.Input, run.TotalTokens.Output, run.StartTime, run.EndTime)
	return err
}

// UpdateRun mirrors the mutable fields of a run.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	metadata, _ := json.Marshal(run.Metadata)
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, output = ?, error = ?, metadata = ?, total_tokens_input = ?, total_tokens_output = ?, ended_at = ? WHERE run_id = ?`,
		run.Status, nullString(run.Output), nullString(run.Error), string(metadata),
		run.TotalTokens.Input, run.TotalTokens.Output, run.EndTime, run.ID)
	return err
}

// InsertStep persists a newly created step.
func (s *SQLiteStore) InsertStep(ctx context.Context, step *domain.Step) error {
	metadata, _ := json.Marshal(step.Metadata)
	var tokensIn, tokensOut any
	if step.Tokens != nil {
		tokensIn = step.Tokens.Input
		tokensOut = step.Tokens.Output
	}
	var duration any
	if step.Duration != nil {
		duration = *step.Duration
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (step_id, run_id, type, name, description, input, output, parent_step_id, duration_ms, tokens_input, tokens_output, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.RunID, step.Type, step.Name,
		nullString(step.Description), nullString(step.Input), nullString(step.Output),
		nullString(step.ParentStepID), duration, tokensIn, tokensOut,
		string(metadata), step.Timestamp)
	return err
}

// UpdateStep mirrors the completion fields of a step.
func (s *SQLiteStore) UpdateStep(ctx context.Context, step *domain.Step) error {
	metadata, _ := json.Marshal(step.Metadata)
	var tokensIn, tokensOut any
	if step.Tokens != nil {
		tokensIn = step.Tokens.Input
		tokensOut = step.Tokens.Output
	}
	var duration any
	if step.Duration != nil {
		duration = *step.Duration
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE steps SET output = ?, duration_ms = ?, tokens_input = ?, tokens_output = ?, metadata = ? WHERE step_id = ?`,
		nullString(step.Output), duration, tokensIn, tokensOut, string(metadata), step.ID)
	return err
}

// SelectRunWithSteps reconstructs a full run, including its steps and the ids
// of its child runs, from persisted rows. Returns (nil, nil) when absent.
func (s *SQLiteStore) SelectRunWithSteps(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.scanRun(s.db.QueryRowContext(ctx,
		`SELECT run_id, agent_id, agent_name, agent_type, user_id, session_id, customer_id, customer_context, parent_run_id, status, input, output, error, metadata, total_tokens_input, total_tokens_output, started_at, ended_at
		 FROM runs WHERE run_id = ?`, runID))
	if err != nil || run == nil {
		return run, err
	}

	steps, err := s.selectSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Steps = steps

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM runs WHERE parent_run_id = ? ORDER BY started_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var childID string
		if err := rows.Scan(&childID); err != nil {
			return nil, err
		}
		run.ChildRuns = append(run.ChildRuns, childID)
	}
	return run, rows.Err()
}

// SelectRunsByUser returns a user's runs with steps, newest first.
func (s *SQLiteStore) SelectRunsByUser(ctx context.Context, userID string, limit int) ([]*domain.Run, error) {
	query := `SELECT run_id, agent_id, agent_name, agent_type, user_id, session_id, customer_id, customer_context, parent_run_id, status, input, output, error, metadata, total_tokens_input, total_tokens_output, started_at, ended_at
		 FROM runs WHERE user_id = ? ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	runs, err := s.selectRuns(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		steps, err := s.selectSteps(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run.Steps = steps
	}
	return runs, nil
}

// SelectRecentRuns returns the most recent runs without steps, for statistics.
func (s *SQLiteStore) SelectRecentRuns(ctx context.Context, limit int) ([]*domain.Run, error) {
	query := `SELECT run_id, agent_id, agent_name, agent_type, user_id, session_id, customer_id, customer_context, parent_run_id, status, input, output, error, metadata, total_tokens_input, total_tokens_output, started_at, ended_at
		 FROM runs ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.selectRuns(ctx, query)
}

func (s *SQLiteStore) selectRuns(ctx context.Context, query string, args ...any) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var sessionID, customerID, customerContext, parentRunID, output, errText, metadata sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&run.ID, &run.AgentID, &run.AgentName, &run.AgentType, &run.UserID,
		&sessionID, &customerID, &customerContext, &parentRunID, &run.Status, &run.Input,
		&output, &errText, &metadata, &run.TotalTokens.Input, &run.TotalTokens.Output,
		&run.StartTime, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.SessionID = sessionID.String
	run.CustomerID = customerID.String
	run.ParentRunID = parentRunID.String
	run.Output = output.String
	run.Error = errText.String
	if endedAt.Valid {
		run.EndTime = &endedAt.Time
	}
	if customerContext.Valid && customerContext.String != "" && customerContext.String != "null" {
		_ = json.Unmarshal([]byte(customerContext.String), &run.CustomerContext)
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		_ = json.Unmarshal([]byte(metadata.String), &run.Metadata)
	}
	return &run, nil
}

func (s *SQLiteStore) selectSteps(ctx context.Context, runID string) ([]domain.Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_id, run_id, type, name, description, input, output, parent_step_id, duration_ms, tokens_input, tokens_output, metadata, created_at
		 FROM steps WHERE run_id = ? ORDER BY created_at, rowid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		var step domain.Step
		var description, input, output, parentStepID, metadata sql.NullString
		var duration, tokensIn, tokensOut sql.NullInt64
		if err := rows.Scan(&step.ID, &step.RunID, &step.Type, &step.Name,
			&description, &input, &output, &parentStepID,
			&duration, &tokensIn, &tokensOut, &metadata, &step.Timestamp); err != nil {
			return nil, err
		}
		step.Description = description.String
		step.Input = input.String
		step.Output = output.String
		step.ParentStepID = parentStepID.String
		if duration.Valid {
			d := duration.Int64
			step.Duration = &d
		}
		if tokensIn.Valid || tokensOut.Valid {
			step.Tokens = &domain.TokenUsage{Input: int(tokensIn.Int64), Output: int(tokensOut.Int64)}
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			_ = json.Unmarshal([]byte(metadata.String), &step.Metadata)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
