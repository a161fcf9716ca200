// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jolks/mcp-toolchat/internal/model"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width and always UTC, so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const maxRuns = 100

// SQLiteStore persists transcripts and scheduled runs in a SQLite database.
// It implements model.TranscriptStore and model.RunStore.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ model.TranscriptStore = (*SQLiteStore)(nil)
	_ model.RunStore        = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database at dbPath, enables WAL mode
// and applies pending migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveTranscript writes the session row and replaces its messages, so saving
// the same session twice keeps only the latest history.
func (s *SQLiteStore) SaveTranscript(t *model.Transcript) error {
	if t == nil || t.SessionID == "" {
		return fmt.Errorf("save transcript: missing session id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transcript: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO sessions (id, channel, started_at, ended_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET channel = excluded.channel, ended_at = excluded.ended_at`,
		t.SessionID,
		t.Channel,
		formatTime(t.StartedAt),
		formatOptional(t.EndedAt),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", t.SessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, seq, role, content, tool_name, tool_call_id)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range t.Messages {
		if _, err := stmt.Exec(t.SessionID, m.Seq, m.Role, m.Content, m.ToolName, m.ToolCallID); err != nil {
			return fmt.Errorf("insert message %d: %w", m.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript: %w", err)
	}
	return nil
}

// GetTranscript loads a session and its messages in order.
// Returns nil, nil if the session is unknown.
func (s *SQLiteStore) GetTranscript(sessionID string) (*model.Transcript, error) {
	t := model.Transcript{SessionID: sessionID}
	var startedStr, endedStr string
	err := s.db.QueryRow(
		"SELECT channel, started_at, ended_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&t.Channel, &startedStr, &endedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	t.StartedAt = parseTime(startedStr)
	t.EndedAt = parseTime(endedStr)

	rows, err := s.db.Query(`
		SELECT seq, role, content, tool_name, tool_call_id
		FROM messages
		WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m model.TranscriptMessage
		if err := rows.Scan(&m.Seq, &m.Role, &m.Content, &m.ToolName, &m.ToolCallID); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return &t, nil
}

// SaveRun persists the outcome of a scheduled prompt run.
func (s *SQLiteStore) SaveRun(run *model.RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO schedule_runs (schedule_id, session_id, prompt, output, stop, error, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ScheduleID,
		run.SessionID,
		run.Prompt,
		run.Output,
		run.Stop,
		run.Error,
		formatTime(run.StartTime),
		formatTime(run.EndTime),
		run.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRuns returns up to limit runs of a schedule, most recent first.
// limit is clamped to [1, 100].
func (s *SQLiteStore) GetRuns(scheduleID string, limit int) ([]*model.RunRecord, error) {
	limit = min(max(limit, 1), maxRuns)

	rows, err := s.db.Query(`
		SELECT schedule_id, session_id, prompt, output, stop, error, start_time, end_time, duration
		FROM schedule_runs
		WHERE schedule_id = ?
		ORDER BY start_time DESC
		LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var startStr, endStr string
		if err := rows.Scan(
			&r.ScheduleID, &r.SessionID, &r.Prompt, &r.Output,
			&r.Stop, &r.Error, &startStr, &endStr, &r.Duration,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.StartTime = parseTime(startStr)
		r.EndTime = parseTime(endStr)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

// parseTime returns the zero time for empty or unreadable values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
