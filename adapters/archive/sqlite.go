package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"parlor/domain"
)

var _ domain.TranscriptStore = (*SQLiteStore)(nil)

// SQLiteStore implements domain.TranscriptStore on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path and
// migrates the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			last_user_prompt TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			mode TEXT NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id, id);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrating archive schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// RecordTurn implements domain.TranscriptStore. The whole turn lands in one
// transaction so a transcript never holds half a turn.
func (s *SQLiteStore) RecordTurn(ctx context.Context, sessionID string, records ...domain.TurnRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().Unix()
	lastUserPrompt := ""
	for _, r := range records {
		if r.Role == domain.UserRole {
			lastUserPrompt = r.Content
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions(id, created_at, updated_at, last_user_prompt) VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at,
			last_user_prompt = CASE WHEN excluded.last_user_prompt != '' THEN excluded.last_user_prompt ELSE last_user_prompt END`,
		sessionID, now, now, lastUserPrompt,
	)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		fallback := 0
		if r.Fallback {
			fallback = 1
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages(session_id, role, content, mode, fallback, created_at) VALUES(?, ?, ?, ?, ?, ?)",
			sessionID, string(r.Role), r.Content, string(r.Mode), fallback, createdAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	return tx.Commit()
}

// RecentSessions implements domain.TranscriptStore.
func (s *SQLiteStore) RecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, updated_at, last_user_prompt FROM sessions ORDER BY updated_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.SessionSummary, 0, limit)
	for rows.Next() {
		var (
			summary            domain.SessionSummary
			createdAt, updated int64
		)
		if err := rows.Scan(&summary.ID, &createdAt, &updated, &summary.LastUserPrompt); err != nil {
			return nil, err
		}
		summary.CreatedAt = time.Unix(createdAt, 0).UTC()
		summary.UpdatedAt = time.Unix(updated, 0).UTC()
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// SessionMessages implements domain.TranscriptStore.
func (s *SQLiteStore) SessionMessages(ctx context.Context, sessionID string) ([]domain.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, mode, fallback, created_at FROM messages WHERE session_id = ? ORDER BY id ASC",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.TurnRecord{}
	for rows.Next() {
		var (
			record    domain.TurnRecord
			role      string
			mode      string
			fallback  int
			createdAt int64
		)
		if err := rows.Scan(&role, &record.Content, &mode, &fallback, &createdAt); err != nil {
			return nil, err
		}
		record.Role = domain.Role(role)
		record.Mode = domain.Mode(mode)
		record.Fallback = fallback != 0
		record.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close implements domain.TranscriptStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
