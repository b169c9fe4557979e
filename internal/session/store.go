package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SessionInfo is the lightweight listing row returned by Store.List,
// without the full message history.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  int
	Tokens    int
}

// Store abstracts session persistence, so interactive and non-interactive
// agent wiring can share the same Agent constructor with different
// durability (SQLiteStore for the REPL, NullStore for orchestrated
// one-shot task runs that never need to /resume).
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
	List() ([]SessionInfo, error)
	// DB exposes the underlying connection so SQLiteMemoryStore can share
	// it rather than open a second file handle.
	DB() *sql.DB
	Close() error
}

// NullStore is a no-op Store for runs that don't persist session state
// (orchestrated task runs, pipe mode).
type NullStore struct{}

func (NullStore) Save(*Session) error { return nil }
func (NullStore) Load(id string) (*Session, error) {
	return nil, fmt.Errorf("session store disabled: no session %q", id)
}
func (NullStore) List() ([]SessionInfo, error) { return nil, nil }
func (NullStore) DB() *sql.DB                  { return nil }
func (NullStore) Close() error                 { return nil }

const createSessionTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id                TEXT PRIMARY KEY,
    messages          TEXT NOT NULL,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    tokens_used       INTEGER DEFAULT 0,
    prompt_tokens     INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    summary           TEXT DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// SQLiteStore implements Store backed by SQLite (modernc.org/sqlite, a
// pure-Go driver, matching the memory store's driver choice so a single
// binary carries no cgo dependency).
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default session database location,
// ~/.config/orchkernel/sessions.db, creating the parent directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "orchkernel")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed session store
// at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec(createSessionTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(sess *Session) error {
	sess.UpdatedAt = time.Now()
	msgsJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, messages, created_at, updated_at, tokens_used, prompt_tokens, completion_tokens, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			messages=excluded.messages,
			updated_at=excluded.updated_at,
			tokens_used=excluded.tokens_used,
			prompt_tokens=excluded.prompt_tokens,
			completion_tokens=excluded.completion_tokens,
			summary=excluded.summary`,
		sess.ID, string(msgsJSON),
		sess.CreatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.Format(time.RFC3339Nano),
		sess.TokensUsed, sess.PromptTokens, sess.CompletionTokens, sess.Summary,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, messages, created_at, updated_at, tokens_used, prompt_tokens, completion_tokens, summary
		FROM sessions WHERE id = ?`, id)

	var (
		msgsJSON, createdAt, updatedAt string
		sess                           Session
	)
	if err := row.Scan(&sess.ID, &msgsJSON, &createdAt, &updatedAt,
		&sess.TokensUsed, &sess.PromptTokens, &sess.CompletionTokens, &sess.Summary); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %q not found", id)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal([]byte(msgsJSON), &sess.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sess, nil
}

func (s *SQLiteStore) List() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, messages, created_at, updated_at, tokens_used
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var (
			id, msgsJSON, createdAt, updatedAt string
			tokens                             int
		)
		if err := rows.Scan(&id, &msgsJSON, &createdAt, &updatedAt, &tokens); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var msgs []json.RawMessage
		_ = json.Unmarshal([]byte(msgsJSON), &msgs)
		info := SessionInfo{ID: id, Messages: len(msgs), Tokens: tokens}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }
