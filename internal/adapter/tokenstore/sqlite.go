package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists session tokens in a small SQLite database so a restarted
// client can resume its server session.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at dbPath and runs the schema
// migration. ":memory:" is accepted for tests.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_tokens (
			server     TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context, server string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		"SELECT token FROM session_tokens WHERE server = ?", server,
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load session token: %w", err)
	}
	return token, nil
}

func (s *SQLite) Save(ctx context.Context, server, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (server, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(server) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		server, token, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, server string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_tokens WHERE server = ?", server); err != nil {
		return fmt.Errorf("delete session token: %w", err)
	}
	return nil
}
