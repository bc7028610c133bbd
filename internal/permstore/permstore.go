// Package permstore implements the Permission Store (spec §4.5) over
// SQLite, structurally grounded on the teacher repository's
// internal/memory/backend/sqlitevec.Backend (sql.Open against
// modernc.org/sqlite, schema creation in an init step, prepared
// statements for reads and writes); the scope semantics and the
// once-is-ephemeral/today-is-date-based rules are ported from the
// original Python implementation's modules/permissions.py.
package permstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// Store is a SQLite-backed permission grant table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if absent) the permissions database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening permissions db: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			action_name TEXT NOT NULL,
			scope TEXT NOT NULL,
			chat_id TEXT,
			granted_at TIMESTAMP NOT NULL,
			expires_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_permissions_lookup
			ON permissions(user_id, action_name, scope);
	`)
	if err != nil {
		return fmt.Errorf("creating permissions schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Check reports whether userID may perform actionName, per spec §4.5's
// always/today/session precedence. chatID may be empty when the caller
// has no session context, in which case only always/today are consulted.
func (s *Store) Check(ctx context.Context, userID, actionName, chatID string) (bool, error) {
	var id int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM permissions WHERE user_id = ? AND action_name = ? AND scope = ? LIMIT 1`,
		userID, actionName, models.ScopeAlways,
	).Scan(&id)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("checking always scope: %w", err)
	}

	today := s.now().Format("2006-01-02")
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM permissions WHERE user_id = ? AND action_name = ? AND scope = ? AND expires_at >= ? LIMIT 1`,
		userID, actionName, models.ScopeToday, today,
	).Scan(&id)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("checking today scope: %w", err)
	}

	if chatID != "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM permissions WHERE user_id = ? AND action_name = ? AND scope = ? AND chat_id = ? LIMIT 1`,
			userID, actionName, models.ScopeSession, chatID,
		).Scan(&id)
		if err == nil {
			return true, nil
		}
		if err != sql.ErrNoRows {
			return false, fmt.Errorf("checking session scope: %w", err)
		}
	}

	return false, nil
}

// Grant records a permission. ScopeOnce is a documented no-op: callers
// execute immediately after a once-grant and nothing is persisted.
func (s *Store) Grant(ctx context.Context, userID, actionName string, scope models.PermissionScope, chatID string) error {
	if scope == models.ScopeOnce {
		return nil
	}

	var expiresAt any
	var targetChatID any
	switch scope {
	case models.ScopeToday:
		expiresAt = s.now().Format("2006-01-02")
	case models.ScopeSession:
		if chatID != "" {
			targetChatID = chatID
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO permissions (user_id, action_name, scope, chat_id, granted_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, actionName, scope, targetChatID, s.now(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("granting permission: %w", err)
	}
	return nil
}
