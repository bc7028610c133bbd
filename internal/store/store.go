// Package store persists Chat, ChatItem, and RawLog records (spec §3)
// over SQLite, grounded on the teacher repository's
// internal/memory/backend/sqlitevec.Backend: sql.Open against
// modernc.org/sqlite, schema creation in an init step, prepared
// transactional inserts, and QueryContext-based listing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/models"
)

// Store persists chats, their linear item history, and diagnostic raw logs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the chat store database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening chat store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id);

		CREATE TABLE IF NOT EXISTS chat_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			thinking TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chat_items_chat ON chat_items(chat_id, id);

		CREATE TABLE IF NOT EXISTS raw_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			chat_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			model_config TEXT,
			system_prompt TEXT,
			history_context TEXT,
			response_role TEXT NOT NULL,
			response_content TEXT NOT NULL,
			response_thinking TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_raw_logs_chat ON raw_logs(chat_id);
	`)
	if err != nil {
		return fmt.Errorf("creating chat store schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateChat inserts a new chat for userID and returns it.
func (s *Store) CreateChat(ctx context.Context, userID, title string) (models.Chat, error) {
	now := time.Now()
	chat := models.Chat{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt,
	)
	if err != nil {
		return models.Chat{}, fmt.Errorf("creating chat: %w", err)
	}
	return chat, nil
}

// EnsureChat returns the chat identified by chatID, creating it (with that
// exact id) if it does not already exist. Used by the orchestrator to bind
// a caller-supplied chat id on first use (spec §4.1 step 1).
func (s *Store) EnsureChat(ctx context.Context, chatID, userID, title string) (models.Chat, error) {
	if chatID != "" {
		if c, err := s.GetChat(ctx, chatID); err == nil {
			return c, nil
		}
	}
	now := time.Now()
	if chatID == "" {
		chatID = uuid.New().String()
	}
	chat := models.Chat{ID: chatID, UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt,
	)
	if err != nil {
		return models.Chat{}, fmt.Errorf("ensuring chat: %w", err)
	}
	return chat, nil
}

// DeleteChat removes a chat and cascades to its chat items (spec §3: a chat
// "is destroyed only by explicit delete (cascades to chat items)").
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chat delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_items WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("deleting chat items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID); err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	return tx.Commit()
}

// ListChats returns every chat owned by userID, most recently updated first.
func (s *Store) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE user_id = ? ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat fetches a single chat by id.
func (s *Store) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var c models.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM chats WHERE id = ?`, chatID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Chat{}, fmt.Errorf("getting chat %s: %w", chatID, err)
	}
	return c, nil
}

// AppendItem appends one ChatItem to a chat's linear history and bumps the
// chat's updated_at, matching spec §3's append-only ChatItem contract.
func (s *Store) AppendItem(ctx context.Context, item models.ChatItem) (models.ChatItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ChatItem{}, fmt.Errorf("beginning item append: %w", err)
	}
	defer tx.Rollback()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chat_items (chat_id, role, content, thinking, created_at) VALUES (?, ?, ?, ?, ?)`,
		item.ChatID, item.Role, item.Content, item.Thinking, item.CreatedAt,
	)
	if err != nil {
		return models.ChatItem{}, fmt.Errorf("inserting chat item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.ChatItem{}, fmt.Errorf("reading inserted item id: %w", err)
	}
	item.ID = id

	if _, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, item.CreatedAt, item.ChatID); err != nil {
		return models.ChatItem{}, fmt.Errorf("bumping chat timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.ChatItem{}, fmt.Errorf("committing item append: %w", err)
	}
	return item, nil
}

// UpdateItemContent mutates an in-flight item's content while it streams;
// the orchestrator calls this repeatedly until the turn completes and the
// item freezes (spec §3 ChatItem note).
func (s *Store) UpdateItemContent(ctx context.Context, itemID int64, content, thinking string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_items SET content = ?, thinking = ? WHERE id = ?`, content, thinking, itemID,
	)
	if err != nil {
		return fmt.Errorf("updating chat item %d: %w", itemID, err)
	}
	return nil
}

// ListItems returns a chat's full linear history in order.
func (s *Store) ListItems(ctx context.Context, chatID string) ([]models.ChatItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, thinking, created_at FROM chat_items WHERE chat_id = ? ORDER BY id ASC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chat items: %w", err)
	}
	defer rows.Close()

	var items []models.ChatItem
	for rows.Next() {
		var it models.ChatItem
		var thinking sql.NullString
		if err := rows.Scan(&it.ID, &it.ChatID, &it.Role, &it.Content, &thinking, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat item: %w", err)
		}
		it.Thinking = thinking.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// AppendRawLog records a diagnostic RawLog entry, never read by the
// orchestrator itself (spec §3).
func (s *Store) AppendRawLog(ctx context.Context, log models.RawLog) error {
	modelConfig, err := json.Marshal(log.ModelConfig)
	if err != nil {
		return fmt.Errorf("encoding model config: %w", err)
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_logs (timestamp, chat_id, user_id, model_config, system_prompt, history_context, response_role, response_content, response_thinking)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.Timestamp, log.ChatID, log.UserID, string(modelConfig), log.SystemPrompt, log.HistoryContext,
		log.Response.Role, log.Response.Content, log.Response.Thinking,
	)
	if err != nil {
		return fmt.Errorf("appending raw log: %w", err)
	}
	return nil
}
