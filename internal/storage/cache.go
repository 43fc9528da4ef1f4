// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps an offline copy of conversations in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/flai-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotCached = errors.New("conversation not cached")
	ErrClosed    = errors.New("cache is closed")
)

// =============================================================================
// MESSAGE CACHE
// =============================================================================

// Config holds cache configuration.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// MaxConversations bounds how many message lists are kept (0 = unlimited).
	// The least recently cached lists are dropped first.
	MaxConversations int

	Logger *slog.Logger
}

// DefaultConfig returns the default configuration for a database at path.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:             path,
		MaxConversations: 200,
	}
}

// MessageCache stores the last fetched message list of each conversation and
// the last fetched conversation list.
type MessageCache struct {
	db     *sql.DB
	config *Config
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the cache database.
func Open(config *Config) (*MessageCache, error) {
	if config == nil || config.Path == "" {
		return nil, errors.New("cache path is required")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps the pragmas.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &MessageCache{
		db:     db,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the database.
func (c *MessageCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *MessageCache) check() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// SaveConversation replaces the cached message list of a conversation.
// Messages without an id are not stored.
func (c *MessageCache) SaveConversation(ctx context.Context, conversationID string, msgs []model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, cached_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET cached_at = excluded.cached_at`,
		conversationID, c.now().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, id, parent_id, role, position, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for i, msg := range msgs {
		if msg.ID == "" {
			continue
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", msg.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, conversationID, msg.ID, msg.ParentID,
			msg.Role.String(), i, toUnixNano(msg.CreatedAt), body); err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
		stored++
	}

	if err := c.enforceLimit(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.logger.Debug("cached conversation", "conversation", conversationID, "messages", stored)
	return nil
}

// LoadConversation returns the cached message list in the order it was
// fetched, or ErrNotCached.
func (c *MessageCache) LoadConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		"SELECT body FROM messages WHERE conversation_id = ? ORDER BY position", conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg model.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Warn("dropping unreadable cached message", "conversation", conversationID, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, ErrNotCached
	}
	return msgs, nil
}

// enforceLimit drops the message lists beyond MaxConversations, oldest
// first. Conversations still in the cached list keep their row.
func (c *MessageCache) enforceLimit(ctx context.Context, tx *sql.Tx) error {
	if c.config.MaxConversations <= 0 {
		return nil
	}
	const keep = `SELECT id FROM conversations WHERE cached_at > 0 ORDER BY cached_at DESC LIMIT ?`

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id NOT IN ("+keep+")", c.config.MaxConversations); err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET cached_at = 0 WHERE cached_at > 0 AND id NOT IN ("+keep+")", c.config.MaxConversations); err != nil {
		return fmt.Errorf("prune conversations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conversations WHERE listed = 0 AND cached_at = 0"); err != nil {
		return fmt.Errorf("prune conversations: %w", err)
	}
	return nil
}

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// SaveConversationList replaces the cached conversation list. Message lists
// already cached are kept.
func (c *MessageCache) SaveConversationList(ctx context.Context, convs []model.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE conversations SET listed = 0"); err != nil {
		return fmt.Errorf("reset list: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, title, icon, created_at, updated_at, listed, list_order, cached_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			icon = excluded.icon,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			listed = 1,
			list_order = excluded.list_order`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, conv := range convs {
		if conv.ID == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, conv.ID, conv.Title, conv.Icon,
			toUnixNano(conv.CreatedAt), toUnixNano(conv.UpdatedAt), i); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", conv.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conversations WHERE listed = 0 AND cached_at = 0"); err != nil {
		return fmt.Errorf("prune conversations: %w", err)
	}
	return tx.Commit()
}

// ListConversations returns the cached conversation list in its original
// order.
func (c *MessageCache) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, icon, created_at, updated_at FROM conversations
		WHERE listed = 1 ORDER BY list_order`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var created, updated int64
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.Icon, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.CreatedAt = fromUnixNano(created)
		conv.UpdatedAt = fromUnixNano(updated)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation drops a conversation and its messages.
func (c *MessageCache) DeleteConversation(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats describes the cache contents.
type Stats struct {
	Conversations int // conversations with a cached message list
	Messages      int
	Listed        int // entries in the cached conversation list
}

// Stats returns the cache statistics.
func (c *MessageCache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(); err != nil {
		return Stats{}, err
	}

	var s Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT conversation_id) FROM messages),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM conversations WHERE listed = 1)`).
		Scan(&s.Conversations, &s.Messages, &s.Listed)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
