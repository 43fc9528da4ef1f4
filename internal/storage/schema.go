// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// Schema is the SQLite schema of the offline cache.
const Schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- One row per cached conversation; message rows hang off it.
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL DEFAULT 0, -- Unix nanoseconds
    updated_at INTEGER NOT NULL DEFAULT 0,
    listed INTEGER NOT NULL DEFAULT 0,     -- 1 when seen in the conversation list
    list_order INTEGER NOT NULL DEFAULT 0,
    cached_at INTEGER NOT NULL             -- Unix nanoseconds
);

CREATE INDEX IF NOT EXISTS idx_conversations_cached_at ON conversations(cached_at);

CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    id TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL,
    position INTEGER NOT NULL,             -- order in the fetched list
    created_at INTEGER NOT NULL,
    body BLOB NOT NULL,                    -- message JSON as the backend sends it
    PRIMARY KEY (conversation_id, id)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_messages_position ON messages(conversation_id, position);
`

// InitMetadata initializes the metadata table with default values
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('created_at', strftime('%s', 'now'));
`
