package database

import (
	"database/sql"
	"fmt"
)

// Migrate creates the tables the review API needs. Safe to run on every
// start.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS user_sessions (
    user_id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    picture TEXT NOT NULL DEFAULT '',
    credentials_json TEXT NOT NULL DEFAULT '{}',
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_sessions_expires_at ON user_sessions(expires_at);

-- Documents of a workspace; content holds the extracted CV text used for grading.
CREATE TABLE IF NOT EXISTS documents (
    workspace_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    mime_type TEXT NOT NULL DEFAULT 'application/pdf',
    web_view_link TEXT NOT NULL DEFAULT '',
    web_content_link TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (workspace_id, id)
);

-- One row per (document, voter). rating 0 is a comment-only row.
CREATE TABLE IF NOT EXISTS scores (
    workspace_id TEXT NOT NULL,
    document_id TEXT NOT NULL,
    voter_name TEXT NOT NULL,
    rating SMALLINT NOT NULL DEFAULT 0 CHECK (rating >= 0 AND rating <= 5),
    comment TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (workspace_id, document_id, voter_name)
);

CREATE TABLE IF NOT EXISTS queues (
    workspace_id TEXT PRIMARY KEY,
    entries JSONB NOT NULL DEFAULT '[]',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
