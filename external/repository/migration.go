package repository

import (
	"context"
	"database/sql"
	"strings"
)

var migrationStatements = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		audio BLOB,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts (created_at, id)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transcript_id TEXT NOT NULL REFERENCES transcripts(id) ON DELETE CASCADE,
		speaker TEXT NOT NULL,
		timing INTEGER NOT NULL,
		content TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transcript_entries_transcript ON transcript_entries (transcript_id, id)`,
}

func RunMigration(ctx context.Context, db *sql.DB) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
