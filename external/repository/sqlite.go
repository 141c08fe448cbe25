package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Izanyoi/dictadoc-web/internal/repository"
	"github.com/Izanyoi/dictadoc-web/internal/transcript"
	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// OpenMemory opens a private in-memory database. The pool is pinned to a
// single connection because every new :memory: connection is a new database.
func OpenMemory(ctx context.Context) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigration(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return NewSQLiteRepository(db), nil
}

// Shutdown closes the database when the injector shuts down.
func (r *SQLiteRepository) Shutdown() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateTranscript(ctx context.Context, input repository.CreateTranscriptInput) (*transcript.Metadata, error) {
	now := r.now()
	meta := transcript.Metadata{
		ID:        transcript.NewID(),
		Title:     strings.TrimSpace(input.Title),
		CreatedAt: input.CreatedAt,
		Tags:      normalizeTags(input.Tags),
	}
	if meta.Title == "" {
		meta.Title = transcript.DefaultTitle
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	tags, err := encodeTags(meta.Tags)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transcripts (id, title, created_at, tags, audio, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Title, meta.CreatedAt.UnixMilli(), tags, nullableAudio(input.Audio), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert transcript: %w", err)
	}
	if err := insertEntries(ctx, tx, meta.ID, input.Entries); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &meta, nil
}

func (r *SQLiteRepository) GetMetadata(ctx context.Context, id transcript.ID) (*transcript.Metadata, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, tags FROM transcripts WHERE id = ?`, id)
	var meta transcript.Metadata
	var createdAt int64
	var tags string
	if err := row.Scan(&meta.ID, &meta.Title, &createdAt, &tags); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	meta.CreatedAt = time.UnixMilli(createdAt)
	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, err
	}
	meta.Tags = decoded
	return &meta, nil
}

func (r *SQLiteRepository) ListMetadata(ctx context.Context) ([]repository.TranscriptSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.created_at, t.tags, t.updated_at,
		        COALESCE(length(t.audio), 0),
		        (SELECT COUNT(*) FROM transcript_entries e WHERE e.transcript_id = t.id)
		 FROM transcripts t
		 ORDER BY t.created_at ASC, t.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var list []repository.TranscriptSummary
	for rows.Next() {
		var s repository.TranscriptSummary
		var createdAt, updatedAt int64
		var tags string
		if err := rows.Scan(&s.ID, &s.Title, &createdAt, &tags, &updatedAt, &s.AudioBytes, &s.EntryCount); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		s.CreatedAt = time.UnixMilli(createdAt)
		s.UpdatedAt = time.UnixMilli(updatedAt)
		if s.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) UpdateTitle(ctx context.Context, id transcript.ID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = transcript.DefaultTitle
	}
	return r.updateTranscript(ctx, id, `UPDATE transcripts SET title = ?, updated_at = ? WHERE id = ?`, title)
}

func (r *SQLiteRepository) UpdateTags(ctx context.Context, id transcript.ID, tags []string) error {
	encoded, err := encodeTags(normalizeTags(tags))
	if err != nil {
		return err
	}
	return r.updateTranscript(ctx, id, `UPDATE transcripts SET tags = ?, updated_at = ? WHERE id = ?`, encoded)
}

func (r *SQLiteRepository) SetAudio(ctx context.Context, id transcript.ID, audio []byte) error {
	return r.updateTranscript(ctx, id, `UPDATE transcripts SET audio = ?, updated_at = ? WHERE id = ?`, nullableAudio(audio))
}

func (r *SQLiteRepository) updateTranscript(ctx context.Context, id transcript.ID, query string, value any) error {
	res, err := r.db.ExecContext(ctx, query, value, r.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update transcript: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) DeleteTranscript(ctx context.Context, id transcript.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transcript: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLiteRepository) GetAudio(ctx context.Context, id transcript.ID) ([]byte, error) {
	row := r.db.QueryRowContext(ctx, `SELECT audio FROM transcripts WHERE id = ?`, id)
	var audio []byte
	if err := row.Scan(&audio); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, nil
	}
	return audio, nil
}

func (r *SQLiteRepository) AppendEntries(ctx context.Context, id transcript.ID, entries []transcript.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `UPDATE transcripts SET updated_at = ? WHERE id = ?`, r.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch transcript: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if err := insertEntries(ctx, tx, id, entries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListEntries(ctx context.Context, id transcript.ID) ([]transcript.Entry, error) {
	if err := r.requireTranscript(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT speaker, timing, content FROM transcript_entries
		 WHERE transcript_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	list := []transcript.Entry{}
	for rows.Next() {
		var e transcript.Entry
		if err := rows.Scan(&e.Speaker, &e.Timing, &e.Content); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) UpdateEntry(ctx context.Context, id transcript.ID, index int, entry transcript.Entry) error {
	rowID, err := r.entryRowID(ctx, id, index)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE transcript_entries SET speaker = ?, timing = ?, content = ? WHERE id = ?`,
		entry.Speaker, entry.Timing, entry.Content, rowID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveEntry(ctx context.Context, id transcript.ID, index int) error {
	rowID, err := r.entryRowID(ctx, id, index)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transcript_entries WHERE id = ?`, rowID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) entryRowID(ctx context.Context, id transcript.ID, index int) (int64, error) {
	if err := r.requireTranscript(ctx, id); err != nil {
		return 0, err
	}
	if index < 0 {
		return 0, repository.ErrEntryOutOfRange
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT id FROM transcript_entries WHERE transcript_id = ?
		 ORDER BY id ASC LIMIT 1 OFFSET ?`, id, index)
	var rowID int64
	if err := row.Scan(&rowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrEntryOutOfRange
		}
		return 0, fmt.Errorf("scan entry id: %w", err)
	}
	return rowID, nil
}

func (r *SQLiteRepository) requireTranscript(ctx context.Context, id transcript.ID) error {
	row := r.db.QueryRowContext(ctx, `SELECT 1 FROM transcripts WHERE id = ?`, id)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lookup transcript: %w", err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, id transcript.ID, entries []transcript.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_entries (transcript_id, speaker, timing, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, id, e.Speaker, e.Timing, e.Content); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(raw string) ([]string, error) {
	tags := []string{}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func nullableAudio(audio []byte) any {
	if len(audio) == 0 {
		return nil
	}
	return audio
}
