// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brookhq/brook/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id          TEXT PRIMARY KEY,
	endpoint    TEXT NOT NULL,
	model       TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	reply       TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	err         TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts (created_at DESC);
`

// Driver implements storage.Driver using SQLite.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (and if needed creates) the SQLite database at dbPath.
// The path can be ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Driver{db: db}, nil
}

func (d *Driver) Save(ctx context.Context, t *storage.Transcript) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, endpoint, model, prompt, reply, token_count, duration_ms, err, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			endpoint = excluded.endpoint,
			model = excluded.model,
			prompt = excluded.prompt,
			reply = excluded.reply,
			token_count = excluded.token_count,
			duration_ms = excluded.duration_ms,
			err = excluded.err,
			created_at = excluded.created_at`,
		t.ID, t.Endpoint, t.Model, t.Prompt, t.Reply, t.TokenCount, t.DurationMs, t.Err, createdAt)
	if err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}

	return nil
}

func (d *Driver) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, endpoint, model, prompt, reply, token_count, duration_ms, err, created_at
		FROM transcripts WHERE id = ?`, id)

	t, err := scanTranscript(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}

	return t, nil
}

func (d *Driver) List(ctx context.Context, limit int) ([]*storage.Transcript, error) {
	query := `
		SELECT id, endpoint, model, prompt, reply, token_count, duration_ms, err, created_at
		FROM transcripts ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var out []*storage.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

func (d *Driver) Close() error {
	return d.db.Close()
}

func scanTranscript(scan func(dest ...any) error) (*storage.Transcript, error) {
	var t storage.Transcript
	err := scan(&t.ID, &t.Endpoint, &t.Model, &t.Prompt, &t.Reply, &t.TokenCount, &t.DurationMs, &t.Err, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
