// Package postgres provides a PostgreSQL-backed storage driver using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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
	duration_ms BIGINT NOT NULL,
	err         TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts (created_at DESC);
`

// Driver implements storage.Driver using a pgx connection pool.
type Driver struct {
	pool *pgxpool.Pool
}

// NewDriver connects to the database at connURL and ensures the schema
// exists.
func NewDriver(ctx context.Context, connURL string) (*Driver, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Driver{pool: pool}, nil
}

func (d *Driver) Save(ctx context.Context, t *storage.Transcript) error {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO transcripts (id, endpoint, model, prompt, reply, token_count, duration_ms, err, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			endpoint = EXCLUDED.endpoint,
			model = EXCLUDED.model,
			prompt = EXCLUDED.prompt,
			reply = EXCLUDED.reply,
			token_count = EXCLUDED.token_count,
			duration_ms = EXCLUDED.duration_ms,
			err = EXCLUDED.err,
			created_at = EXCLUDED.created_at`,
		t.ID, t.Endpoint, t.Model, t.Prompt, t.Reply, t.TokenCount, t.DurationMs, t.Err, createdAt)
	if err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}

	return nil
}

func (d *Driver) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, endpoint, model, prompt, reply, token_count, duration_ms, err, created_at
		FROM transcripts WHERE id = $1`, id)

	var t storage.Transcript
	err := row.Scan(&t.ID, &t.Endpoint, &t.Model, &t.Prompt, &t.Reply, &t.TokenCount, &t.DurationMs, &t.Err, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}

	return &t, nil
}

func (d *Driver) List(ctx context.Context, limit int) ([]*storage.Transcript, error) {
	query := `
		SELECT id, endpoint, model, prompt, reply, token_count, duration_ms, err, created_at
		FROM transcripts ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var out []*storage.Transcript
	for rows.Next() {
		var t storage.Transcript
		if err := rows.Scan(&t.ID, &t.Endpoint, &t.Model, &t.Prompt, &t.Reply, &t.TokenCount, &t.DurationMs, &t.Err, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		out = append(out, &t)
	}

	return out, rows.Err()
}

func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}
