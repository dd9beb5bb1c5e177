package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/szaher/mdtboard/internal/discussion"
)

// pgQuerier is the slice of pgxpool.Pool the archive uses. Tests substitute
// a recorded-query fake.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS discussions (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	state       TEXT NOT NULL,
	record      JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS discussions_owner_idx ON discussions (owner_id, started_at DESC);
`

// PGArchive persists records to Postgres. It satisfies the engine's
// Archiver, so finished discussions land in the table automatically.
type PGArchive struct {
	db     pgQuerier
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGArchive connects to Postgres and ensures the schema exists.
func NewPGArchive(ctx context.Context, url string, logger *slog.Logger) (*PGArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &PGArchive{db: pool, pool: pool, logger: logger}
	if _, err := a.db.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return a, nil
}

// Save upserts one record.
func (p *PGArchive) Save(ctx context.Context, rec *discussion.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var finished any
	if !rec.FinishedAt.IsZero() {
		finished = rec.FinishedAt
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO discussions (id, owner_id, session_id, state, record, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, record = EXCLUDED.record, finished_at = EXCLUDED.finished_at`,
		rec.ID, rec.OwnerID, rec.SessionID, string(rec.State), data, rec.StartedAt, finished)
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	p.logger.Info("discussion archived", "discussion", rec.ID)
	return nil
}

// List returns the owner's archived records, newest first.
func (p *PGArchive) List(ctx context.Context, owner string) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, state, record->>'case_text',
		       COALESCE((record->>'rounds_completed')::INT, 0),
		       COALESCE(to_char(finished_at, 'YYYY-MM-DD HH24:MI:SS'), '')
		FROM discussions WHERE owner_id = $1 ORDER BY started_at DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var caseText string
		if err := rows.Scan(&e.ID, &e.State, &caseText, &e.Rounds, &e.Finished); err != nil {
			return nil, err
		}
		e.Preview = preview(caseText, 80)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Load reads one archived record back.
func (p *PGArchive) Load(ctx context.Context, owner, id string) (*discussion.Record, error) {
	var data []byte
	err := p.db.QueryRow(ctx,
		`SELECT record FROM discussions WHERE id = $1 AND owner_id = $2`, id, owner).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var rec discussion.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

// Delete removes one archived record.
func (p *PGArchive) Delete(ctx context.Context, owner, id string) error {
	tag, err := p.db.Exec(ctx,
		`DELETE FROM discussions WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

// Close releases the connection pool.
func (p *PGArchive) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
