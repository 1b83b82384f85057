package postgres

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
)

// Record ids are client supplied, so they are only unique within a subject.
const schema = `
CREATE TABLE IF NOT EXISTS posture_records (
	id          TEXT NOT NULL,
	subject_id  TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	sitting     BOOLEAN NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (subject_id, id)
);
CREATE INDEX IF NOT EXISTS posture_records_subject_ts_idx ON posture_records (subject_id, ts);
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = 'posture_records'::regclass AND i.indisprimary AND a.attname = 'subject_id'
	) THEN
		ALTER TABLE posture_records DROP CONSTRAINT IF EXISTS posture_records_pkey;
		ALTER TABLE posture_records ADD PRIMARY KEY (subject_id, id);
	END IF;
END
$$;
`

// upsertRecord only ever touches rows owned by the subject in $2
const upsertRecord = `INSERT INTO posture_records (id, subject_id, ts, sitting)
VALUES ($1, $2, $3, $4)
ON CONFLICT (subject_id, id) DO UPDATE
SET ts = EXCLUDED.ts,
    sitting = EXCLUDED.sitting`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Migrate creates the records table when it does not exist
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) Health(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// StoreRecords upserts samples for subjectID in one transaction
func (r *Repository) StoreRecords(ctx context.Context, subjectID string, samples []posture.Sample) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, sample := range samples {
		batch.Queue(upsertRecord, upsertArgs(subjectID, sample)...)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return tx.Commit(ctx)
}

func upsertArgs(subjectID string, sample posture.Sample) []any {
	return []any{sample.ID, subjectID, sample.Timestamp, sample.Sitting}
}

// QueryRecords returns the samples selected by params in ascending time order
func (r *Repository) QueryRecords(ctx context.Context, params models.QueryParams) ([]posture.Sample, error) {
	query, args := buildSelect(params)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	samples := make([]posture.Sample, 0)
	for rows.Next() {
		var sample posture.Sample
		if err := rows.Scan(&sample.ID, &sample.Timestamp, &sample.Sitting); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if params.Latest() {
		slices.Reverse(samples)
	}
	return samples, nil
}

func buildSelect(params models.QueryParams) (string, []any) {
	var b strings.Builder
	args := []any{params.SubjectID}

	b.WriteString("SELECT id, ts, sitting FROM posture_records WHERE subject_id = $1")
	if !params.StartTime.IsZero() {
		args = append(args, params.StartTime)
		fmt.Fprintf(&b, " AND ts >= $%d", len(args))
	}
	if !params.EndTime.IsZero() {
		args = append(args, params.EndTime)
		fmt.Fprintf(&b, " AND ts < $%d", len(args))
	}

	if params.Latest() {
		b.WriteString(" ORDER BY ts DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY ts ASC, id ASC")
	}

	if params.Limit > 0 {
		args = append(args, params.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return b.String(), args
}
