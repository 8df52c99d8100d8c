// Package metadatadb is the Writer's and Stack Discovery's handle onto the
// metadata database (§6): subject/cohort/study/series/instance/series_stack
// plus per-modality detail tables, addressed by natural key.
package metadatadb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgxpool.Pool and pgx.Tx that DB's methods need.
// Every DB method goes through q rather than the pool directly, so the same
// method set works whether DB wraps the pool or one transaction on it.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// DB wraps the metadata database's pool, or a single transaction on it when
// returned by WithTx. Every write goes through the single writer task
// (extraction) or Stack Discovery's post-pass; there is no other mutator
// (§5).
type DB struct {
	q    querier
	pool *pgxpool.Pool
}

// New wraps an already-open metadata-database pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{q: pool, pool: pool}
}

// WithTx runs fn against a DB backed by a single transaction, committing on
// success and rolling back on error or panic. The Adaptive Batching Writer
// uses this to make one batch's Subject/Study/Series/Instance/detail writes
// atomic (§4.8 step 3, the no-orphans invariant).
func (db *DB) WithTx(ctx context.Context, fn func(tx *DB) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&DB{q: tx, pool: db.pool}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// EnsureSchema creates the metadata database's tables if absent. Per-modality
// detail rows and the extracted field dictionaries are stored as JSONB
// rather than one column per DICOM tag: §6 names the table set, not a fixed
// column list, and the extraction engine's Fields maps are open-ended.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_version (
	version     TEXT PRIMARY KEY,
	applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS cohort (
	cohort_id   BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	path        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subject (
	subject_id    BIGSERIAL PRIMARY KEY,
	subject_code  TEXT NOT NULL UNIQUE,
	code_source   TEXT NOT NULL,
	original_pid  TEXT
);
CREATE TABLE IF NOT EXISTS subject_cohorts (
	subject_id  BIGINT NOT NULL REFERENCES subject(subject_id),
	cohort_id   BIGINT NOT NULL REFERENCES cohort(cohort_id),
	UNIQUE (subject_id, cohort_id)
);
CREATE TABLE IF NOT EXISTS study (
	study_id           BIGSERIAL PRIMARY KEY,
	study_instance_uid TEXT NOT NULL UNIQUE,
	subject_id         BIGINT NOT NULL REFERENCES subject(subject_id),
	fields             JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS series (
	series_id           BIGSERIAL PRIMARY KEY,
	series_instance_uid TEXT NOT NULL UNIQUE,
	study_id             BIGINT NOT NULL REFERENCES study(study_id),
	modality             TEXT NOT NULL,
	fields               JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS instance (
	instance_id       BIGSERIAL PRIMARY KEY,
	sop_instance_uid  TEXT NOT NULL UNIQUE,
	series_id         BIGINT NOT NULL REFERENCES series(series_id),
	series_stack_id   BIGINT,
	rel_path          TEXT NOT NULL,
	fields            JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS series_stack (
	series_stack_id         BIGSERIAL PRIMARY KEY,
	series_id               BIGINT NOT NULL REFERENCES series(series_id),
	stack_index             INTEGER NOT NULL,
	stack_key               TEXT NOT NULL DEFAULT '',
	signature               JSONB NOT NULL,
	orientation_confidence  DOUBLE PRECISION NOT NULL,
	stack_n_instances       INTEGER NOT NULL,
	UNIQUE (series_id, stack_index)
);
CREATE TABLE IF NOT EXISTS mri_series_details (
	series_id           BIGINT PRIMARY KEY REFERENCES series(series_id),
	series_instance_uid TEXT NOT NULL UNIQUE,
	fields               JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS ct_series_details (
	series_id           BIGINT PRIMARY KEY REFERENCES series(series_id),
	series_instance_uid TEXT NOT NULL UNIQUE,
	fields               JSONB NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS pet_series_details (
	series_id           BIGINT PRIMARY KEY REFERENCES series(series_id),
	series_instance_uid TEXT NOT NULL UNIQUE,
	fields               JSONB NOT NULL DEFAULT '{}'
);`)
	if err != nil {
		return fmt.Errorf("could not create metadata database schema: %w", err)
	}
	return nil
}
