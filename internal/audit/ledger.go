package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

// Ledger is the Audit Ledger's handle onto the application database's two
// tables: anonymize_study_audit (completion markers) and
// anonymize_leaf_summary (per-leaf counters plus the deduplicated tag set).
type Ledger struct {
	pool *pgxpool.Pool
}

// New wraps an already-open application-database pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// EnsureSchema creates the ledger's tables if they do not already exist.
// jobs/job_runs are deliberately not created here: they are opaque to the
// core, owned by the job control-plane.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS anonymize_study_audit (
	study_instance_uid TEXT PRIMARY KEY,
	cohort_name        TEXT NOT NULL,
	leaf_rel_path       TEXT NOT NULL,
	completed_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS anonymize_leaf_summary (
	study_instance_uid TEXT PRIMARY KEY,
	cohort_name         TEXT NOT NULL,
	leaf_rel_path       TEXT NOT NULL,
	files_total         INTEGER NOT NULL,
	files_written       INTEGER NOT NULL,
	files_reused        INTEGER NOT NULL,
	files_with_errors   INTEGER NOT NULL,
	summary             JSONB NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return fmt.Errorf("could not create audit ledger schema: %w", err)
	}
	return nil
}

// Exists reports whether study_audit_complete holds for uid — i.e. the
// leaf is fully audited and must never be reprocessed (§8 invariant 1).
func (l *Ledger) Exists(ctx context.Context, studyInstanceUID string) (bool, error) {
	var found int
	err := l.pool.QueryRow(ctx,
		`SELECT 1 FROM anonymize_study_audit WHERE study_instance_uid = $1`,
		studyInstanceUID,
	).Scan(&found)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not check study_audit_complete: %w", err)
	}
	return true, nil
}

// MarkComplete inserts the completion marker if absent; a second call for
// the same study is a no-op (insert-if-absent, §4.5).
func (l *Ledger) MarkComplete(ctx context.Context, studyInstanceUID, cohortName, leafRelPath string) error {
	_, err := l.pool.Exec(ctx, `
INSERT INTO anonymize_study_audit (study_instance_uid, cohort_name, leaf_rel_path, completed_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (study_instance_uid) DO NOTHING`,
		studyInstanceUID, cohortName, leafRelPath)
	if err != nil {
		return fmt.Errorf("could not mark study audit complete: %w", err)
	}
	return nil
}

// RecordSummary upserts the leaf's counters and deduplicated tag set.
func (l *Ledger) RecordSummary(ctx context.Context, summary model.LeafSummary) error {
	payload, err := json.Marshal(summaryPayload{
		OriginalPID: summary.OriginalPID,
		NewPID:      summary.NewPID,
		Tags:        summary.Tags,
	})
	if err != nil {
		return fmt.Errorf("could not marshal leaf summary payload: %w", err)
	}

	_, err = l.pool.Exec(ctx, `
INSERT INTO anonymize_leaf_summary (
	study_instance_uid, cohort_name, leaf_rel_path,
	files_total, files_written, files_reused, files_with_errors,
	summary, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
ON CONFLICT (study_instance_uid) DO UPDATE SET
	files_total       = EXCLUDED.files_total,
	files_written     = EXCLUDED.files_written,
	files_reused      = EXCLUDED.files_reused,
	files_with_errors = EXCLUDED.files_with_errors,
	summary           = EXCLUDED.summary,
	updated_at        = now()`,
		summary.StudyInstanceUID, summary.CohortName, summary.LeafRelPath,
		summary.FilesTotal, summary.FilesWritten, summary.FilesReused, summary.FilesWithErrors,
		payload)
	if err != nil {
		return fmt.Errorf("could not record leaf summary: %w", err)
	}
	return nil
}

// FinalizeLeaf performs §4.3 step 5's single logical commit: the summary
// upsert and the insert-if-absent completion marker, in one transaction.
func (l *Ledger) FinalizeLeaf(ctx context.Context, summary model.LeafSummary) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin leaf-finalize transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	payload, err := json.Marshal(summaryPayload{
		OriginalPID: summary.OriginalPID,
		NewPID:      summary.NewPID,
		Tags:        summary.Tags,
	})
	if err != nil {
		return fmt.Errorf("could not marshal leaf summary payload: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO anonymize_leaf_summary (
	study_instance_uid, cohort_name, leaf_rel_path,
	files_total, files_written, files_reused, files_with_errors,
	summary, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
ON CONFLICT (study_instance_uid) DO UPDATE SET
	files_total       = EXCLUDED.files_total,
	files_written     = EXCLUDED.files_written,
	files_reused      = EXCLUDED.files_reused,
	files_with_errors = EXCLUDED.files_with_errors,
	summary           = EXCLUDED.summary,
	updated_at        = now()`,
		summary.StudyInstanceUID, summary.CohortName, summary.LeafRelPath,
		summary.FilesTotal, summary.FilesWritten, summary.FilesReused, summary.FilesWithErrors,
		payload); err != nil {
		return fmt.Errorf("could not upsert leaf summary: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO anonymize_study_audit (study_instance_uid, cohort_name, leaf_rel_path, completed_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (study_instance_uid) DO NOTHING`,
		summary.StudyInstanceUID, summary.CohortName, summary.LeafRelPath); err != nil {
		return fmt.Errorf("could not insert study_audit_complete marker: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit leaf-finalize transaction: %w", err)
	}
	return nil
}

type summaryPayload struct {
	OriginalPID string                 `json:"original_pid"`
	NewPID      string                 `json:"new_pid"`
	Tags        []model.AuditTagEntry  `json:"tags"`
}

// LoadSummaries fetches every leaf_summary row for a cohort, used by Export
// to aggregate audit tags across leaves.
func (l *Ledger) LoadSummaries(ctx context.Context, cohortName string) ([]LeafRecord, error) {
	rows, err := l.pool.Query(ctx, `
SELECT study_instance_uid, leaf_rel_path, summary
FROM anonymize_leaf_summary
WHERE cohort_name = $1`, cohortName)
	if err != nil {
		return nil, fmt.Errorf("could not load leaf summaries: %w", err)
	}
	defer rows.Close()

	var out []LeafRecord
	for rows.Next() {
		var rec LeafRecord
		var raw []byte
		if err := rows.Scan(&rec.StudyInstanceUID, &rec.LeafRelPath, &raw); err != nil {
			return nil, fmt.Errorf("could not scan leaf summary row: %w", err)
		}
		var payload summaryPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("could not unmarshal leaf summary payload: %w", err)
		}
		rec.Tags = payload.Tags
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LeafRecord is one cohort leaf's audit row as read back for export.
type LeafRecord struct {
	StudyInstanceUID string
	LeafRelPath      string
	Tags             []model.AuditTagEntry
}
