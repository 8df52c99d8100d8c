package metadatadb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NeuroGranberg/nils-core/internal/model"
	"github.com/NeuroGranberg/nils-core/internal/stack"
)

func marshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("could not marshal fields: %w", err)
	}
	return payload, nil
}

// UpsertCohort returns the cohort_id for name, creating the row if absent.
func (db *DB) UpsertCohort(ctx context.Context, name, path string) (int64, error) {
	var id int64
	err := db.q.QueryRow(ctx, `
INSERT INTO cohort (name, path) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET path = EXCLUDED.path
RETURNING cohort_id`, name, path).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("could not upsert cohort: %w", err)
	}
	return id, nil
}

// UpsertSubject returns the subject_id for subjectCode, creating the row if
// absent (§4.8 step 3a). inserted reports whether this call created the
// row, via Postgres's xmax=0-on-insert convention, so callers can count
// newly persisted subjects rather than every touched row.
func (db *DB) UpsertSubject(ctx context.Context, subjectCode, codeSource, originalPID string) (id int64, inserted bool, err error) {
	err = db.q.QueryRow(ctx, `
INSERT INTO subject (subject_code, code_source, original_pid) VALUES ($1, $2, $3)
ON CONFLICT (subject_code) DO UPDATE SET code_source = EXCLUDED.code_source
RETURNING subject_id, (xmax = 0)`, subjectCode, codeSource, originalPID).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("could not upsert subject: %w", err)
	}
	return id, inserted, nil
}

// EnsureSubjectCohort maintains subject/cohort membership exactly once
// (§4.8 step 3a).
func (db *DB) EnsureSubjectCohort(ctx context.Context, subjectID, cohortID int64) error {
	_, err := db.q.Exec(ctx, `
INSERT INTO subject_cohorts (subject_id, cohort_id) VALUES ($1, $2)
ON CONFLICT (subject_id, cohort_id) DO NOTHING`, subjectID, cohortID)
	if err != nil {
		return fmt.Errorf("could not ensure subject/cohort membership: %w", err)
	}
	return nil
}

// UpsertStudy returns the study_id for uid, creating the row with subjectID
// set if absent (§4.8 step 3b). inserted reports whether this call created
// the row (see UpsertSubject).
func (db *DB) UpsertStudy(ctx context.Context, uid string, subjectID int64, fields map[string]any) (id int64, inserted bool, err error) {
	payload, err := marshalFields(fields)
	if err != nil {
		return 0, false, err
	}
	err = db.q.QueryRow(ctx, `
INSERT INTO study (study_instance_uid, subject_id, fields) VALUES ($1, $2, $3)
ON CONFLICT (study_instance_uid) DO UPDATE SET fields = EXCLUDED.fields
RETURNING study_id, (xmax = 0)`, uid, subjectID, payload).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("could not upsert study: %w", err)
	}
	return id, inserted, nil
}

// UpsertSeries returns the series_id for uid, creating the row if absent
// (§4.8 step 3c). inserted reports whether this call created the row (see
// UpsertSubject).
func (db *DB) UpsertSeries(ctx context.Context, uid string, studyID int64, modality string, fields map[string]any) (id int64, inserted bool, err error) {
	payload, err := marshalFields(fields)
	if err != nil {
		return 0, false, err
	}
	err = db.q.QueryRow(ctx, `
INSERT INTO series (series_instance_uid, study_id, modality, fields) VALUES ($1, $2, $3, $4)
ON CONFLICT (series_instance_uid) DO UPDATE SET fields = EXCLUDED.fields
RETURNING series_id, (xmax = 0)`, uid, studyID, modality, payload).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("could not upsert series: %w", err)
	}
	return id, inserted, nil
}

// ErrDuplicateAbort is returned by InsertInstance when sop_instance_uid
// already exists and policy is DuplicateAbort.
var ErrDuplicateAbort = fmt.Errorf("duplicate sop_instance_uid with abort policy")

// InsertInstance performs §4.8 step 3d's instance-first insert: attempt to
// insert keyed by sop_instance_uid; on collision, apply policy. inserted is
// false when the row pre-existed and was left untouched (SKIP) — callers
// use this to decide whether parent rows (MRI/CT/PET details) are "live".
func (db *DB) InsertInstance(ctx context.Context, sopUID string, seriesID int64, relPath string, fields map[string]any, policy model.DuplicatePolicy) (id int64, inserted bool, err error) {
	payload, err := marshalFields(fields)
	if err != nil {
		return 0, false, err
	}

	err = db.q.QueryRow(ctx, `
INSERT INTO instance (sop_instance_uid, series_id, rel_path, fields) VALUES ($1, $2, $3, $4)
ON CONFLICT (sop_instance_uid) DO NOTHING
RETURNING instance_id`, sopUID, seriesID, relPath, payload).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != pgx.ErrNoRows {
		return 0, false, fmt.Errorf("could not insert instance: %w", err)
	}

	// Row already existed.
	switch policy {
	case model.DuplicateAbort:
		return 0, false, ErrDuplicateAbort
	case model.DuplicateOverwrite:
		err = db.q.QueryRow(ctx, `
UPDATE instance SET series_id = $2, rel_path = $3, fields = $4
WHERE sop_instance_uid = $1
RETURNING instance_id`, sopUID, seriesID, relPath, payload).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("could not overwrite instance: %w", err)
		}
		return id, true, nil
	default: // model.DuplicateSkip
		err = db.q.QueryRow(ctx, `SELECT instance_id FROM instance WHERE sop_instance_uid = $1`, sopUID).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("could not look up existing instance: %w", err)
		}
		return id, false, nil
	}
}

// UpsertMRDetails, UpsertCTDetails, UpsertPETDetails store per-modality
// detail rows (§4.8 step 3e). Callers only invoke these for payloads whose
// instance insert succeeded (the "live parents" rule).
func (db *DB) UpsertMRDetails(ctx context.Context, seriesID int64, seriesInstanceUID string, fields map[string]any) error {
	return db.upsertDetails(ctx, "mri_series_details", seriesID, seriesInstanceUID, fields)
}

func (db *DB) UpsertCTDetails(ctx context.Context, seriesID int64, seriesInstanceUID string, fields map[string]any) error {
	return db.upsertDetails(ctx, "ct_series_details", seriesID, seriesInstanceUID, fields)
}

func (db *DB) UpsertPETDetails(ctx context.Context, seriesID int64, seriesInstanceUID string, fields map[string]any) error {
	return db.upsertDetails(ctx, "pet_series_details", seriesID, seriesInstanceUID, fields)
}

func (db *DB) upsertDetails(ctx context.Context, table string, seriesID int64, seriesInstanceUID string, fields map[string]any) error {
	payload, err := marshalFields(fields)
	if err != nil {
		return err
	}
	_, err = db.q.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (series_id, series_instance_uid, fields) VALUES ($1, $2, $3)
ON CONFLICT (series_id) DO UPDATE SET fields = EXCLUDED.fields`, table),
		seriesID, seriesInstanceUID, payload)
	if err != nil {
		return fmt.Errorf("could not upsert %s: %w", table, err)
	}
	return nil
}

// UpsertSeriesStacks persists Stack Discovery's grouping (§4.9 step 5),
// returning the persisted series_stack_id keyed by stack_index.
func (db *DB) UpsertSeriesStacks(ctx context.Context, seriesID int64, stacks []model.SeriesStack) (map[int]int64, error) {
	ids := make(map[int]int64, len(stacks))
	for _, s := range stacks {
		sig, err := json.Marshal(s.Signature)
		if err != nil {
			return nil, fmt.Errorf("could not marshal stack signature: %w", err)
		}
		var id int64
		err = db.q.QueryRow(ctx, `
INSERT INTO series_stack (series_id, stack_index, stack_key, signature, orientation_confidence, stack_n_instances)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (series_id, stack_index) DO UPDATE SET
	stack_key               = EXCLUDED.stack_key,
	signature                = EXCLUDED.signature,
	orientation_confidence   = EXCLUDED.orientation_confidence,
	stack_n_instances        = EXCLUDED.stack_n_instances
RETURNING series_stack_id`,
			seriesID, s.StackIndex, string(s.StackKey), sig, s.OrientationConfidence, s.StackNInstances).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("could not upsert series_stack: %w", err)
		}
		ids[s.StackIndex] = id
	}
	return ids, nil
}

// BulkUpdateInstanceStackFK bulk-updates instance.series_stack_id via a
// temporary join table rather than one-row-at-a-time writes (§4.9 step 5).
func (db *DB) BulkUpdateInstanceStackFK(ctx context.Context, updates []stack.FKUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin stack FK update transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
CREATE TEMP TABLE stack_fk_updates (instance_id BIGINT, series_stack_id BIGINT) ON COMMIT DROP`); err != nil {
		return fmt.Errorf("could not create temp join table: %w", err)
	}

	rows := make([][]any, len(updates))
	for i, u := range updates {
		rows[i] = []any{u.InstanceID, u.SeriesStackID}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"stack_fk_updates"},
		[]string{"instance_id", "series_stack_id"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("could not load stack FK updates: %w", err)
	}

	if _, err := tx.Exec(ctx, `
UPDATE instance SET series_stack_id = j.series_stack_id
FROM stack_fk_updates j
WHERE instance.instance_id = j.instance_id`); err != nil {
		return fmt.Errorf("could not bulk-update instance series_stack_id: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit stack FK update transaction: %w", err)
	}
	return nil
}
