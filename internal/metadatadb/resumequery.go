package metadatadb

import (
	"context"
	"fmt"
)

// ExtractedInstanceRow is one previously-written Instance, the shape the
// Extraction Engine's resume mechanisms need to rebuild their in-memory
// index at process start (§4.7 step 1). RelPath still carries the subject
// folder as its leading segment, exactly as worker.go stored it
// (`filepath.Join(subject.SubjectKey, rel)`) — extract.BuildResumeState
// peels that segment back off rather than this query joining through
// subject for a code that plan.go's pathFilter never keys by.
type ExtractedInstanceRow struct {
	SeriesInstanceUID string
	SOPInstanceUID    string
	RelPath           string
}

// ExtractedInstancesForCohort returns every Instance already persisted for
// cohortID, across all of its subjects' studies and series. cmd/nilscore
// uses this to rebuild the resume-by-path index and the per-series SOP-UID
// high-water marks before starting a new Extraction Engine run, so a resumed
// run does not re-queue files the previous run already wrote.
func (db *DB) ExtractedInstancesForCohort(ctx context.Context, cohortID int64) ([]ExtractedInstanceRow, error) {
	rows, err := db.q.Query(ctx, `
SELECT ser.series_instance_uid, i.sop_instance_uid, i.rel_path
FROM instance i
JOIN series ser ON ser.series_id = i.series_id
JOIN study st ON st.study_id = ser.study_id
JOIN subject_cohorts sc ON sc.subject_id = st.subject_id
WHERE sc.cohort_id = $1
ORDER BY i.rel_path`, cohortID)
	if err != nil {
		return nil, fmt.Errorf("could not read extracted instances for cohort %d: %w", cohortID, err)
	}
	defer rows.Close()

	var out []ExtractedInstanceRow
	for rows.Next() {
		var r ExtractedInstanceRow
		if err := rows.Scan(&r.SeriesInstanceUID, &r.SOPInstanceUID, &r.RelPath); err != nil {
			return nil, fmt.Errorf("could not scan extracted instance row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read extracted instances for cohort %d: %w", cohortID, err)
	}
	return out, nil
}
