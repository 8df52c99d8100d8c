package anonymizer

import (
	"time"

	"github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/traversal"
)

// studyDateLayout is DICOM's DA value representation (YYYYMMDD).
const studyDateLayout = "20060102"

// ComputeFirstDates walks sourceRoot once and records, per original
// PatientID, the earliest StudyDate seen across its files — the input
// timepoint mapping needs before any file is anonymized (§4.3 step 1).
// Grounded on original_source's _collect_first_dates, which runs this same
// single pre-pass before per-file processing starts, rather than recomputed
// it per leaf as ProcessFile is invoked.
func ComputeFirstDates(sourceRoot string) (map[string]time.Time, error) {
	it := traversal.Walk(sourceRoot, traversal.Streaming, traversal.Options{})
	defer it.Close()

	first := make(map[string]time.Time)
	for {
		path, ok := it.Next()
		if !ok {
			break
		}
		ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
		if err != nil {
			continue
		}
		pid := ds.GetPatientID()
		if pid == "" {
			continue
		}
		study, err := time.Parse(studyDateLayout, ds.GetStudyDate())
		if err != nil {
			continue
		}
		if existing, ok := first[pid]; !ok || study.Before(existing) {
			first[pid] = study
		}
	}
	return first, it.Err()
}
