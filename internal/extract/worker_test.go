package extract

import (
	"context"
	"path/filepath"
	"testing"
)

func TestExtractSubjectBatchesBatchSizeOne(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "file1.dcm"), fixture{patientID: "PATIENT1", studyUID: "1.2.3.4.5", seriesUID: "1.2.3.4.5.6", sopUID: "1.2.826.0.1.3680043.2.1125.1", modality: "MR"})
	writeFixture(t, filepath.Join(dir, "file2.dcm"), fixture{patientID: "PATIENT1", studyUID: "1.2.3.4.5", seriesUID: "1.2.3.4.5.6", sopUID: "1.2.826.0.1.3680043.2.1125.2", modality: "MR"})

	subject := SubjectFolder{SubjectKey: "subject1", Path: dir}
	resolver := &SubjectResolver{Seed: "test-seed"}

	batches, err := ExtractSubjectBatches(context.Background(), subject, resolver, 1, nil, nil, nil, 2)
	if err != nil {
		t.Fatalf("ExtractSubjectBatches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	first := batches[0].Payloads[0]
	if first.SubjectKey != "subject1" {
		t.Errorf("SubjectKey = %q, want subject1", first.SubjectKey)
	}
	if want := SubjectCodeGen("PATIENT1", "test-seed"); first.SubjectCode != want {
		t.Errorf("SubjectCode = %q, want %q", first.SubjectCode, want)
	}
	if first.CodeSource != SourceHash {
		t.Errorf("CodeSource = %q, want hash", first.CodeSource)
	}
	if first.Modality != "MR" {
		t.Errorf("Modality = %q, want MR", first.Modality)
	}

	latest := batches[0].LastSOPUID
	for _, b := range batches {
		if b.LastSOPUID > latest {
			latest = b.LastSOPUID
		}
	}

	resumed, err := ExtractSubjectBatches(context.Background(), subject, resolver, 10, SeriesResumeTokens{"1.2.3.4.5.6": latest}, nil, nil, 2)
	if err != nil {
		t.Fatalf("ExtractSubjectBatches (resume): %v", err)
	}
	if len(resumed) != 0 {
		t.Fatalf("got %d resumed batches, want 0", len(resumed))
	}
}

func TestExtractSubjectBatchesSkipsKnownPaths(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "keep.dcm"), fixture{patientID: "PATIENT1", studyUID: "1.2.3.4.5", seriesUID: "1.2.3.4.5.6", sopUID: "1.2.826.0.1.3680043.2.1125.30", modality: "MR"})
	writeFixture(t, filepath.Join(dir, "skip.dcm"), fixture{patientID: "PATIENT1", studyUID: "1.2.3.4.5", seriesUID: "1.2.3.4.5.6", sopUID: "1.2.826.0.1.3680043.2.1125.31", modality: "MR"})

	subject := SubjectFolder{SubjectKey: "subject3", Path: dir}
	resolver := &SubjectResolver{Seed: "test-seed"}

	idx := NewExistingPathIndex()
	idx.Add("subject3", "skip.dcm")

	batches, err := ExtractSubjectBatches(context.Background(), subject, resolver, 10, nil, idx.EntryFor("subject3"), nil, 2)
	if err != nil {
		t.Fatalf("ExtractSubjectBatches: %v", err)
	}
	if len(batches) != 1 || len(batches[0].Payloads) != 1 {
		t.Fatalf("got %v, want exactly one payload", batches)
	}
	if got := batches[0].Payloads[0].RelPath; filepath.Base(got) != "keep.dcm" {
		t.Errorf("RelPath = %q, want to end in keep.dcm", got)
	}
}

func TestExtractSubjectBatchesSkipsMissingModality(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "bad.dcm"), fixture{patientID: "PATIENT1", studyUID: "1.2.3.4.5", seriesUID: "1.2.3.4.5.6", sopUID: "1.2.826.0.1.3680043.2.1125.50", modality: ""})

	subject := SubjectFolder{SubjectKey: "subject_missing_modality", Path: dir}
	resolver := &SubjectResolver{Seed: "seed"}

	batches, err := ExtractSubjectBatches(context.Background(), subject, resolver, 10, nil, nil, nil, 2)
	if err != nil {
		t.Fatalf("ExtractSubjectBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("got %d batches, want 0", len(batches))
	}
}

func TestExtractSubjectBatchesSkipsDisallowedModality(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "xa.dcm"), fixture{patientID: "PATIENT1", studyUID: "1.2.3.4.5", seriesUID: "1.2.3.4.5.6", sopUID: "1.2.826.0.1.3680043.2.1125.60", modality: "XA"})

	subject := SubjectFolder{SubjectKey: "subject_invalid_modality", Path: dir}
	resolver := &SubjectResolver{Seed: "seed"}

	batches, err := ExtractSubjectBatches(context.Background(), subject, resolver, 10, nil, nil, nil, 2)
	if err != nil {
		t.Fatalf("ExtractSubjectBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("got %d batches, want 0", len(batches))
	}
}
