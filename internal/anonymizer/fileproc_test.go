package anonymizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/idstrategy"
	"github.com/NeuroGranberg/nils-core/internal/model"
)

func baseOptions(sourceRoot, outputRoot string) Options {
	return Options{
		SourceRoot:         sourceRoot,
		OutputRoot:         outputRoot,
		AnonymizePatientID: true,
		MapTimepoints:      true,
	}
}

func TestProcessFileReplacesPatientIDAndScrubsName(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	patientDir := filepath.Join(root, "PAT001")
	if err := os.MkdirAll(patientDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(patientDir, "file.dcm")
	writeFixture(t, path, fixture{
		patientID: "PAT001",
		studyUID:  "1.2.3.4",
		seriesUID: "1.2.3.4.5",
		sopUID:    "1.2.3.4.5.6",
		studyDate: "20240101",
	})

	strategy := idstrategy.Sequential{Table: map[string]string{"PAT001": "SUBJ0001"}}
	result := ProcessFile(path, baseOptions(root, out), strategy, nil)

	if result.Error != nil {
		t.Fatalf("ProcessFile error: %v", result.Error)
	}
	if !result.Written {
		t.Fatal("expected file to be written")
	}
	if result.NewPID != "SUBJ0001" {
		t.Errorf("NewPID = %q, want SUBJ0001", result.NewPID)
	}
	if result.OldPID != "PAT001" {
		t.Errorf("OldPID = %q, want PAT001", result.OldPID)
	}

	writtenPath := filepath.Join(out, "PAT001", "file.dcm")
	ds, err := dicom.ReadDicom(writtenPath)
	if err != nil {
		t.Fatalf("could not read written file: %v", err)
	}
	if got := ds.GetPatientID(); got != "SUBJ0001" {
		t.Errorf("written PatientID = %q, want SUBJ0001", got)
	}
	if got := ds.GetString(tag.PatientName); got != "" {
		t.Errorf("PatientName should have been scrubbed, got %q", got)
	}

	foundPIDEvent := false
	for _, ev := range result.Events {
		if ev.TagName == "PatientID" {
			foundPIDEvent = true
			if ev.Action != model.ActionReplaced {
				t.Errorf("PatientID event action = %v, want Replaced", ev.Action)
			}
		}
	}
	if !foundPIDEvent {
		t.Error("expected a PatientID audit event")
	}
}

func TestProcessFileSkipsWriteWhenTargetExists(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	patientDir := filepath.Join(root, "PAT002")
	if err := os.MkdirAll(patientDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(patientDir, "file.dcm")
	writeFixture(t, path, fixture{
		patientID: "PAT002",
		studyUID:  "1.2.3.4",
		seriesUID: "1.2.3.4.5",
		sopUID:    "1.2.3.4.5.6",
		studyDate: "20240101",
	})

	target := filepath.Join(out, "PAT002", "file.dcm")
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(target, []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	strategy := idstrategy.None{}
	result := ProcessFile(path, baseOptions(root, out), strategy, nil)
	if result.Error != nil {
		t.Fatalf("ProcessFile error: %v", result.Error)
	}
	if result.Written {
		t.Error("expected write to be skipped because target already exists")
	}
}

func TestProcessFileMapsTimepoint(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	patientDir := filepath.Join(root, "PAT003")
	if err := os.MkdirAll(patientDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(patientDir, "file.dcm")
	writeFixture(t, path, fixture{
		patientID: "PAT003",
		studyUID:  "1.2.3.4",
		seriesUID: "1.2.3.4.5",
		sopUID:    "1.2.3.4.5.6",
		studyDate: "20240701",
	})

	firstDates := map[string]time.Time{
		"PAT003": mustParseDate(t, "20240101"),
	}
	strategy := idstrategy.None{}
	result := ProcessFile(path, baseOptions(root, out), strategy, firstDates)
	if result.Error != nil {
		t.Fatalf("ProcessFile error: %v", result.Error)
	}

	writtenPath := filepath.Join(out, "PAT003", "file.dcm")
	ds, err := dicom.ReadDicom(writtenPath)
	if err != nil {
		t.Fatalf("could not read written file: %v", err)
	}
	if got := ds.GetStudyDate(); got != "M06" {
		t.Errorf("written StudyDate = %q, want M06", got)
	}
}

func TestSafeAuditValueFlattensEmbeddedNewlines(t *testing.T) {
	got := safeAuditValue("line one\r\nline two\nline three")
	want := "line one | line two | line three"
	if got != want {
		t.Errorf("safeAuditValue = %q, want %q", got, want)
	}
}

func TestSafeAuditValueCapsLongValues(t *testing.T) {
	long := strings.Repeat("a", auditValueMaxLength+50)
	got := safeAuditValue(long)
	if len(got) != auditValueMaxLength {
		t.Fatalf("len(safeAuditValue) = %d, want %d", len(got), auditValueMaxLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("safeAuditValue should end in \"...\" when truncated, got %q", got[len(got)-10:])
	}
}

func TestSafeAuditValueEmptyStaysEmpty(t *testing.T) {
	if got := safeAuditValue(""); got != "" {
		t.Errorf("safeAuditValue(\"\") = %q, want empty", got)
	}
}

func mustParseDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("20060102", s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
