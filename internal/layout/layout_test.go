package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

func TestPrepareFreshCohortRootMigratesChildren(t *testing.T) {
	root := t.TempDir()
	patientDir := filepath.Join(root, "P1")
	if err := os.MkdirAll(patientDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(patientDir, "a.dcm"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Prepare(root)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.StatusFresh {
		t.Errorf("status = %v, want Fresh", result.Status)
	}
	if _, err := os.Stat(filepath.Join(result.SourcePath, "P1", "a.dcm")); err != nil {
		t.Errorf("expected migrated file at dcm-original/P1/a.dcm: %v", err)
	}
}

func TestPrepareDetectsRawExistsWithContent(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "derivatives", "dcm-raw")
	if err := os.MkdirAll(raw, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(raw, "out.dcm"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Prepare(root)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != model.StatusRawExistsWithContent {
		t.Errorf("status = %v, want RawExistsWithContent", result.Status)
	}
}

func TestPrepareSelectingDcmOriginalDirectly(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "derivatives", "dcm-original")
	if err := os.MkdirAll(original, 0755); err != nil {
		t.Fatal(err)
	}

	result, err := Prepare(original)
	if err != nil {
		t.Fatal(err)
	}
	if result.SourcePath != original {
		t.Errorf("source path = %q, want %q", result.SourcePath, original)
	}
	wantOutput := filepath.Join(root, "derivatives", "dcm-raw")
	if result.OutputPath != wantOutput {
		t.Errorf("output path = %q, want %q", result.OutputPath, wantOutput)
	}
}

func TestCleanRawRemovesOnlyOutputContents(t *testing.T) {
	root := t.TempDir()
	result, err := Prepare(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(result.OutputPath, "leftover.dcm"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CleanRaw(result.OutputPath); err != nil {
		t.Fatal(err)
	}
	if hasContents(result.OutputPath) {
		t.Errorf("expected dcm-raw to be empty after CleanRaw")
	}
}
