package anonymizer

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestGroupIntoLeavesGroupsByStudyInstanceUID(t *testing.T) {
	root := t.TempDir()
	studyA := filepath.Join(root, "seriesA")
	studyB := filepath.Join(root, "seriesB")
	if err := os.MkdirAll(studyA, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(studyB, 0755); err != nil {
		t.Fatal(err)
	}

	writeFixture(t, filepath.Join(studyA, "1.dcm"), fixture{
		patientID: "PAT1", studyUID: "1.1", seriesUID: "1.1.1", sopUID: "1.1.1.1", studyDate: "20240101",
	})
	writeFixture(t, filepath.Join(studyA, "2.dcm"), fixture{
		patientID: "PAT1", studyUID: "1.1", seriesUID: "1.1.1", sopUID: "1.1.1.2", studyDate: "20240101",
	})
	writeFixture(t, filepath.Join(studyB, "3.dcm"), fixture{
		patientID: "PAT1", studyUID: "1.2", seriesUID: "1.2.1", sopUID: "1.2.1.1", studyDate: "20240101",
	})

	leaves, skipped := groupIntoLeaves(root)
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(leaves) != 2 {
		t.Fatalf("got %d leaves, want 2", len(leaves))
	}

	byUID := make(map[string]int)
	for _, leaf := range leaves {
		byUID[leaf.StudyInstanceUID] = len(leaf.Files)
	}
	if byUID["1.1"] != 2 {
		t.Errorf("leaf 1.1 has %d files, want 2", byUID["1.1"])
	}
	if byUID["1.2"] != 1 {
		t.Errorf("leaf 1.2 has %d files, want 1", byUID["1.2"])
	}
}

func TestGroupIntoLeavesSkipsUnreadableFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notdicom.dcm"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	leaves, skipped := groupIntoLeaves(root)
	if len(leaves) != 0 {
		t.Errorf("got %d leaves, want 0", len(leaves))
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}

func TestGroupIntoLeavesDeterministicFileOrder(t *testing.T) {
	root := t.TempDir()
	sops := map[string]string{"b.dcm": "1.1.1.2", "a.dcm": "1.1.1.1"}
	for name, sop := range sops {
		writeFixture(t, filepath.Join(root, name), fixture{
			patientID: "PAT1", studyUID: "1.1", seriesUID: "1.1.1", sopUID: sop, studyDate: "20240101",
		})
	}

	leaves, _ := groupIntoLeaves(root)
	if len(leaves) != 1 {
		t.Fatalf("got %d leaves, want 1", len(leaves))
	}
	files := leaves[0].Files
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if !sort.StringsAreSorted(files) {
		t.Errorf("leaf files = %v, want lexicographic walk order", files)
	}
}
