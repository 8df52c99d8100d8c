package anonymizer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTopLevelFoldersSortedAndDirsOnly(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"patientB", "patientA"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := topLevelFolders(root)
	if err != nil {
		t.Fatalf("topLevelFolders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d folders, want 2 (file entries excluded)", len(got))
	}
	if filepath.Base(got[0]) != "patientA" || filepath.Base(got[1]) != "patientB" {
		t.Errorf("got %v, want lexicographic [patientA, patientB]", got)
	}
}
