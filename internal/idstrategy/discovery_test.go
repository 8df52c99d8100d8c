package idstrategy

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	idcm "github.com/NeuroGranberg/nils-core/internal/dicom"
)

func mustElement(t *testing.T, tg tag.Tag, value any) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("NewElement(%v, %v): %v", tg, value, err)
	}
	return el
}

func writeDiscoveryFixture(t *testing.T, path, patientID, studyUID string) {
	t.Helper()
	elements := []*dicom.Element{
		mustElement(t, tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustElement(t, tag.PatientID, []string{patientID}),
		mustElement(t, tag.StudyInstanceUID, []string{studyUID}),
		mustElement(t, tag.SeriesInstanceUID, []string{studyUID + ".1"}),
		mustElement(t, tag.SOPInstanceUID, []string{studyUID + ".1.1"}),
		mustElement(t, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
	}
	ds := &idcm.Dataset{Data: dicom.Dataset{Elements: elements}}
	if err := ds.Save(path); err != nil {
		t.Fatalf("could not write fixture %s: %v", path, err)
	}
}

func TestDiscoverPIDsPerTopFolderTakesFirstCandidatePerFolder(t *testing.T) {
	root := t.TempDir()
	folderA := filepath.Join(root, "folderA")
	folderB := filepath.Join(root, "folderB")
	for _, d := range []string{folderA, folderB} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeDiscoveryFixture(t, filepath.Join(folderA, "1.dcm"), "PATA", "1.1")
	writeDiscoveryFixture(t, filepath.Join(folderB, "1.dcm"), "PATB", "1.2")

	got, err := DiscoverPIDs(root, PerTopFolder)
	if err != nil {
		t.Fatalf("DiscoverPIDs: %v", err)
	}
	sort.Strings(got)
	want := []string{"PATA", "PATB"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDiscoverPIDsOnePerStudyDedupesByStudyUID(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	writeDiscoveryFixture(t, filepath.Join(root, "1.dcm"), "PAT1", "1.1")
	writeDiscoveryFixture(t, filepath.Join(root, "2.dcm"), "PAT1", "1.1")
	writeDiscoveryFixture(t, filepath.Join(root, "3.dcm"), "PAT1", "1.2")

	got, err := DiscoverPIDs(root, OnePerStudy)
	if err != nil {
		t.Fatalf("DiscoverPIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (one per distinct study)", len(got))
	}
}

func TestDiscoverPIDsAllReturnsSortedUnion(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	writeDiscoveryFixture(t, filepath.Join(root, "1.dcm"), "PATZ", "1.1")
	writeDiscoveryFixture(t, filepath.Join(root, "2.dcm"), "PATA", "1.2")
	writeDiscoveryFixture(t, filepath.Join(root, "3.dcm"), "PATA", "1.3")

	got, err := DiscoverPIDs(root, All)
	if err != nil {
		t.Fatalf("DiscoverPIDs: %v", err)
	}
	want := []string{"PATA", "PATZ"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}
