package anonymizer

import (
	"path/filepath"
	"testing"
	"time"
)

func TestComputeFirstDatesTakesEarliestPerPatient(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, filepath.Join(root, "a.dcm"), fixture{
		patientID: "P1", studyUID: "1.1", seriesUID: "1.1.1", sopUID: "1.1.1.1", studyDate: "20220601",
	})
	writeFixture(t, filepath.Join(root, "b.dcm"), fixture{
		patientID: "P1", studyUID: "1.2", seriesUID: "1.2.1", sopUID: "1.2.1.1", studyDate: "20210315",
	})
	writeFixture(t, filepath.Join(root, "c.dcm"), fixture{
		patientID: "P2", studyUID: "2.1", seriesUID: "2.1.1", sopUID: "2.1.1.1", studyDate: "20230101",
	})

	got, err := ComputeFirstDates(root)
	if err != nil {
		t.Fatalf("ComputeFirstDates: %v", err)
	}

	want := map[string]time.Time{
		"P1": mustParseDate(t, "20210315"),
		"P2": mustParseDate(t, "20230101"),
	}
	for pid, wantDate := range want {
		got, ok := got[pid]
		if !ok {
			t.Fatalf("missing first date for %s", pid)
		}
		if !got.Equal(wantDate) {
			t.Errorf("first date for %s = %v, want %v", pid, got, wantDate)
		}
	}
}
