package extract

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	idcm "github.com/NeuroGranberg/nils-core/internal/dicom"
)

type fixture struct {
	patientID string
	studyUID  string
	seriesUID string
	sopUID    string
	modality  string
}

func mustElement(t *testing.T, tg tag.Tag, value any) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("NewElement(%v, %v): %v", tg, value, err)
	}
	return el
}

// writeFixture writes a minimal valid DICOM file at path with f's tags set,
// in the flat-element style github.com/suyashkumar/dicom test generators
// use (no nested file-meta group).
func writeFixture(t *testing.T, path string, f fixture) {
	t.Helper()
	elements := []*dicom.Element{
		mustElement(t, tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustElement(t, tag.PatientID, []string{f.patientID}),
		mustElement(t, tag.PatientName, []string{"Test^Patient"}),
		mustElement(t, tag.StudyInstanceUID, []string{f.studyUID}),
		mustElement(t, tag.StudyDate, []string{"20240101"}),
		mustElement(t, tag.SeriesInstanceUID, []string{f.seriesUID}),
		mustElement(t, tag.SOPInstanceUID, []string{f.sopUID}),
		mustElement(t, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustElement(t, tag.Modality, []string{f.modality}),
	}

	ds := &idcm.Dataset{Data: dicom.Dataset{Elements: elements}}
	if err := ds.Save(path); err != nil {
		t.Fatalf("could not write fixture %s: %v", path, err)
	}
}
