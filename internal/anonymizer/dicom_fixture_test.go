package anonymizer

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	idcm "github.com/NeuroGranberg/nils-core/internal/dicom"
)

type fixture struct {
	patientID   string
	studyUID    string
	seriesUID   string
	sopUID      string
	studyDate   string
	patientName string
}

func mustElement(t *testing.T, tg tag.Tag, value any) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("NewElement(%v, %v): %v", tg, value, err)
	}
	return el
}

// writeFixture writes a minimal valid DICOM file at path carrying f's core
// identifying tags plus a PatientName, so scrub-list tests have something to
// clear. Mirrors internal/extract's fixture writer.
func writeFixture(t *testing.T, path string, f fixture) {
	t.Helper()
	name := f.patientName
	if name == "" {
		name = "Test^Patient"
	}
	elements := []*dicom.Element{
		mustElement(t, tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustElement(t, tag.PatientID, []string{f.patientID}),
		mustElement(t, tag.PatientName, []string{name}),
		mustElement(t, tag.StudyInstanceUID, []string{f.studyUID}),
		mustElement(t, tag.StudyDate, []string{f.studyDate}),
		mustElement(t, tag.SeriesInstanceUID, []string{f.seriesUID}),
		mustElement(t, tag.SOPInstanceUID, []string{f.sopUID}),
		mustElement(t, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustElement(t, tag.Modality, []string{"MR"}),
	}

	ds := &idcm.Dataset{Data: dicom.Dataset{Elements: elements}}
	if err := ds.Save(path); err != nil {
		t.Fatalf("could not write fixture %s: %v", path, err)
	}
}
