package dicom

import (
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset wraps a DICOM dataset for easier access
type Dataset struct {
	Data     dicom.Dataset
	FilePath string
}

// ReadDicom reads a DICOM file and returns the dataset.
func ReadDicom(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{
		Data:     ds,
		FilePath: path,
	}, nil
}

// ReadDicomMetadataOnly reads only the metadata (no pixel data).
func ReadDicomMetadataOnly(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{
		Data:     ds,
		FilePath: path,
	}, nil
}

// GetString returns a string value for a tag, or empty string if not found.
func (d *Dataset) GetString(t tag.Tag) string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil {
		return ""
	}

	if elem.Value == nil {
		return ""
	}

	strings := elem.Value.GetValue()
	if strings == nil {
		return ""
	}

	switch v := strings.(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case string:
		return v
	}

	return fmt.Sprintf("%v", strings)
}

// GetPatientName returns the patient name.
func (d *Dataset) GetPatientName() string {
	return d.GetString(tag.PatientName)
}

// GetPatientID returns the patient ID.
func (d *Dataset) GetPatientID() string {
	return d.GetString(tag.PatientID)
}

// GetPatientBirthDate returns the patient DOB.
func (d *Dataset) GetPatientBirthDate() string {
	return d.GetString(tag.PatientBirthDate)
}

// GetTransferSyntax returns the transfer syntax UID.
func (d *Dataset) GetTransferSyntax() string {
	return d.GetString(tag.TransferSyntaxUID)
}

// GetModality returns the DICOM modality (e.g., "US", "CT", "MR", "CR", "DX").
func (d *Dataset) GetModality() string {
	return d.GetString(tag.Modality)
}

// IsUltrasound returns true if this is an ultrasound image.
func (d *Dataset) IsUltrasound() bool {
	modality := d.GetModality()
	return modality == "US" || modality == "IVUS" // Intravascular ultrasound
}

// GetStudyInstanceUID returns the StudyInstanceUID.
func (d *Dataset) GetStudyInstanceUID() string {
	return d.GetString(StudyInstanceUID)
}

// GetSeriesInstanceUID returns the SeriesInstanceUID.
func (d *Dataset) GetSeriesInstanceUID() string {
	return d.GetString(SeriesInstanceUID)
}

// GetSOPInstanceUID returns the SOPInstanceUID.
func (d *Dataset) GetSOPInstanceUID() string {
	return d.GetString(SOPInstanceUID)
}

// GetStudyDate returns the StudyDate in DICOM DA format (YYYYMMDD).
func (d *Dataset) GetStudyDate() string {
	return d.GetString(tag.StudyDate)
}

// GetImageOrientationPatient returns the raw six-component orientation
// string ("a\\b\\c\\d\\e\\f").
func (d *Dataset) GetImageOrientationPatient() string {
	return d.GetString(ImageOrientationPatient)
}

// GetImageType returns the raw multi-valued ImageType string.
func (d *Dataset) GetImageType() string {
	return d.GetString(ImageType)
}

// GetFloatTag returns a tag's value parsed as float64, and whether it was
// present and parseable.
func (d *Dataset) GetFloatTag(t tag.Tag) (float64, bool) {
	s := d.GetString(t)
	if s == "" {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, false
	}
	return f, true
}

// GetIntTag returns a tag's value parsed as int, and whether it was
// present and parseable.
func (d *Dataset) GetIntTag(t tag.Tag) (int, bool) {
	s := d.GetString(t)
	if s == "" {
		return 0, false
	}
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0, false
	}
	return i, true
}

// ReadSpecificTags reads a file's metadata (stopping before pixel data) for
// later lookup of the given tags via GetString/GetFloatTag/GetIntTag. The
// underlying parser does not support a true specific-tag prefilter, so this
// is equivalent to ReadDicomMetadataOnly; the tags argument documents the
// caller's intent and is reserved for a future parser that can skip
// unrequested elements.
func ReadSpecificTags(path string, tags []tag.Tag) (*Dataset, error) {
	return ReadDicomMetadataOnly(path)
}

// MinimalTagSet is the fixed specific-tag list used for leaf grouping and
// signature reads: PatientID, StudyInstanceUID, StudyDate, orientation,
// image-type, and the stack-defining parameters of §4.8.
func MinimalTagSet() []tag.Tag {
	return []tag.Tag{
		tag.PatientID,
		StudyInstanceUID,
		SeriesInstanceUID,
		SOPInstanceUID,
		tag.StudyDate,
		tag.Modality,
		ImageOrientationPatient,
		ImageType,
		InversionTime,
		EchoTime,
		EchoNumbers,
		EchoTrainLength,
		RepetitionTime,
		FlipAngle,
		ReceiveCoilName,
		KVP,
		XRayTubeCurrent,
		Exposure,
		PETSeriesType,
		PETImageIndex,
	}
}
