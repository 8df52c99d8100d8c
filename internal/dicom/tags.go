package dicom

import "github.com/suyashkumar/dicom/pkg/tag"

// Tags used for UID/hierarchy addressing and stack-signature computation
// (§4.8/§4.9). Raw (group, element) literals are used instead of named
// tag-package constants for attributes the teacher's code never referenced,
// to avoid depending on symbol names we have not directly observed in use;
// the group/element pairs themselves are the fixed DICOM Part 6 dictionary
// codes.
var (
	StudyInstanceUID  = tag.Tag{Group: 0x0020, Element: 0x000D}
	SeriesInstanceUID = tag.Tag{Group: 0x0020, Element: 0x000E}
	SOPInstanceUID    = tag.Tag{Group: 0x0008, Element: 0x0018}

	ImageOrientationPatient = tag.Tag{Group: 0x0020, Element: 0x0037}
	ImageType               = tag.Tag{Group: 0x0008, Element: 0x0008}

	// MR stack-defining parameters
	InversionTime   = tag.Tag{Group: 0x0018, Element: 0x0082}
	EchoTime        = tag.Tag{Group: 0x0018, Element: 0x0081}
	EchoNumbers     = tag.Tag{Group: 0x0018, Element: 0x0086}
	EchoTrainLength = tag.Tag{Group: 0x0018, Element: 0x0091}
	RepetitionTime  = tag.Tag{Group: 0x0018, Element: 0x0080}
	FlipAngle       = tag.Tag{Group: 0x0018, Element: 0x1314}
	ReceiveCoilName = tag.Tag{Group: 0x0018, Element: 0x1250}

	// CT stack-defining parameters
	KVP          = tag.Tag{Group: 0x0018, Element: 0x0060}
	XRayTubeCurrent = tag.Tag{Group: 0x0018, Element: 0x1151}
	Exposure     = tag.Tag{Group: 0x0018, Element: 0x1152}

	// PET stack-defining parameters. "bed index" and "frame type" are
	// approximated from the PET Series/Image modules' Series Type and
	// Image Index attributes (no single standard attribute is named
	// literally "bed index" or "frame type").
	PETSeriesType = tag.Tag{Group: 0x0054, Element: 0x1000}
	PETImageIndex = tag.Tag{Group: 0x0054, Element: 0x1330}
)
