// Package model holds the domain types shared by the anonymization and
// extraction subsystems: the on-disk leaf unit, the DICOM hierarchy
// (subject/study/series/instance/stack), and the audit event shape.
package model

import "time"

// DerivativesStatus reports the state of a cohort's output tree before a
// run starts.
type DerivativesStatus string

const (
	StatusFresh               DerivativesStatus = "fresh"
	StatusRawExistsEmpty      DerivativesStatus = "raw_exists_empty"
	StatusRawExistsWithContent DerivativesStatus = "raw_exists_with_content"
)

// DerivativesLayout is the result of preparing a cohort root.
type DerivativesLayout struct {
	SourcePath string
	OutputPath string
	Status     DerivativesStatus
}

// AuditAction classifies what happened to a tag during anonymization.
type AuditAction string

const (
	ActionReplaced AuditAction = "replaced"
	ActionAdded    AuditAction = "added"
	ActionRemoved  AuditAction = "removed"
	ActionRetained AuditAction = "retained"
)

// TagKey addresses a DICOM tag by (group, element).
type TagKey struct {
	Group   uint16
	Element uint16
}

// AuditEvent is one scrubbed/rewritten tag for one file during one
// anonymization pass.
type AuditEvent struct {
	RelPath  string
	StudyUID string
	Tag      TagKey
	TagName  string
	Action   AuditAction
	OldValue string
	NewValue string
}

// AuditTagEntry is the deduplicated, per-study view of a tag's audit
// history: the first observed old_value and the latest new_value.
// Conflicted is set when more than one distinct new_value was observed
// for this tag within the leaf (see SPEC_FULL.md §D.3).
type AuditTagEntry struct {
	Tag         TagKey
	TagName     string
	Action      AuditAction
	OldValue    string
	NewValue    string
	Conflicted  bool
}

// LeafSummary is the per-leaf audit aggregate persisted at most once.
type LeafSummary struct {
	StudyInstanceUID string
	CohortName       string
	LeafRelPath      string
	FilesTotal       int
	FilesWritten     int
	FilesReused      int
	FilesWithErrors  int
	OriginalPID      string
	NewPID           string
	Tags             []AuditTagEntry
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Leaf is all files sharing one StudyInstanceUID under one top-level
// patient folder — the unit of audit atomicity (§3).
type Leaf struct {
	StudyInstanceUID string
	TopFolder        string
	Files            []string
}

// FileResult is the outcome of anonymizing a single file.
type FileResult struct {
	Path     string
	Written  bool // false => reused (target already existed)
	Error    error
	Events   []AuditEvent
	OldPID   string
	NewPID   string
}

// Subject/Study/Series/Instance mirror the metadata DB's natural-key
// hierarchy (§6).
type Subject struct {
	ID             int64
	SubjectCode    string
	CodeSource     string // csv | hash | study_hash
	OriginalPID    string
}

type Study struct {
	ID               int64
	StudyInstanceUID string
	SubjectID        int64
	Fields           map[string]any
}

type Series struct {
	ID               int64
	SeriesInstanceUID string
	StudyID           int64
	Modality          string
	Fields            map[string]any
}

type Instance struct {
	ID              int64
	SOPInstanceUID  string
	SeriesID        int64
	SeriesStackID   *int64
	RelPath         string
	Fields          map[string]any
}

// OrientationCategory is one of the three canonical slice orientations.
type OrientationCategory string

const (
	OrientationAxial    OrientationCategory = "Axial"
	OrientationCoronal  OrientationCategory = "Coronal"
	OrientationSagittal OrientationCategory = "Sagittal"
)

// StackKey names why a series was split into more than one stack.
type StackKey string

const (
	StackKeyNone              StackKey = ""
	StackKeyMultiEcho         StackKey = "multi_echo"
	StackKeyMultiTI           StackKey = "multi_ti"
	StackKeyMultiOrientation  StackKey = "multi_orientation"
	StackKeyImageTypeVariation StackKey = "image_type_variation"
)

// StackSignature is the ordered tuple of rounded numeric and categorical
// parameters that defines stack identity (§4.9). Fields are exported in a
// fixed order so compute/reconstruct are byte-for-byte comparable.
type StackSignature struct {
	EchoTime          *float64 // rounded to 1 decimal
	InversionTime     *float64 // rounded to 1 decimal
	EchoNumbers       string
	EchoTrainLength   *int
	RepetitionTime    *float64 // rounded to 1 decimal
	FlipAngle         *float64 // rounded to 1 decimal
	ReceiveCoilName   string
	Orientation       OrientationCategory
	ImageType         string
	KVP               *int // rounded to integer
	TubeCurrent       *float64
	XrayExposure      *float64
	PETBedIndex       *int
	PETFrameType      string
}

// SeriesStack is a homogeneous slice group within a Series.
type SeriesStack struct {
	ID                  int64
	SeriesID            int64
	StackIndex          int
	StackKey            StackKey
	Signature           StackSignature
	OrientationConfidence float64
	StackNInstances     int
}

// DuplicatePolicy governs what happens when an Instance insert collides on
// sop_instance_uid (§4.8 step 3d, §7).
type DuplicatePolicy string

const (
	DuplicateSkip      DuplicatePolicy = "skip"
	DuplicateOverwrite DuplicatePolicy = "overwrite"
	DuplicateAbort     DuplicatePolicy = "abort"
)

// InstancePayload is what an extraction worker emits for one file (§4.7).
type InstancePayload struct {
	SubjectKey        string // original PatientID, pre-resolution
	SubjectCode       string
	CodeSource        string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	Modality          string
	StudyFields       map[string]any
	SeriesFields      map[string]any
	InstanceFields    map[string]any
	MRFields          map[string]any
	CTFields          map[string]any
	PETFields         map[string]any
	OriginalPID       string
	OriginalName      string
	RelPath           string
}
