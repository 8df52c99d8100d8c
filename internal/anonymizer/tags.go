package anonymizer

import (
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// ScrubTag pairs a DICOM tag with the human-readable name recorded in its
// audit events (§4.4 step 4, §4.5's tag-code/tag-name pairing) and used by
// nameContainsUIDOrReference to apply the UID-name exclusion without
// depending on the underlying library's own tag dictionary.
type ScrubTag struct {
	Tag  tag.Tag
	Name string
}

// studyInstanceUIDTag is StudyInstanceUID (0020,000D), the same
// (group, element) pair as internal/dicom's StudyInstanceUID, spelled out
// directly following the teacher's convention.
var studyInstanceUIDTag = tag.Tag{Group: 0x0020, Element: 0x000D}

// DefaultScrubTags is the configured scrub list before exclude-list and
// per-file exemptions are applied (§4.4 step 4). Grounded on the teacher's
// PIITagsToClear/DateTagsToTruncate, flattened into one list since per-file
// anonymization no longer special-cases dates other than StudyDate, which
// is handled by the timepoint mapping step and is never a scrub-list member.
func DefaultScrubTags() []ScrubTag {
	return []ScrubTag{
		{tag.PatientName, "PatientName"},
		{tag.PatientBirthDate, "PatientBirthDate"},
		{tag.PatientAge, "PatientAge"},
		{tag.PatientAddress, "PatientAddress"},
		{tag.PatientTelephoneNumbers, "PatientTelephoneNumbers"},
		{tag.OtherPatientIDs, "OtherPatientIDs"},
		{tag.OtherPatientIDsSequence, "OtherPatientIDsSequence"},
		{tag.PatientBirthTime, "PatientBirthTime"},
		{tag.PatientMotherBirthName, "PatientMotherBirthName"},
		{tag.MilitaryRank, "MilitaryRank"},
		{tag.EthnicGroup, "EthnicGroup"},
		{tag.PatientReligiousPreference, "PatientReligiousPreference"},
		{tag.PatientComments, "PatientComments"},

		{tag.StudyTime, "StudyTime"},
		{tag.SeriesTime, "SeriesTime"},
		{tag.AcquisitionTime, "AcquisitionTime"},
		{tag.ContentTime, "ContentTime"},
		{tag.InstanceCreationTime, "InstanceCreationTime"},
		{tag.SeriesDate, "SeriesDate"},
		{tag.AcquisitionDate, "AcquisitionDate"},
		{tag.ContentDate, "ContentDate"},
		{tag.InstanceCreationDate, "InstanceCreationDate"},

		{tag.InstitutionAddress, "InstitutionAddress"},
		{tag.InstitutionalDepartmentName, "InstitutionalDepartmentName"},
		{tag.StationName, "StationName"},

		{tag.ReferringPhysicianName, "ReferringPhysicianName"},
		{tag.ReferringPhysicianAddress, "ReferringPhysicianAddress"},
		{tag.ReferringPhysicianTelephoneNumbers, "ReferringPhysicianTelephoneNumbers"},
		{tag.PerformingPhysicianName, "PerformingPhysicianName"},
		{tag.OperatorsName, "OperatorsName"},
		{tag.PhysiciansOfRecord, "PhysiciansOfRecord"},
		{tag.NameOfPhysiciansReadingStudy, "NameOfPhysiciansReadingStudy"},
		{tag.RequestingPhysician, "RequestingPhysician"},
		{tag.ScheduledPerformingPhysicianName, "ScheduledPerformingPhysicianName"},

		{tag.AccessionNumber, "AccessionNumber"},
		{tag.RequestAttributesSequence, "RequestAttributesSequence"},
		{tag.PerformedProcedureStepID, "PerformedProcedureStepID"},
		{tag.ScheduledProcedureStepID, "ScheduledProcedureStepID"},
		{tag.StudyID, "StudyID"},
	}
}

// BuildExcludeTags resolves a config's exclude_tags names (case-insensitive)
// against DefaultScrubTags' name table into the tag.Tag set ProcessFile
// checks via Options.isExcluded. Names matching nothing are ignored:
// there is no independent tag-by-name registry to validate against locally
// (suyashkumar/dicom exposes no such lookup), so the scrub list itself is
// the only name table available.
func BuildExcludeTags(names []string) map[tag.Tag]bool {
	if len(names) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}

	out := make(map[tag.Tag]bool)
	for _, st := range DefaultScrubTags() {
		if wanted[strings.ToLower(st.Name)] {
			out[st.Tag] = true
		}
	}
	return out
}

// alwaysKeep are tags §4.4 step 4 excludes from scrubbing regardless of
// configuration: PatientID and StudyDate are rewritten by their own steps,
// StudyInstanceUID addresses the leaf itself.
func alwaysKeep(t tag.Tag) bool {
	return t == tag.PatientID || t == tag.StudyDate || t == studyInstanceUIDTag
}

// nameContainsUIDOrReference mirrors original_source's
// _name_contains_uid_or_reference: a tag is left alone if its name contains
// "uid", or contains both "referenc" and "sequence", catching attributes
// like ReferencedStudySequence whose VR an encoder may not always carry as
// literally "UI".
func nameContainsUIDOrReference(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "uid") {
		return true
	}
	return strings.Contains(lower, "referenc") && strings.Contains(lower, "sequence")
}
