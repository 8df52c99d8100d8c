package anonymizer

import (
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"
)

func TestNameContainsUIDOrReferenceMatchesUID(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"StudyInstanceUID", true},
		{"FrameOfReferenceUID", true},
		{"ReferencedStudySequence", true},
		{"PatientName", false},
		{"ReferringPhysicianName", false},
	}
	for _, c := range cases {
		if got := nameContainsUIDOrReference(c.name); got != c.want {
			t.Errorf("nameContainsUIDOrReference(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestAlwaysKeepProtectsIdentityAndAddressingTags(t *testing.T) {
	if !alwaysKeep(tag.PatientID) {
		t.Error("PatientID must always be kept from the scrub list")
	}
	if !alwaysKeep(tag.StudyDate) {
		t.Error("StudyDate must always be kept from the scrub list")
	}
	if !alwaysKeep(studyInstanceUIDTag) {
		t.Error("StudyInstanceUID must always be kept from the scrub list")
	}
	if alwaysKeep(tag.PatientName) {
		t.Error("PatientName is not an always-kept tag")
	}
}

func TestDefaultScrubTagsExcludesAlwaysKeptTags(t *testing.T) {
	for _, st := range DefaultScrubTags() {
		if alwaysKeep(st.Tag) {
			t.Errorf("DefaultScrubTags must not list always-kept tag %s", st.Name)
		}
	}
}

func TestBuildExcludeTagsMatchesCaseInsensitively(t *testing.T) {
	excluded := BuildExcludeTags([]string{"patientname", "StudyTime"})
	if !excluded[tag.PatientName] {
		t.Error("expected PatientName to be excluded")
	}
	if !excluded[tag.StudyTime] {
		t.Error("expected StudyTime to be excluded")
	}
	if excluded[tag.PatientAddress] {
		t.Error("PatientAddress was not requested for exclusion")
	}
}

func TestBuildExcludeTagsIgnoresUnknownNames(t *testing.T) {
	excluded := BuildExcludeTags([]string{"NotARealTag"})
	if len(excluded) != 0 {
		t.Errorf("expected no matches, got %v", excluded)
	}
}

func TestBuildExcludeTagsReturnsNilForEmptyInput(t *testing.T) {
	if BuildExcludeTags(nil) != nil {
		t.Error("expected nil map for empty input")
	}
}
