package audit

import (
	"testing"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

func TestMergeEventsKeepsFirstOldValue(t *testing.T) {
	tag := model.TagKey{Group: 0x0010, Element: 0x0020}
	entries := MergeEvents(nil, []model.AuditEvent{
		{Tag: tag, TagName: "PatientID", Action: model.ActionReplaced, OldValue: "ORIG1", NewValue: "SUBJ0001"},
	})
	entries = MergeEvents(entries, []model.AuditEvent{
		{Tag: tag, TagName: "PatientID", Action: model.ActionReplaced, OldValue: "ORIG2", NewValue: "SUBJ0001"},
	})

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].OldValue != "ORIG1" {
		t.Errorf("OldValue = %q, want ORIG1 (first observed)", entries[0].OldValue)
	}
	if entries[0].NewValue != "SUBJ0001" {
		t.Errorf("NewValue = %q, want SUBJ0001", entries[0].NewValue)
	}
	if entries[0].Conflicted {
		t.Errorf("identical new_values should not be flagged conflicted")
	}
}

func TestMergeEventsFlagsConflictingNewValue(t *testing.T) {
	tag := model.TagKey{Group: 0x0008, Element: 0x0020}
	entries := MergeEvents(nil, []model.AuditEvent{
		{Tag: tag, TagName: "StudyDate", Action: model.ActionReplaced, OldValue: "20240101", NewValue: "M00"},
	})
	entries = MergeEvents(entries, []model.AuditEvent{
		{Tag: tag, TagName: "StudyDate", Action: model.ActionReplaced, OldValue: "20240101", NewValue: "M06"},
	})

	if !entries[0].Conflicted {
		t.Errorf("distinct new_values for the same tag must be flagged conflicted")
	}
	if entries[0].NewValue != "M06" {
		t.Errorf("NewValue should still be overwritten to the latest observation, got %q", entries[0].NewValue)
	}
}
