// Package audit implements the Audit Ledger: per-study at-most-once audit
// persistence in the application database, the tag-level dedup rule that
// feeds it, and cohort-wide audit export.
package audit

import "github.com/NeuroGranberg/nils-core/internal/model"

// MergeEvents folds a file's audit events into a leaf's running per-tag
// entries (§4.5): entries are deduplicated by tag code, the first observed
// old_value is retained, and each subsequent new_value overwrites — unless
// a later event disagrees with an already-recorded new_value, in which case
// the entry is marked Conflicted rather than silently discarding the
// disagreement (see DESIGN.md's open-question decision on this point).
func MergeEvents(entries []model.AuditTagEntry, events []model.AuditEvent) []model.AuditTagEntry {
	index := make(map[model.TagKey]int, len(entries))
	for i, e := range entries {
		index[e.Tag] = i
	}

	for _, ev := range events {
		if i, ok := index[ev.Tag]; ok {
			existing := &entries[i]
			if existing.NewValue != ev.NewValue && ev.NewValue != "" {
				existing.Conflicted = true
			}
			existing.NewValue = ev.NewValue
			existing.Action = ev.Action
			continue
		}
		entries = append(entries, model.AuditTagEntry{
			Tag:      ev.Tag,
			TagName:  ev.TagName,
			Action:   ev.Action,
			OldValue: ev.OldValue,
			NewValue: ev.NewValue,
		})
		index[ev.Tag] = len(entries) - 1
	}

	return entries
}
