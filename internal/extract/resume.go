package extract

import "strings"

// ExistingPathIndex is the resumeByPath side-table: for each subject key,
// the set of relative paths already known to a prior extraction pass (§4.7
// step 1). A subject with no entry has an empty filter — nothing is
// considered "known".
type ExistingPathIndex struct {
	bySubject map[string]map[string]bool
}

// NewExistingPathIndex returns an empty index.
func NewExistingPathIndex() *ExistingPathIndex {
	return &ExistingPathIndex{bySubject: make(map[string]map[string]bool)}
}

// Add records relPath as already-extracted for subjectKey.
func (idx *ExistingPathIndex) Add(subjectKey, relPath string) {
	set, ok := idx.bySubject[subjectKey]
	if !ok {
		set = make(map[string]bool)
		idx.bySubject[subjectKey] = set
	}
	set[relPath] = true
}

// EntryFor returns the known-path filter for subjectKey, or nil if none was
// ever recorded. The returned map must not be mutated by callers.
func (idx *ExistingPathIndex) EntryFor(subjectKey string) map[string]bool {
	return idx.bySubject[subjectKey]
}

// SeriesResumeTokens maps a series_instance_uid to the last SOP Instance UID
// successfully written for it in a prior pass. Any file whose SOP UID sorts
// lexicographically at or below the token is dropped (§4.7 step 1): the
// underlying UIDs are numeric dotted strings, but the writer persists and
// compares them as the plain strings the database already stores.
type SeriesResumeTokens map[string]string

// ExtractedRecord is one previously-persisted Instance, the shape a caller
// reads back out of the metadata database to rebuild resume state ahead of a
// new run (§4.7 step 1). RelPath is the full path stored in instance.rel_path
// (worker.go's `filepath.Join(subject.SubjectKey, rel)`), i.e. it still
// carries the subject folder as its first segment.
type ExtractedRecord struct {
	SeriesInstanceUID string
	SOPInstanceUID    string
	RelPath           string
}

// BuildResumeState folds previously-extracted records into a ResumeState:
// PathIndex records every known relative path per subject (the part of
// RelPath below the subject folder, matching what plan.go checks pathFilter
// against), and SeriesTokens tracks, per subject and series, the
// lexicographically greatest SOP Instance UID already written, so plan.go's
// sorted walk can drop everything at or below it (§4.7 step 1).
func BuildResumeState(records []ExtractedRecord) ResumeState {
	state := ResumeState{
		SeriesTokens: make(map[string]SeriesResumeTokens),
		PathIndex:    NewExistingPathIndex(),
	}
	for _, r := range records {
		subjectKey, rel := splitSubjectRelPath(r.RelPath)
		if subjectKey == "" {
			continue
		}
		state.PathIndex.Add(subjectKey, rel)

		tokens, ok := state.SeriesTokens[subjectKey]
		if !ok {
			tokens = make(SeriesResumeTokens)
			state.SeriesTokens[subjectKey] = tokens
		}
		if current, ok := tokens[r.SeriesInstanceUID]; !ok || r.SOPInstanceUID > current {
			tokens[r.SeriesInstanceUID] = r.SOPInstanceUID
		}
	}
	return state
}

// splitSubjectRelPath peels the leading subject-folder segment off a stored
// instance.rel_path, returning it alongside the remaining path plan.go's
// pathFilter keys by. Paths are normalized to forward slashes first since
// filepath.Join produces the OS separator but the database stores a plain
// string.
func splitSubjectRelPath(relPath string) (subjectKey, rest string) {
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	parts := strings.SplitN(normalized, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
