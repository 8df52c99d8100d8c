package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SubjectFolder is one top-level directory under a cohort's anonymized tree,
// the unit the Extraction Engine schedules onto its subject worker pool.
type SubjectFolder struct {
	SubjectKey string
	Path       string
}

// DiscoverSubjects lists root's immediate subdirectories as SubjectFolders,
// sorted by name for deterministic scheduling order.
func DiscoverSubjects(root string) ([]SubjectFolder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("could not read cohort root %s: %w", root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	subjects := make([]SubjectFolder, 0, len(names))
	for _, name := range names {
		subjects = append(subjects, SubjectFolder{
			SubjectKey: name,
			Path:       filepath.Join(root, name),
		})
	}
	return subjects, nil
}
