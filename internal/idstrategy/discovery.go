package idstrategy

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/traversal"
)

// Discovery selects how the sequential strategy enumerates original
// PatientIDs before assigning sequential indices (§4.2).
type Discovery int

const (
	// PerTopFolder reads one candidate file per top-level folder.
	PerTopFolder Discovery = iota
	// OnePerStudy reads one PatientID per distinct StudyInstanceUID.
	OnePerStudy
	// All takes the deduplicated union of every PatientID observed,
	// sorted lexicographically.
	All
)

// DiscoverPIDs enumerates original PatientIDs under sourceRoot per mode,
// in the stable order §4.2 requires for sequential-index assignment.
// Grounded on original_source's _discover_pids_by_top_folder/
// _discover_pids_one_per_study/_discover_pids_all.
func DiscoverPIDs(sourceRoot string, mode Discovery) ([]string, error) {
	switch mode {
	case OnePerStudy:
		return discoverOnePerStudy(sourceRoot)
	case All:
		return discoverAll(sourceRoot)
	default:
		return discoverPerTopFolder(sourceRoot)
	}
}

// discoverPerTopFolder reads the first candidate file found (depth-first,
// lexicographic) in each top-level folder and takes its PatientID, folders
// sorted lexicographically (§4.2 "per_top_folder").
func discoverPerTopFolder(sourceRoot string) ([]string, error) {
	entries, err := os.ReadDir(sourceRoot)
	if err != nil {
		return nil, err
	}
	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)

	var discovered []string
	for _, name := range folders {
		folder := filepath.Join(sourceRoot, name)
		it := traversal.Walk(folder, traversal.DepthFirst, traversal.Options{})
		for {
			path, ok := it.Next()
			if !ok {
				break
			}
			ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
			if err != nil {
				continue
			}
			if pid := ds.GetPatientID(); pid != "" {
				discovered = append(discovered, pid)
				break
			}
		}
		it.Close()
	}
	return Dedupe(discovered), nil
}

// discoverOnePerStudy walks sourceRoot fully, reading one PatientID per
// first-seen distinct StudyInstanceUID (§4.2 "one_per_study").
func discoverOnePerStudy(sourceRoot string) ([]string, error) {
	it := traversal.Walk(sourceRoot, traversal.DepthFirst, traversal.Options{})
	defer it.Close()

	seenUIDs := make(map[string]bool)
	var discovered []string

	for {
		path, ok := it.Next()
		if !ok {
			break
		}
		ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
		if err != nil {
			continue
		}
		uid := ds.GetStudyInstanceUID()
		pid := ds.GetPatientID()
		if uid == "" || pid == "" || seenUIDs[uid] {
			continue
		}
		seenUIDs[uid] = true
		discovered = append(discovered, pid)
	}
	return discovered, it.Err()
}

// discoverAll walks sourceRoot fully and returns the sorted, deduplicated
// union of every PatientID observed (§4.2 "all").
func discoverAll(sourceRoot string) ([]string, error) {
	it := traversal.Walk(sourceRoot, traversal.Streaming, traversal.Options{})
	defer it.Close()

	observed := make(map[string]bool)
	for {
		path, ok := it.Next()
		if !ok {
			break
		}
		ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
		if err != nil {
			continue
		}
		if pid := ds.GetPatientID(); pid != "" {
			observed[pid] = true
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(observed))
	for pid := range observed {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out, nil
}
