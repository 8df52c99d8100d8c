package extract

import (
	"path/filepath"
	"sort"

	"github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/traversal"
)

// SeriesPlan is one series' candidate file list after resume-token and
// known-path filtering (§4.7 step 1), sorted for deterministic reader
// assignment.
type SeriesPlan struct {
	SeriesUID string
	Paths     []string
}

// PlanSubjectSeries walks subject's directory tree, groups candidate files
// by SeriesInstanceUID, and drops files per the two resume mechanisms:
// resumeTokens (last written SOP UID per series — any file whose SOP UID
// sorts at or below the token is dropped) and pathFilter (relative paths
// already known from a prior resumeByPath pass).
func PlanSubjectSeries(subject SubjectFolder, resumeTokens SeriesResumeTokens, pathFilter map[string]bool) ([]SeriesPlan, error) {
	it := traversal.Walk(subject.Path, traversal.DepthFirst, traversal.Options{})
	defer it.Close()

	type candidate struct {
		path      string
		relPath   string
		seriesUID string
		sopUID    string
	}
	var candidates []candidate

	for {
		path, ok := it.Next()
		if !ok {
			break
		}
		rel, err := filepath.Rel(subject.Path, path)
		if err != nil {
			rel = path
		}
		if pathFilter != nil && pathFilter[rel] {
			continue
		}

		ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
		if err != nil {
			// Unreadable files are skipped rather than failing the whole
			// subject; they surface nowhere because no payload is emitted.
			continue
		}
		seriesUID := ds.GetSeriesInstanceUID()
		sopUID := ds.GetSOPInstanceUID()

		if token, ok := resumeTokens[seriesUID]; ok && sopUID <= token {
			continue
		}

		candidates = append(candidates, candidate{path: path, relPath: rel, seriesUID: seriesUID, sopUID: sopUID})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	bySeries := make(map[string][]candidate)
	var order []string
	for _, c := range candidates {
		if _, ok := bySeries[c.seriesUID]; !ok {
			order = append(order, c.seriesUID)
		}
		bySeries[c.seriesUID] = append(bySeries[c.seriesUID], c)
	}
	sort.Strings(order)

	plans := make([]SeriesPlan, 0, len(order))
	for _, seriesUID := range order {
		cs := bySeries[seriesUID]
		sort.Slice(cs, func(i, j int) bool { return cs[i].path < cs[j].path })
		paths := make([]string, len(cs))
		for i, c := range cs {
			paths[i] = c.path
		}
		plans = append(plans, SeriesPlan{SeriesUID: seriesUID, Paths: paths})
	}
	return plans, nil
}
