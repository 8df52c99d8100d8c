package anonymizer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/NeuroGranberg/nils-core/internal/audit"
	"github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/idstrategy"
	"github.com/NeuroGranberg/nils-core/internal/model"
	"github.com/NeuroGranberg/nils-core/internal/traversal"
)

// groupIntoLeaves walks patientFolder for candidate files, reads each
// file's StudyInstanceUID with a minimal tag read, and groups them by
// StudyInstanceUID (§4.3 step 2). Files lacking a StudyInstanceUID are
// counted as skipped and never form a leaf of their own. The walk order
// (depth-first, lexicographic) makes leaf membership deterministic given
// identical inputs.
func groupIntoLeaves(patientFolder string) (leaves []model.Leaf, skipped int) {
	it := traversal.Walk(patientFolder, traversal.DepthFirst, traversal.Options{})
	defer it.Close()

	byUID := make(map[string][]string)
	var order []string

	for {
		path, ok := it.Next()
		if !ok {
			break
		}
		ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
		if err != nil {
			skipped++
			continue
		}
		uid := ds.GetStudyInstanceUID()
		if uid == "" {
			skipped++
			continue
		}
		if _, seen := byUID[uid]; !seen {
			order = append(order, uid)
		}
		byUID[uid] = append(byUID[uid], path)
	}

	for _, uid := range order {
		leaves = append(leaves, model.Leaf{
			StudyInstanceUID: uid,
			TopFolder:        patientFolder,
			Files:            byUID[uid],
		})
	}
	return leaves, skipped
}

// LeafOutcome totals one leaf's §4.3 step 4/5 processing for rollup into
// the caller's patient-level Stats.
type LeafOutcome struct {
	FilesTotal      int
	FilesWritten    int
	FilesReused     int
	FilesWithErrors int
	Errors          []error
}

// ProcessLeaf implements §4.3 steps 3-5 for one leaf: skip entirely if
// already audited, otherwise anonymize every file (§4.4) and persist one
// leaf_summary plus one study_audit_complete row in a single logical commit
// (audit.Ledger.FinalizeLeaf) — but only when at least one file in the leaf
// produced a non-errored result, per §4.3's failure semantics.
func ProcessLeaf(
	ctx context.Context,
	leaf model.Leaf,
	cohortName string,
	opts Options,
	strategy idstrategy.Strategy,
	firstDates map[string]time.Time,
	ledger *audit.Ledger,
) (LeafOutcome, error) {
	var outcome LeafOutcome
	outcome.FilesTotal = len(leaf.Files)

	done, err := ledger.Exists(ctx, leaf.StudyInstanceUID)
	if err != nil {
		return outcome, fmt.Errorf("could not check audit ledger: %w", err)
	}
	if done {
		outcome.FilesReused = outcome.FilesTotal
		return outcome, nil
	}

	var tags []model.AuditTagEntry
	var originalPID, newPID string
	anySuccess := false

	files := append([]string{}, leaf.Files...)
	sort.Strings(files)

	for _, path := range files {
		result := ProcessFile(path, opts, strategy, firstDates)
		if result.Error != nil {
			outcome.FilesWithErrors++
			outcome.Errors = append(outcome.Errors, fmt.Errorf("%s: %w", path, result.Error))
			continue
		}

		anySuccess = true
		if result.Written {
			outcome.FilesWritten++
		} else {
			outcome.FilesReused++
		}
		if originalPID == "" {
			originalPID = result.OldPID
		}
		newPID = result.NewPID
		tags = audit.MergeEvents(tags, result.Events)
	}

	if !anySuccess {
		return outcome, nil
	}

	relPath, err := filepath.Rel(opts.SourceRoot, leaf.TopFolder)
	if err != nil {
		relPath = leaf.TopFolder
	}
	summary := model.LeafSummary{
		StudyInstanceUID: leaf.StudyInstanceUID,
		CohortName:       cohortName,
		LeafRelPath:      relPath,
		FilesTotal:       outcome.FilesTotal,
		FilesWritten:     outcome.FilesWritten,
		FilesReused:      outcome.FilesReused,
		FilesWithErrors:  outcome.FilesWithErrors,
		OriginalPID:      originalPID,
		NewPID:           newPID,
		Tags:             tags,
	}
	if err := ledger.FinalizeLeaf(ctx, summary); err != nil {
		return outcome, fmt.Errorf("could not finalize leaf audit: %w", err)
	}
	return outcome, nil
}
