package anonymizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"

	dcm "github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/idstrategy"
	"github.com/NeuroGranberg/nils-core/internal/model"
)

// Options configures per-file anonymization (§4.4) and the engine that
// drives it (§4.3).
type Options struct {
	SourceRoot string
	OutputRoot string

	AnonymizePatientID   bool
	MapTimepoints        bool
	RenamePatientFolders  bool
	PreserveUIDs         bool

	ScrubTags   []ScrubTag
	ExcludeTags map[tag.Tag]bool
}

func (o Options) isExcluded(t tag.Tag) bool {
	return o.ExcludeTags != nil && o.ExcludeTags[t]
}

// auditValueMaxLength caps an audit event's old/new value length before
// export (§3).
const auditValueMaxLength = 512

// safeAuditValue flattens embedded line breaks to " | " and caps the
// result to auditValueMaxLength, so a tag value can't corrupt the CSV
// export's row structure or blow out a column. Grounded on
// original_source's _safe_value_preview, minus its bytes/None branches —
// DICOM string values here are already plain Go strings.
func safeAuditValue(value string) string {
	if value == "" {
		return ""
	}
	normalized := strings.ReplaceAll(strings.ReplaceAll(value, "\r\n", "\n"), "\r", "\n")
	flattened := strings.TrimSpace(strings.Join(strings.Split(normalized, "\n"), " | "))
	if len(flattened) <= auditValueMaxLength {
		return flattened
	}
	return flattened[:auditValueMaxLength-3] + "..."
}

// ProcessFile implements §4.4 end to end: read, PatientID replacement,
// timepoint mapping, scrubbing, target-path resolution, and the atomic
// write. firstDates maps an original PatientID to its earliest observed
// StudyDate, used only when MapTimepoints is enabled. Grounded on
// original_source's _process_single_file/_scrub_dataset/_target_path/
// _save_dataset.
func ProcessFile(path string, opts Options, strategy idstrategy.Strategy, firstDates map[string]time.Time) model.FileResult {
	result := model.FileResult{Path: path}

	ds, err := dcm.ReadDicom(path)
	if err != nil {
		result.Error = fmt.Errorf("could not read DICOM file: %w", err)
		return result
	}

	relPath, err := filepath.Rel(opts.SourceRoot, path)
	if err != nil {
		relPath = filepath.Base(path)
	}
	relParts := strings.Split(filepath.ToSlash(relPath), "/")

	studyUID := ds.GetStudyInstanceUID()
	originalPID := ds.GetPatientID()
	originalDate := ds.GetStudyDate()

	newPID := originalPID
	result.OldPID = originalPID
	result.NewPID = originalPID

	if opts.AnonymizePatientID && originalPID != "" {
		mapped := strategy.Map(originalPID, relPath)
		if mapped != "" && mapped != originalPID {
			if err := ds.SetString(tag.PatientID, mapped); err == nil {
				newPID = mapped
				result.NewPID = mapped
				result.Events = append(result.Events, model.AuditEvent{
					RelPath:  relPath,
					StudyUID: studyUID,
					Tag:      model.TagKey{Group: tag.PatientID.Group, Element: tag.PatientID.Element},
					TagName:  "PatientID",
					Action:   model.ActionReplaced,
					OldValue: safeAuditValue(originalPID),
					NewValue: safeAuditValue(mapped),
				})
			}
		}
	}

	dateLogged := false
	if opts.MapTimepoints && originalPID != "" && originalDate != "" {
		if studyDate, err := time.Parse("20060102", originalDate); err == nil {
			if firstDate, ok := firstDates[originalPID]; ok {
				label := ComputeTimepoint(firstDate, studyDate)
				if label != "" {
					if err := ds.SetString(tag.StudyDate, label); err == nil {
						action := model.ActionReplaced
						if originalDate == "" {
							action = model.ActionAdded
						}
						dateLogged = true
						result.Events = append(result.Events, model.AuditEvent{
							RelPath:  relPath,
							StudyUID: studyUID,
							Tag:      model.TagKey{Group: tag.StudyDate.Group, Element: tag.StudyDate.Element},
							TagName:  "StudyDate",
							Action:   action,
							OldValue: safeAuditValue(originalDate),
							NewValue: safeAuditValue(label),
						})
					}
				}
			}
		}
	}
	if !dateLogged && originalDate != "" {
		result.Events = append(result.Events, model.AuditEvent{
			RelPath:  relPath,
			StudyUID: studyUID,
			Tag:      model.TagKey{Group: tag.StudyDate.Group, Element: tag.StudyDate.Element},
			TagName:  "StudyDate",
			Action:   model.ActionRetained,
			OldValue: safeAuditValue(originalDate),
		})
	}

	scrubTags := opts.ScrubTags
	if scrubTags == nil {
		scrubTags = DefaultScrubTags()
	}
	for _, st := range scrubTags {
		if opts.isExcluded(st.Tag) || alwaysKeep(st.Tag) {
			continue
		}
		if !ds.HasTag(st.Tag) {
			continue
		}
		if ds.VRForTag(st.Tag) == "UI" || nameContainsUIDOrReference(st.Name) {
			continue
		}
		oldValue := ds.GetString(st.Tag)
		ds.ClearTag(st.Tag)
		result.Events = append(result.Events, model.AuditEvent{
			RelPath:  relPath,
			StudyUID: studyUID,
			Tag:      model.TagKey{Group: st.Tag.Group, Element: st.Tag.Element},
			TagName:  st.Name,
			Action:   model.ActionRemoved,
			OldValue: safeAuditValue(oldValue),
		})
	}

	target := filepath.Join(opts.OutputRoot, relPath)
	var renamedTarget string
	if opts.RenamePatientFolders && len(relParts) > 0 && newPID != "" && newPID != relParts[0] {
		mappedParts := append([]string{newPID}, relParts[1:]...)
		renamedTarget = filepath.Join(opts.OutputRoot, filepath.Join(mappedParts...))
	}

	if pathExists(target) || (renamedTarget != "" && pathExists(renamedTarget)) {
		result.Written = false
		return result
	}

	writeTarget := target
	if renamedTarget != "" {
		writeTarget = renamedTarget
	}
	if err := ds.SaveWithOptions(writeTarget, dcm.SaveOptions{PreserveUIDs: opts.PreserveUIDs}); err != nil {
		result.Error = fmt.Errorf("could not save anonymized file: %w", err)
		return result
	}

	result.Written = true
	return result
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
