package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

var trackedValueTags = map[model.TagKey]bool{
	{Group: 0x0010, Element: 0x0020}: true, // PatientID
	{Group: 0x0008, Element: 0x0020}: true, // StudyDate
}

var nonAlnumRun = regexp.MustCompile(`[^0-9A-Za-z]+`)

func sanitizeLabel(text string) string {
	cleaned := strings.Trim(nonAlnumRun.ReplaceAllString(text, "_"), "_")
	if cleaned == "" {
		return "Tag"
	}
	return cleaned
}

func tagCode(t model.TagKey) string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

func tagColumnPrefix(t model.TagKey, tagName string) string {
	return fmt.Sprintf("%s_%s", sanitizeLabel(tagName), sanitizeLabel(tagCode(t)))
}

// parentFolders splits a leaf's relative path into (ParentFolder,
// SubFolder): the first and second path segments.
func parentFolders(relPath string) (parent, sub string) {
	var parts []string
	for _, p := range strings.Split(relPath, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) >= 1 {
		parent = parts[0]
	}
	if len(parts) >= 2 {
		sub = parts[1]
	}
	return
}

// ExportCSV writes the cohort-wide audit export (§6): one row per study,
// static columns first (study_uid, rel_path, DataFolder, ParentFolder,
// SubFolder), then one column per distinct (tag_code, tag_name) observed —
// tracked value tags (PatientID, StudyDate) get _old_value/_new_value
// pairs, all others a single column — sorted by tag code, with empty
// columns dropped.
func ExportCSV(w io.Writer, records []LeafRecord, dataFolder string) error {
	type tagID struct {
		code model.TagKey
		name string
	}
	seen := make(map[model.TagKey]string)
	for _, rec := range records {
		for _, tag := range rec.Tags {
			if _, ok := seen[tag.Tag]; !ok {
				seen[tag.Tag] = tag.TagName
			}
		}
	}
	var orderedTags []tagID
	for code, name := range seen {
		orderedTags = append(orderedTags, tagID{code: code, name: name})
	}
	sort.Slice(orderedTags, func(i, j int) bool {
		ci, cj := tagCode(orderedTags[i].code), tagCode(orderedTags[j].code)
		if ci != cj {
			return ci < cj
		}
		return sanitizeLabel(orderedTags[i].name) < sanitizeLabel(orderedTags[j].name)
	})

	staticColumns := []string{"study_uid", "rel_path", "DataFolder", "ParentFolder", "SubFolder"}
	var dynamicColumns []string
	tagColumns := make(map[model.TagKey][]string, len(orderedTags))
	for _, t := range orderedTags {
		prefix := tagColumnPrefix(t.code, t.name)
		var cols []string
		if trackedValueTags[t.code] {
			cols = []string{prefix + "_old_value", prefix + "_new_value"}
		} else {
			cols = []string{prefix}
		}
		tagColumns[t.code] = cols
		dynamicColumns = append(dynamicColumns, cols...)
	}
	columnOrder := append(append([]string{}, staticColumns...), dynamicColumns...)

	sortedRecords := append([]LeafRecord{}, records...)
	sort.Slice(sortedRecords, func(i, j int) bool {
		return sortedRecords[i].StudyInstanceUID < sortedRecords[j].StudyInstanceUID
	})

	rows := make([]map[string]string, 0, len(sortedRecords))
	for _, rec := range sortedRecords {
		parent, sub := parentFolders(rec.LeafRelPath)
		row := make(map[string]string, len(columnOrder))
		row["study_uid"] = rec.StudyInstanceUID
		row["rel_path"] = rec.LeafRelPath
		row["DataFolder"] = dataFolder
		row["ParentFolder"] = parent
		row["SubFolder"] = sub

		byTag := make(map[model.TagKey]model.AuditTagEntry, len(rec.Tags))
		for _, t := range rec.Tags {
			byTag[t.Tag] = t
		}
		for _, t := range orderedTags {
			entry, ok := byTag[t.code]
			if !ok {
				continue
			}
			cols := tagColumns[t.code]
			if trackedValueTags[t.code] {
				row[cols[0]] = entry.OldValue
				row[cols[1]] = entry.NewValue
			} else {
				value := entry.OldValue
				if value == "" {
					value = entry.NewValue
				}
				row[cols[0]] = value
			}
		}
		rows = append(rows, row)
	}

	nonEmpty := make(map[string]bool, len(staticColumns))
	for _, c := range staticColumns {
		nonEmpty[c] = true
	}
	for _, row := range rows {
		for _, c := range dynamicColumns {
			if strings.TrimSpace(row[c]) != "" {
				nonEmpty[c] = true
			}
		}
	}

	var selected []string
	for _, c := range columnOrder {
		if nonEmpty[c] {
			selected = append(selected, c)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(selected); err != nil {
		return fmt.Errorf("could not write CSV header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(selected))
		for i, c := range selected {
			record[i] = row[c]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("could not write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
