package metadatadb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NeuroGranberg/nils-core/internal/stack"
)

// InstanceFieldRow pairs an instance_id with the stack-defining fields read
// back from instance.fields, the input Stack Discovery's signature pass
// needs to build a stack.InstanceSignature (§4.9 step 1).
type InstanceFieldRow struct {
	InstanceID int64
	Fields     stack.InstanceFields
}

// SeriesPendingStackDiscovery returns the IDs of every Series with at least
// one Instance whose series_stack_id is still unset. Re-running Stack
// Discovery after further extraction naturally regroups only the Series
// that gained new, as-yet-unassigned instances.
func (db *DB) SeriesPendingStackDiscovery(ctx context.Context) ([]int64, error) {
	rows, err := db.q.Query(ctx, `
SELECT DISTINCT series_id FROM instance WHERE series_stack_id IS NULL ORDER BY series_id`)
	if err != nil {
		return nil, fmt.Errorf("could not list series pending stack discovery: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("could not scan series id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not list series pending stack discovery: %w", err)
	}
	return ids, nil
}

// InstanceFieldsForSeries reads every Instance belonging to seriesID and
// decodes its stored fields into the shape Stack Discovery's signature
// computation consumes (§4.9 step 1). Only instances with a series_stack_id
// still unset are returned, matching SeriesPendingStackDiscovery's
// selection so a rerun never reassigns an already-grouped instance.
func (db *DB) InstanceFieldsForSeries(ctx context.Context, seriesID int64) ([]InstanceFieldRow, error) {
	rows, err := db.q.Query(ctx, `
SELECT instance_id, fields FROM instance
WHERE series_id = $1 AND series_stack_id IS NULL
ORDER BY instance_id`, seriesID)
	if err != nil {
		return nil, fmt.Errorf("could not read instance fields for series %d: %w", seriesID, err)
	}
	defer rows.Close()

	var out []InstanceFieldRow
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("could not scan instance fields: %w", err)
		}
		fields, err := decodeInstanceFields(raw)
		if err != nil {
			return nil, fmt.Errorf("could not decode instance %d fields: %w", id, err)
		}
		out = append(out, InstanceFieldRow{InstanceID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read instance fields for series %d: %w", seriesID, err)
	}
	return out, nil
}

// decodeInstanceFields maps instance.fields' open-ended JSONB bag onto
// stack.InstanceFields' named fields, tolerating missing or mistyped keys
// exactly as DICOM tags absent from a given modality are tolerated (§4.9
// step 1, "absent fields are left nil/empty").
func decodeInstanceFields(raw []byte) (stack.InstanceFields, error) {
	var m map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return stack.InstanceFields{}, err
		}
	}

	f := stack.InstanceFields{
		ReceiveCoilName:  stringField(m, "ReceiveCoilName"),
		EchoNumbers:      stringField(m, "EchoNumbers"),
		ImageOrientation: stringField(m, "ImageOrientationPatient"),
		ImageType:        stringField(m, "ImageType"),
		PETFrameType:     stringField(m, "PETFrameType"),
	}
	f.EchoTime = floatField(m, "EchoTime")
	f.InversionTime = floatField(m, "InversionTime")
	f.RepetitionTime = floatField(m, "RepetitionTime")
	f.FlipAngle = floatField(m, "FlipAngle")
	f.KVP = floatField(m, "KVP")
	f.TubeCurrent = floatField(m, "TubeCurrent")
	f.XrayExposure = floatField(m, "XrayExposure")
	f.EchoTrainLength = intField(m, "EchoTrainLength")
	f.PETBedIndex = intField(m, "PETBedIndex")
	return f, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatField(m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func intField(m map[string]any, key string) *int {
	f := floatField(m, key)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}
