package extract

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/NeuroGranberg/nils-core/internal/dicom"
	"github.com/NeuroGranberg/nils-core/internal/model"
)

// DefaultAllowedModalities is the stack-discovery-relevant modality set used
// when an ExtractionEngine is not configured with an explicit allow-list
// (§4.7 step 3, §4.9).
func DefaultAllowedModalities() map[string]bool {
	return map[string]bool{"MR": true, "CT": true, "PT": true, "PET": true}
}

// Batch is a chunk of at most batchSize payloads from one subject, plus the
// SOP Instance UID of its last payload — the token a caller persists as
// that series' resume point.
type Batch struct {
	Payloads   []model.InstancePayload
	LastSOPUID string
}

// ExtractSubjectBatches plans subject (§4.7 step 1), then reads its Series
// concurrently across up to seriesWorkers readers (§4.7 step 2, §5's
// per-subject Concurrency Model tier), dropping files with an absent or
// disallowed modality (step 3), and chunks the resulting payloads into
// batches of at most batchSize. Payloads are reassembled in the plan's
// deterministic series order regardless of which reader finished first, so
// output ordering does not depend on scheduling.
func ExtractSubjectBatches(
	ctx context.Context,
	subject SubjectFolder,
	resolver *SubjectResolver,
	batchSize int,
	resumeTokens SeriesResumeTokens,
	pathFilter map[string]bool,
	allowedModalities map[string]bool,
	seriesWorkers int,
) ([]Batch, error) {
	if allowedModalities == nil {
		allowedModalities = DefaultAllowedModalities()
	}
	if resumeTokens == nil {
		resumeTokens = SeriesResumeTokens{}
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if seriesWorkers <= 0 {
		seriesWorkers = 1
	}

	plans, err := PlanSubjectSeries(subject, resumeTokens, pathFilter)
	if err != nil {
		return nil, err
	}

	perSeries := make([][]model.InstancePayload, len(plans))
	sem := semaphore.NewWeighted(int64(seriesWorkers))
	group, egCtx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		i, plan := i, plan
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			perSeries[i] = readSeriesPayloads(subject, resolver, plan, allowedModalities)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var payloads []model.InstancePayload
	for _, sp := range perSeries {
		payloads = append(payloads, sp...)
	}

	if len(payloads) == 0 {
		return nil, nil
	}

	var batches []Batch
	for start := 0; start < len(payloads); start += batchSize {
		end := start + batchSize
		if end > len(payloads) {
			end = len(payloads)
		}
		chunk := payloads[start:end]
		batches = append(batches, Batch{
			Payloads:   chunk,
			LastSOPUID: chunk[len(chunk)-1].SOPInstanceUID,
		})
	}
	return batches, nil
}

// readSeriesPayloads reads every candidate file in one SeriesPlan, dropping
// absent/disallowed modalities. It runs as one of ExtractSubjectBatches'
// concurrent per-series readers, so it must not share mutable state with
// any other series' call.
func readSeriesPayloads(subject SubjectFolder, resolver *SubjectResolver, plan SeriesPlan, allowedModalities map[string]bool) []model.InstancePayload {
	var payloads []model.InstancePayload
	for _, path := range plan.Paths {
		ds, err := dicom.ReadSpecificTags(path, dicom.MinimalTagSet())
		if err != nil {
			continue
		}
		modality := ds.GetModality()
		if modality == "" || !allowedModalities[modality] {
			continue
		}
		relPath := path
		if rel, err := filepath.Rel(subject.Path, path); err == nil {
			relPath = filepath.Join(subject.SubjectKey, rel)
		}
		payloads = append(payloads, buildPayload(subject, resolver, ds, relPath))
	}
	return payloads
}

func buildPayload(subject SubjectFolder, resolver *SubjectResolver, ds *dicom.Dataset, path string) model.InstancePayload {
	patientID := ds.GetPatientID()
	studyUID := ds.GetStudyInstanceUID()
	code, source := resolver.Resolve(patientID, studyUID)
	modality := ds.GetModality()

	payload := model.InstancePayload{
		SubjectKey:        subject.SubjectKey,
		SubjectCode:       code,
		CodeSource:        source,
		StudyInstanceUID:  studyUID,
		SeriesInstanceUID: ds.GetSeriesInstanceUID(),
		SOPInstanceUID:    ds.GetSOPInstanceUID(),
		Modality:          modality,
		StudyFields:       map[string]any{"StudyDate": ds.GetStudyDate()},
		SeriesFields:      map[string]any{"Modality": modality},
		InstanceFields:    instanceFields(ds),
		OriginalPID:       patientID,
		OriginalName:      ds.GetPatientName(),
		RelPath:           path,
	}

	switch modality {
	case "MR":
		payload.MRFields = mrFields(ds)
		mergeFields(payload.InstanceFields, payload.MRFields)
	case "CT":
		payload.CTFields = ctFields(ds)
		mergeFields(payload.InstanceFields, payload.CTFields)
	case "PT", "PET":
		payload.PETFields = petFields(ds)
		mergeFields(payload.InstanceFields, payload.PETFields)
	}
	return payload
}

// mergeFields copies src into dst. Stack Discovery (§4.9) groups by
// per-instance parameters (echo time, inversion time, ...), so the
// modality-specific fields live in instance.fields alongside orientation
// and image type, not only in the series-level detail row that
// mri_series_details/ct_series_details/pet_series_details overwrite on
// every instance of the same series.
func mergeFields(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

func instanceFields(ds *dicom.Dataset) map[string]any {
	fields := map[string]any{
		"ImageOrientationPatient": ds.GetImageOrientationPatient(),
		"ImageType":               ds.GetImageType(),
	}
	return fields
}

func mrFields(ds *dicom.Dataset) map[string]any {
	fields := map[string]any{
		"ReceiveCoilName": ds.GetString(dicom.ReceiveCoilName),
		"EchoNumbers":     ds.GetString(dicom.EchoNumbers),
	}
	if v, ok := ds.GetFloatTag(dicom.EchoTime); ok {
		fields["EchoTime"] = v
	}
	if v, ok := ds.GetFloatTag(dicom.InversionTime); ok {
		fields["InversionTime"] = v
	}
	if v, ok := ds.GetFloatTag(dicom.RepetitionTime); ok {
		fields["RepetitionTime"] = v
	}
	if v, ok := ds.GetFloatTag(dicom.FlipAngle); ok {
		fields["FlipAngle"] = v
	}
	if v, ok := ds.GetIntTag(dicom.EchoTrainLength); ok {
		fields["EchoTrainLength"] = v
	}
	return fields
}

func ctFields(ds *dicom.Dataset) map[string]any {
	fields := map[string]any{}
	if v, ok := ds.GetIntTag(dicom.KVP); ok {
		fields["KVP"] = v
	}
	if v, ok := ds.GetFloatTag(dicom.XRayTubeCurrent); ok {
		fields["TubeCurrent"] = v
	}
	if v, ok := ds.GetFloatTag(dicom.Exposure); ok {
		fields["XrayExposure"] = v
	}
	return fields
}

func petFields(ds *dicom.Dataset) map[string]any {
	fields := map[string]any{
		"PETFrameType": ds.GetString(dicom.PETSeriesType),
	}
	if v, ok := ds.GetIntTag(dicom.PETImageIndex); ok {
		fields["PETBedIndex"] = v
	}
	return fields
}
