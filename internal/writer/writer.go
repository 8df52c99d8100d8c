// Package writer implements the Adaptive Batching Writer (§4.8): the sole
// mutator of the metadata database during extraction, consuming
// InstancePayloads from a bounded queue in short, adaptively-sized
// transactions.
package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NeuroGranberg/nils-core/internal/metadatadb"
	"github.com/NeuroGranberg/nils-core/internal/model"
)

// drainTimeout bounds how long the writer waits for additional payloads
// once it has at least one, before opening the batch's transaction (§4.8
// step 2, "short timeout").
const drainTimeout = 200 * time.Millisecond

// CumulativeMetrics totals what a writer has persisted this run (§4.8
// "Metrics exposed").
type CumulativeMetrics struct {
	Subjects  int64
	Studies   int64
	Series    int64
	Instances int64
}

// Snapshot is the writer's full metrics surface: cumulative counts plus the
// adaptive controller's current batch size and EMA latency.
type Snapshot struct {
	CumulativeMetrics
	Controller Metrics
}

// Writer owns one long-lived metadata-database session and is the only
// component that mutates it during an extraction run (§5 "Shared-resource
// policy").
type Writer struct {
	db              *metadatadb.DB
	cohortID        int64
	duplicatePolicy model.DuplicatePolicy
	controller      *sizeController

	mu         sync.Mutex
	cumulative CumulativeMetrics
}

// New builds a Writer bound to cohortID, applying duplicatePolicy to every
// Instance collision and settings to the adaptive controller.
func New(db *metadatadb.DB, cohortID int64, duplicatePolicy model.DuplicatePolicy, settings Settings) *Writer {
	return &Writer{
		db:              db,
		cohortID:        cohortID,
		duplicatePolicy: duplicatePolicy,
		controller:      newSizeController(settings),
	}
}

// Run drains queue until it is closed or ctx is cancelled, committing one
// adaptively-sized batch at a time (§4.8 steps 1-5). On cancellation, Run
// performs one final commit of whatever batch is already assembled, then
// returns ctx.Err().
func (w *Writer) Run(ctx context.Context, queue <-chan model.InstancePayload) error {
	for {
		first, ok := w.awaitFirst(ctx, queue)
		if !ok {
			return ctx.Err()
		}

		batch := w.drain(ctx, queue, first)
		start := time.Now()
		if err := w.writeBatch(context.WithoutCancel(ctx), batch); err != nil {
			return fmt.Errorf("could not write batch: %w", err)
		}
		elapsed := time.Since(start)
		w.controller.record(float64(elapsed.Microseconds()) / 1000.0)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// awaitFirst blocks for the first payload of the next batch, or returns
// ok=false once queue is closed or ctx is done.
func (w *Writer) awaitFirst(ctx context.Context, queue <-chan model.InstancePayload) (model.InstancePayload, bool) {
	select {
	case p, ok := <-queue:
		return p, ok
	case <-ctx.Done():
		return model.InstancePayload{}, false
	}
}

// drain greedily collects up to the controller's current batch size,
// waiting at most drainTimeout in total for the additional payloads (§4.8
// step 2).
func (w *Writer) drain(ctx context.Context, queue <-chan model.InstancePayload, first model.InstancePayload) []model.InstancePayload {
	limit := w.controller.currentBatchSize()
	if limit < 1 {
		limit = 1
	}
	batch := make([]model.InstancePayload, 0, limit)
	batch = append(batch, first)

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()

	for len(batch) < limit {
		select {
		case p, ok := <-queue:
			if !ok {
				return batch
			}
			batch = append(batch, p)
		case <-timer.C:
			return batch
		case <-ctx.Done():
			return batch
		}
	}
	return batch
}

// writeBatch runs one transaction implementing §4.8 step 3: per payload,
// upsert Subject/Study/Series, instance-first-insert the Instance, and
// only upsert MRI/CT/PET detail rows for payloads whose Instance insert
// succeeded (the "live parents" no-orphans rule).
func (w *Writer) writeBatch(ctx context.Context, batch []model.InstancePayload) error {
	if len(batch) == 0 {
		return nil
	}

	var delta CumulativeMetrics
	err := w.db.WithTx(ctx, func(tx *metadatadb.DB) error {
		for _, p := range batch {
			subjectID, subjectInserted, err := tx.UpsertSubject(ctx, p.SubjectCode, p.CodeSource, p.OriginalPID)
			if err != nil {
				return err
			}
			if subjectInserted {
				delta.Subjects++
			}
			if err := tx.EnsureSubjectCohort(ctx, subjectID, w.cohortID); err != nil {
				return err
			}

			studyID, studyInserted, err := tx.UpsertStudy(ctx, p.StudyInstanceUID, subjectID, p.StudyFields)
			if err != nil {
				return err
			}
			if studyInserted {
				delta.Studies++
			}

			seriesID, seriesInserted, err := tx.UpsertSeries(ctx, p.SeriesInstanceUID, studyID, p.Modality, p.SeriesFields)
			if err != nil {
				return err
			}
			if seriesInserted {
				delta.Series++
			}

			_, inserted, err := tx.InsertInstance(ctx, p.SOPInstanceUID, seriesID, p.RelPath, p.InstanceFields, w.duplicatePolicy)
			if err != nil {
				return err
			}
			if !inserted {
				continue // not a live parent: no detail-row upsert for this payload
			}
			delta.Instances++

			switch {
			case p.MRFields != nil:
				if err := tx.UpsertMRDetails(ctx, seriesID, p.SeriesInstanceUID, p.MRFields); err != nil {
					return err
				}
			case p.CTFields != nil:
				if err := tx.UpsertCTDetails(ctx, seriesID, p.SeriesInstanceUID, p.CTFields); err != nil {
					return err
				}
			case p.PETFields != nil:
				if err := tx.UpsertPETDetails(ctx, seriesID, p.SeriesInstanceUID, p.PETFields); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.cumulative.Subjects += delta.Subjects
	w.cumulative.Studies += delta.Studies
	w.cumulative.Series += delta.Series
	w.cumulative.Instances += delta.Instances
	w.mu.Unlock()
	return nil
}

// Snapshot returns the writer's current cumulative counts and controller
// state.
func (w *Writer) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{CumulativeMetrics: w.cumulative, Controller: w.controller.metrics()}
}
