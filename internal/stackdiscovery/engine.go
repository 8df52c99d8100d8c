// Package stackdiscovery orchestrates Stack Discovery (§4.9): the
// post-extraction pass that groups each Series' instances into homogeneous
// stacks and persists the grouping. It is the caller that turns
// internal/stack's pure signature/grouping functions and
// internal/metadatadb's read/write primitives into a running engine,
// mirroring how internal/extract's Engine drives internal/dicom reads
// through internal/writer's sink.
package stackdiscovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/NeuroGranberg/nils-core/internal/metadatadb"
	"github.com/NeuroGranberg/nils-core/internal/stack"
)

// Config configures one Stack Discovery run over a metadata database (§4.9).
type Config struct {
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// ProgressFunc reports (processedSeries, totalSeries). Calls are serialized
// and processedSeries is non-decreasing across a run.
type ProgressFunc func(processed, total int)

// Stats totals one run's outcome.
type Stats struct {
	TotalSeries    int
	SeriesGrouped  int
	StacksCreated  int
	InstancesMoved int
	Errors         []error
}

// Engine is Stack Discovery's driver: for each Series with at least one
// ungrouped Instance, it reads that Series' pending instances back out of
// the metadata database, computes each one's stack signature, groups them,
// and persists the result (§4.9 steps 1-5).
type Engine struct {
	cfg Config
	db  *metadatadb.DB
}

// NewEngine prepares an Engine bound to db, applying defaults for unset
// tunables.
func NewEngine(cfg Config, db *metadatadb.DB) *Engine {
	return &Engine{cfg: cfg.withDefaults(), db: db}
}

// Run discovers every Series pending stack discovery and processes them
// across Workers concurrent goroutines (§4.9). On ctx cancellation, Run
// stops scheduling new series, awaits the in-flight ones, and returns
// ctx.Err().
func (e *Engine) Run(ctx context.Context, progress ProgressFunc) (*Stats, error) {
	seriesIDs, err := e.db.SeriesPendingStackDiscovery(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list series pending stack discovery: %w", err)
	}
	total := len(seriesIDs)

	stats := &Stats{TotalSeries: total}
	var mu sync.Mutex

	var processed int64
	var progressMu sync.Mutex
	report := func() {
		if progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		progress(int(atomic.LoadInt64(&processed)), total)
	}
	report()

	sem := semaphore.NewWeighted(int64(e.cfg.Workers))
	group, egCtx := errgroup.WithContext(ctx)

	for _, seriesID := range seriesIDs {
		seriesID := seriesID
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			defer func() {
				atomic.AddInt64(&processed, 1)
				report()
			}()

			created, moved, err := e.processSeries(egCtx, seriesID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Errors = append(stats.Errors, fmt.Errorf("series %d: %w", seriesID, err))
				return nil
			}
			stats.SeriesGrouped++
			stats.StacksCreated += created
			stats.InstancesMoved += moved
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

// processSeries implements §4.9 steps 1-5 for a single Series: read its
// pending instances' stack-defining fields, compute each one's signature,
// group into stacks, assign the stack_key, and persist both the
// series_stack rows and the instance.series_stack_id foreign keys.
func (e *Engine) processSeries(ctx context.Context, seriesID int64) (stacksCreated, instancesMoved int, err error) {
	rows, err := e.db.InstanceFieldsForSeries(ctx, seriesID)
	if err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	signatures := make([]stack.InstanceSignature, len(rows))
	for i, row := range rows {
		sig, confidence := stack.ComputeSignature(row.Fields)
		signatures[i] = stack.InstanceSignature{
			InstanceID: row.InstanceID,
			Signature:  sig,
			Confidence: confidence,
		}
	}

	stacks, assignment := stack.Group(signatures)
	for i := range stacks {
		stacks[i].SeriesID = seriesID
	}

	stackIDsByIndex, err := e.db.UpsertSeriesStacks(ctx, seriesID, stacks)
	if err != nil {
		return 0, 0, fmt.Errorf("could not upsert series_stack rows: %w", err)
	}

	updates := stack.BuildFKUpdates(assignment, stackIDsByIndex)
	if err := e.db.BulkUpdateInstanceStackFK(ctx, updates); err != nil {
		return 0, 0, fmt.Errorf("could not bulk-update instance stack FKs: %w", err)
	}

	return len(stacks), len(updates), nil
}
