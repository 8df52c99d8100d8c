package extract

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/NeuroGranberg/nils-core/internal/model"
)

// Config configures one Extraction Engine run over a cohort's anonymized
// tree (§4.7). The engine runs two concurrency tiers: MaxWorkers bounds the
// subject-level pool Run partitions subjects across, and
// SeriesWorkersPerSubject bounds a second, per-subject pool that reads a
// subject's own Series concurrently (§4.7 step 2, §5's Concurrency Model).
type Config struct {
	CohortID                int64
	CohortName              string
	RawRoot                 string
	MaxWorkers              int
	SeriesWorkersPerSubject int
	BatchSize               int
	QueueSize               int
	DuplicatePolicy         model.DuplicatePolicy
	AllowedModalities       map[string]bool
	CSVTable                map[string]string
	Seed                    string
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 1
	}
	if c.SeriesWorkersPerSubject <= 0 {
		c.SeriesWorkersPerSubject = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.BatchSize
	}
	if c.DuplicatePolicy == "" {
		c.DuplicatePolicy = model.DuplicateSkip
	}
	return c
}

// ProgressFunc reports (processedSubjects, totalSubjects). Calls are
// serialized and processedSubjects is non-decreasing across a run (§4.7).
type ProgressFunc func(processed, total int)

// ResumeState carries the two resume mechanisms (§4.7 step 1): per-series
// last-written SOP UIDs, and the per-subject set of already-extracted
// relative paths.
type ResumeState struct {
	SeriesTokens map[string]SeriesResumeTokens // subjectKey -> series -> token
	PathIndex    *ExistingPathIndex
}

// Engine is the Extraction Engine: a pool of subject workers feeding a
// bounded queue that the Adaptive Batching Writer drains (§4.7, §5).
type Engine struct {
	cfg Config
}

// NewEngine prepares an Engine from cfg, applying defaults for unset
// tunables.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Run discovers subject folders under RawRoot and processes them across
// MaxWorkers concurrent workers, emitting every surviving InstancePayload
// onto queue in series/file order (payloads across subjects may interleave).
// Run returns once every subject has been scheduled, processed, and its
// payloads enqueued; it does not close queue — the caller owns that, once
// Run and every other producer sharing the channel have returned.
//
// On ctx cancellation, Run stops scheduling new subjects, awaits the
// in-flight ones, and returns ctx.Err(); already-enqueued payloads remain
// in queue for the writer to drain.
func (e *Engine) Run(ctx context.Context, queue chan<- model.InstancePayload, progress ProgressFunc, resume ResumeState) error {
	subjects, err := DiscoverSubjects(e.cfg.RawRoot)
	if err != nil {
		return err
	}
	total := len(subjects)

	resolver := &SubjectResolver{CSVTable: e.cfg.CSVTable, Seed: e.cfg.Seed}

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

	sem := semaphore.NewWeighted(int64(e.cfg.MaxWorkers))
	group, egCtx := errgroup.WithContext(ctx)

	for _, subject := range subjects {
		subject := subject
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			defer func() {
				atomic.AddInt64(&processed, 1)
				report()
			}()

			var pathFilter map[string]bool
			var tokens SeriesResumeTokens
			if resume.PathIndex != nil {
				pathFilter = resume.PathIndex.EntryFor(subject.SubjectKey)
			}
			if resume.SeriesTokens != nil {
				tokens = resume.SeriesTokens[subject.SubjectKey]
			}

			batches, err := ExtractSubjectBatches(egCtx, subject, resolver, e.cfg.BatchSize, tokens, pathFilter, e.cfg.AllowedModalities, e.cfg.SeriesWorkersPerSubject)
			if err != nil {
				return fmt.Errorf("could not extract subject %s: %w", subject.SubjectKey, err)
			}
			for _, batch := range batches {
				for _, payload := range batch.Payloads {
					select {
					case queue <- payload:
					case <-egCtx.Done():
						return egCtx.Err()
					}
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
