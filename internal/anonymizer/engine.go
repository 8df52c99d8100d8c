package anonymizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/NeuroGranberg/nils-core/internal/audit"
	"github.com/NeuroGranberg/nils-core/internal/idstrategy"
)

// Config configures one Anonymization Engine run over a cohort (§4.3).
type Config struct {
	CohortName string
	Options    Options
	Strategy   idstrategy.Strategy
	FirstDates map[string]time.Time // PatientID -> earliest observed StudyDate, for timepoint mapping
	Workers    int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Stats totals one run's outcome across every patient folder (§4.3, §8).
type Stats struct {
	TotalPatients    int
	TotalLeaves      int
	LeavesReaudited  int // leaves already complete, skipped entirely
	FilesWritten     int
	FilesReused      int
	FilesWithErrors  int
	FilesSkipped     int // candidates with no readable StudyInstanceUID
	Errors           []error
}

// ProgressFunc reports (processedPatients, totalPatients). Calls are
// serialized and processedPatients is non-decreasing across a run.
type ProgressFunc func(processed, total int)

// Engine is the Anonymization Engine: top-level patient folders are
// round-robin partitioned across a fixed worker pool, each worker owning
// its assigned folders exclusively so no cross-worker coordination is
// required (§4.3).
type Engine struct {
	cfg    Config
	ledger *audit.Ledger
}

// NewEngine prepares an Engine bound to ledger, the Audit Ledger that backs
// §4.3 steps 3 and 5.
func NewEngine(cfg Config, ledger *audit.Ledger) *Engine {
	return &Engine{cfg: cfg.withDefaults(), ledger: ledger}
}

// Run partitions sourceRoot's immediate subdirectories round-robin across
// Workers goroutines and processes each patient folder to completion
// (§4.3). On ctx cancellation, Run stops scheduling new patient folders,
// awaits in-flight ones, and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, progress ProgressFunc) (*Stats, error) {
	folders, err := topLevelFolders(e.cfg.Options.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("could not list patient folders: %w", err)
	}
	total := len(folders)

	stats := &Stats{TotalPatients: total}
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

	for _, folder := range folders {
		folder := folder
		if err := sem.Acquire(egCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			defer func() {
				atomic.AddInt64(&processed, 1)
				report()
			}()

			leaves, skipped := groupIntoLeaves(folder)

			mu.Lock()
			stats.TotalLeaves += len(leaves)
			stats.FilesSkipped += skipped
			mu.Unlock()

			for _, leaf := range leaves {
				outcome, err := ProcessLeaf(egCtx, leaf, e.cfg.CohortName, e.cfg.Options, e.cfg.Strategy, e.cfg.FirstDates, e.ledger)
				mu.Lock()
				if err != nil {
					stats.Errors = append(stats.Errors, fmt.Errorf("leaf %s: %w", leaf.StudyInstanceUID, err))
				} else {
					stats.FilesWritten += outcome.FilesWritten
					stats.FilesReused += outcome.FilesReused
					stats.FilesWithErrors += outcome.FilesWithErrors
					stats.Errors = append(stats.Errors, outcome.Errors...)
					if outcome.FilesWritten == 0 && outcome.FilesWithErrors == 0 && outcome.FilesReused == outcome.FilesTotal {
						stats.LeavesReaudited++
					}
				}
				mu.Unlock()

				if egCtx.Err() != nil {
					return egCtx.Err()
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

// topLevelFolders lists sourceRoot's immediate subdirectories, sorted
// lexicographically for deterministic round-robin partitioning (§4.3
// "top-level directories ... round-robin assigned").
func topLevelFolders(sourceRoot string) ([]string, error) {
	entries, err := os.ReadDir(sourceRoot)
	if err != nil {
		return nil, err
	}
	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, filepath.Join(sourceRoot, e.Name()))
		}
	}
	sort.Strings(folders)
	return folders, nil
}
