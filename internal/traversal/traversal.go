// Package traversal implements the Filesystem Traversal & Signature Reader:
// a concurrent directory scan that yields candidate files in one of three
// pull-based modes, plus on-demand minimal tag reads.
package traversal

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Mode selects how Walk orders and batches the files it yields.
type Mode int

const (
	// Streaming yields files as discovered, breadth-first via a bounded
	// worker pool.
	Streaming Mode = iota
	// LeafBatched buffers files until a threshold of distinct parent
	// directories is reached, then emits that batch sorted by (parent, name).
	LeafBatched
	// DepthFirst recurses into each directory fully, sorting children
	// lexicographically, before moving to the next sibling.
	DepthFirst
)

// Options configures a Walk.
type Options struct {
	// MaxWorkers bounds concurrent directory scans. Defaults to 16.
	MaxWorkers int
	// BufferLeaves is the leaf-count threshold for LeafBatched mode.
	// Defaults to 200.
	BufferLeaves int
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 16
	}
	if o.BufferLeaves <= 0 {
		o.BufferLeaves = 200
	}
	return o
}

// IsCandidate reports whether name is a candidate file per §3: suffix
// ".dcm" (case-insensitive) or no extension at all.
func IsCandidate(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".dcm" || ext == ""
}

// Iterator is a pull-based cursor over a Walk's results.
type Iterator struct {
	cancel context.CancelFunc
	files  chan string
	errs   chan error
	err    error
}

// Next advances the iterator. It returns ("", false) once the walk is
// exhausted or has failed; call Err afterward to distinguish the two.
func (it *Iterator) Next() (string, bool) {
	path, ok := <-it.files
	if !ok {
		select {
		case err := <-it.errs:
			it.err = err
		default:
		}
		return "", false
	}
	return path, true
}

// Err returns the first error encountered by the walk, if any. Only
// meaningful after Next has returned false.
func (it *Iterator) Err() error { return it.err }

// Close stops the underlying scan early, releasing its goroutines. Safe to
// call multiple times and after exhaustion.
func (it *Iterator) Close() {
	it.cancel()
	for range it.files {
	}
}

type scanResult struct {
	files []string
	dirs  []string
}

func scanDir(dir string) scanResult {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return scanResult{}
	}
	var res scanResult
	for _, e := range entries {
		if e.IsDir() {
			res.dirs = append(res.dirs, filepath.Join(dir, e.Name()))
			continue
		}
		if IsCandidate(e.Name()) {
			res.files = append(res.files, filepath.Join(dir, e.Name()))
		}
	}
	return res
}

// Walk starts a traversal of root in the given mode and returns a pull-based
// Iterator. The caller must drain Next to completion or call Close.
func Walk(root string, mode Mode, opts Options) *Iterator {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	it := &Iterator{
		cancel: cancel,
		files:  make(chan string),
		errs:   make(chan error, 1),
	}

	go func() {
		defer close(it.files)
		switch mode {
		case LeafBatched:
			walkLeafBatched(ctx, root, opts, it.files)
		case DepthFirst:
			walkDepthFirst(ctx, root, opts, it.files)
		default:
			walkStreaming(ctx, root, opts, it.files)
		}
	}()

	return it
}

func walkStreaming(ctx context.Context, root string, opts Options, out chan<- string) {
	sem := semaphore.NewWeighted(int64(opts.MaxWorkers))
	results := make(chan scanResult)
	pending := 1

	go func() {
		_ = sem.Acquire(ctx, 1)
		defer sem.Release(1)
		select {
		case results <- scanDir(root):
		case <-ctx.Done():
		}
	}()

	for pending > 0 {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			pending--
			for _, f := range res.files {
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
			for _, d := range res.dirs {
				pending++
				dir := d
				go func() {
					_ = sem.Acquire(ctx, 1)
					defer sem.Release(1)
					select {
					case results <- scanDir(dir):
					case <-ctx.Done():
					}
				}()
			}
		}
	}
}

func walkLeafBatched(ctx context.Context, root string, opts Options, out chan<- string) {
	sem := semaphore.NewWeighted(int64(opts.MaxWorkers))
	results := make(chan scanResult)
	pending := 1

	go func() {
		_ = sem.Acquire(ctx, 1)
		defer sem.Release(1)
		select {
		case results <- scanDir(root):
		case <-ctx.Done():
		}
	}()

	var buffer []string
	leavesSeen := make(map[string]bool)

	flush := func() bool {
		sort.Slice(buffer, func(i, j int) bool {
			pi, ni := filepath.Split(buffer[i])
			pj, nj := filepath.Split(buffer[j])
			if pi != pj {
				return pi < pj
			}
			return ni < nj
		})
		for _, f := range buffer {
			select {
			case out <- f:
			case <-ctx.Done():
				return false
			}
		}
		buffer = buffer[:0]
		leavesSeen = make(map[string]bool)
		return true
	}

	for pending > 0 {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			pending--
			buffer = append(buffer, res.files...)
			for _, f := range res.files {
				leavesSeen[filepath.Dir(f)] = true
			}
			if len(leavesSeen) >= opts.BufferLeaves {
				if !flush() {
					return
				}
			}
			for _, d := range res.dirs {
				pending++
				dir := d
				go func() {
					_ = sem.Acquire(ctx, 1)
					defer sem.Release(1)
					select {
					case results <- scanDir(dir):
					case <-ctx.Done():
					}
				}()
			}
		}
	}
	if len(buffer) > 0 {
		flush()
	}
}

func walkDepthFirst(ctx context.Context, root string, opts Options, out chan<- string) {
	var recurse func(dir string) bool
	recurse = func(dir string) bool {
		res := scanDir(dir)
		sort.Strings(res.files)
		for _, f := range res.files {
			select {
			case out <- f:
			case <-ctx.Done():
				return false
			}
		}
		sort.Strings(res.dirs)
		for _, d := range res.dirs {
			if !recurse(d) {
				return false
			}
		}
		return true
	}
	recurse(root)
}
