// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/tangle/pkg/parser"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Paths lists the failed files in the order they were recorded.
func (e *ProcessingErrors) Paths() []string {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe.Path
	}
	return out
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the individual file errors to errors.Is and errors.As.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x is optimal for mixed I/O and CGO workloads.
const DefaultWorkerMultiplier = 2

// DefaultWorkers returns the worker count used when none is configured.
func DefaultWorkers() int {
	return runtime.NumCPU() * DefaultWorkerMultiplier
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// MapFiles calls fn for each file with a parser owned by the calling worker;
// parsers are reused across files and closed on return. Results keep the
// order of files; a failed file leaves the zero value in its slot and is
// recorded in the returned errors, which are nil when every file succeeded.
// With workers <= 1 the files are processed on the calling goroutine.
func MapFiles[T any](ctx context.Context, files []string, workers int, fn func(*parser.Parser, string) (T, error), onProgress ProgressFunc) ([]T, *ProcessingErrors) {
	if len(files) == 0 {
		return nil, nil
	}

	results := make([]T, len(files))
	errs := &ProcessingErrors{}

	process := func(psr *parser.Parser, i int) {
		defer func() {
			if onProgress != nil {
				onProgress()
			}
		}()
		if err := ctx.Err(); err != nil {
			errs.Add(files[i], err)
			return
		}
		result, err := fn(psr, files[i])
		if err != nil {
			errs.Add(files[i], err)
			return
		}
		results[i] = result
	}

	if workers <= 1 {
		psr := parser.New()
		defer psr.Close()
		for i := range files {
			process(psr, i)
		}
	} else {
		// at most workers tasks run at once, so the free list never holds
		// more than workers parsers
		free := make(chan *parser.Parser, workers)
		p := pool.New().WithMaxGoroutines(workers)
		for i := range files {
			p.Go(func() {
				var psr *parser.Parser
				select {
				case psr = <-free:
				default:
					psr = parser.New()
				}
				process(psr, i)
				free <- psr
			})
		}
		p.Wait()
		close(free)
		for psr := range free {
			psr.Close()
		}
	}

	if !errs.HasErrors() {
		return results, nil
	}
	pos := make(map[string]int, len(files))
	for i, f := range files {
		pos[f] = i
	}
	slices.SortStableFunc(errs.Errors, func(a, b ProcessingError) int {
		return cmp.Compare(pos[a.Path], pos[b.Path])
	})
	return results, errs
}
