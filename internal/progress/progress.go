// Package progress draws stage progress on stderr while files are extracted.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar for one analysis stage. A nil *Tracker is a
// no-op, so callers can pass one around without checking whether progress
// is enabled.
type Tracker struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	label string
	count atomic.Int64
}

// NewSpinner creates a spinner for operations with unknown total count,
// such as walking the project tree.
func NewSpinner(label string) *Tracker {
	return NewSpinnerTo(os.Stderr, label)
}

// NewSpinnerTo is NewSpinner writing to w.
func NewSpinnerTo(w io.Writer, label string) *Tracker {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, out: w, label: label}
}

// NewTracker creates a progress bar with the given label and total count.
func NewTracker(label string, total int) *Tracker {
	return NewTrackerTo(os.Stderr, label, total)
}

// NewTrackerTo is NewTracker writing to w.
func NewTrackerTo(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, out: w, label: label}
}

// Tick increments the progress by 1. Safe for concurrent use, so it can be
// handed to fileproc as the per-file progress callback.
func (t *Tracker) Tick() {
	if t == nil {
		return
	}
	t.count.Add(1)
	_ = t.bar.Add(1)
}

// Count returns how many ticks were recorded.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	return int(t.count.Load())
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	if t == nil {
		return
	}
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishSkipped clears the bar and prints a skip message.
func (t *Tracker) FinishSkipped(reason string) {
	if t == nil {
		return
	}
	t.FinishSuccess()
	fmt.Fprintf(t.out, "  %s skipped (%s)\n", t.label, reason)
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	if t == nil {
		return
	}
	t.FinishSuccess()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}
