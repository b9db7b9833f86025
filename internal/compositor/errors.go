package compositor

import (
	"errors"
	"fmt"
)

// ErrNoImagery is returned (or wrapped) when no source imagery
// intersects the AOI for any tested window. Sources also return it for
// a single empty window; the compositor keeps widening until the cap.
var ErrNoImagery = errors.New("no imagery available")

// NoImageryError reports that every tested window came back empty.
// MaxBufferDays is zero when the query used an explicit window rather
// than the adaptive loop.
type NoImageryError struct {
	MaxBufferDays int
}

func (e *NoImageryError) Error() string {
	if e.MaxBufferDays <= 0 {
		return "no imagery found in the requested window"
	}
	return fmt.Sprintf("no imagery found within %d days of the target date", e.MaxBufferDays)
}

func (e *NoImageryError) Unwrap() error {
	return ErrNoImagery
}

// ThresholdError reports that imagery exists but the no-data percentage
// never dropped below the threshold before the expansion policy was
// exhausted. Best holds the lowest-no-data composite seen, when any
// composite was produced at all.
type ThresholdError struct {
	Threshold  float64
	Achieved   float64
	BufferDays int
	Iterations int
	Best       *Composite
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("no-data percentage %.2f still above threshold %.2f after %d iterations (buffer %d days)",
		e.Achieved, e.Threshold, e.Iterations, e.BufferDays)
}
