package rhythm

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Tolerance is the largest per-keystroke deviation, in seconds, that still
// counts as the same rhythm.
const Tolerance = 0.60

// toleranceSlack absorbs float error so a deviation of exactly Tolerance
// passes.
const toleranceSlack = 1e-9

// millisPerSecond converts between seconds and milliseconds.
const millisPerSecond = 1000

// Sentinel errors returned by Merge and Compare.
var (
	// ErrTimingMismatch means the two capture timelines of a registration
	// have different lengths and cannot be averaged.
	ErrTimingMismatch = errors.New("timing vectors differ in length")

	// ErrNoTimingData means the reference or the submitted vector is empty.
	ErrNoTimingData = errors.New("no timing data")

	// ErrRhythmMismatch means the submitted vector does not match the
	// reference, either by length or by a per-keystroke deviation.
	ErrRhythmMismatch = errors.New("typing rhythm does not match")
)

// Vector is an ordered list of keystroke offsets in seconds.
type Vector []float64

// Round rounds v to millisecond precision (3 decimal places), half away
// from zero.
func Round(v float64) float64 {
	return float64(millis(v)) / millisPerSecond
}

// Seconds converts an elapsed duration into a rounded vector entry.
func Seconds(d time.Duration) float64 {
	return Round(d.Seconds())
}

// Clone returns a copy of v that shares no memory with it.
// A nil vector clones to an empty, non-nil vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Merge reduces the primary and confirmation timelines of a registration
// into one vector by averaging them elementwise:
//
//	merged[i] = Round((primary[i] + confirm[i]) / 2)
//
// Both vectors must have the same length.
func Merge(primary, confirm Vector) (Vector, error) {
	if len(primary) != len(confirm) {
		return nil, fmt.Errorf("%w: %d != %d", ErrTimingMismatch, len(primary), len(confirm))
	}

	merged := make(Vector, len(primary))
	for i := range primary {
		merged[i] = Round((primary[i] + confirm[i]) / 2) //nolint:mnd // arithmetic mean of two samples
	}
	return merged, nil
}

// Deviation describes the first keystroke whose timing fell outside the
// tolerance. It is meant for logs only and must not be shown to users.
type Deviation struct {
	Index     int
	Reference float64
	Submitted float64
	Diff      float64
}

// Error implements error.
func (d *Deviation) Error() string {
	return fmt.Sprintf("%s: keystroke %d off by %.3fs (reference %.3f, submitted %.3f)",
		ErrRhythmMismatch, d.Index, d.Diff, d.Reference, d.Submitted)
}

// Unwrap lets errors.Is(err, ErrRhythmMismatch) match a Deviation.
func (d *Deviation) Unwrap() error {
	return ErrRhythmMismatch
}

// Compare checks a submitted vector against a stored reference.
//
// The check is a strict AND over all positions: both vectors must be
// non-empty, have the same length, and every |reference[i] - submitted[i]|
// must be at most Tolerance. The first violation short-circuits and is
// returned as a *Deviation. A nil return means the rhythm matched.
func Compare(reference, submitted Vector) error {
	if len(reference) == 0 || len(submitted) == 0 {
		return ErrNoTimingData
	}
	if len(reference) != len(submitted) {
		return fmt.Errorf("%w: %d keystrokes recorded, %d submitted",
			ErrRhythmMismatch, len(reference), len(submitted))
	}

	for i := range reference {
		diff := math.Abs(reference[i] - submitted[i])
		if diff > Tolerance+toleranceSlack {
			return &Deviation{
				Index:     i,
				Reference: reference[i],
				Submitted: submitted[i],
				Diff:      Round(diff),
			}
		}
	}
	return nil
}

// MaxDeviation returns the largest per-keystroke difference between two
// equal-length vectors, in seconds, rounded to milliseconds for reporting.
// It returns 0 when lengths differ.
func MaxDeviation(reference, submitted Vector) float64 {
	if len(reference) != len(submitted) {
		return 0
	}
	var worst float64
	for i := range reference {
		worst = max(worst, math.Abs(reference[i]-submitted[i]))
	}
	return Round(worst)
}

func millis(v float64) int64 {
	return int64(math.Round(v * millisPerSecond))
}
