// Package align derives the corrections needed to line a graded track up
// with its reference: frame-accurate delay compensation and symmetric
// crop/letterbox amounts. All functions are pure.
package align

import (
	"fmt"
	"math"
)

// DelayPlan describes the temporal edit for a signed delay. At most one of
// RemoveRange and DuplicateCount is set: a negative delay removes frames
// from the head, a positive one duplicates frame 0.
type DelayPlan struct {
	// RemoveRange is an inclusive head range in the "start-end" form the
	// metadata editors consume, or "" when nothing is removed.
	RemoveRange string

	// DuplicateCount is the number of times frame 0 is repeated at the head.
	DuplicateCount int
}

// IsZero reports whether the plan requires no edit.
func (p DelayPlan) IsZero() bool {
	return p.RemoveRange == "" && p.DuplicateCount == 0
}

// FramesForDelay converts a millisecond delay into a frame count at the
// given rate: round(|delayMs| * fps / 1000). The sign of the delay is
// ignored here; PlanForDelay interprets it.
func FramesForDelay(delayMs, fps float64) int {
	return int(math.Round(math.Abs(delayMs) * fps / 1000))
}

// PlanForDelay derives the temporal edit for a signed delay. A delay small
// enough to round to zero frames yields an empty plan.
func PlanForDelay(delayMs, fps float64) DelayPlan {
	frames := FramesForDelay(delayMs, fps)

	var plan DelayPlan
	switch {
	case delayMs < 0 && frames > 0:
		plan.RemoveRange = fmt.Sprintf("0-%d", frames-1)
	case delayMs > 0:
		plan.DuplicateCount = frames
	}
	return plan
}
