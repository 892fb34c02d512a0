package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesForDelay(t *testing.T) {
	cases := []struct {
		name    string
		delayMs float64
		fps     float64
		want    int
	}{
		{"zero delay", 0, 24, 0},
		{"one second at 24fps", -1000, 24, 24},
		{"half second at 25fps", 500, 25, 13},
		{"rounds half up", 500, 25, 13},
		{"sub-frame delay rounds to zero", -10, 24, 0},
		{"ntsc rate", 1001, 23.976, 24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FramesForDelay(tc.delayMs, tc.fps))
		})
	}
}

func TestFramesForDelayIgnoresSign(t *testing.T) {
	for _, delay := range []float64{0, 41.7, 500, 1000, 12345.6} {
		for _, fps := range []float64{23.976, 24, 25, 29.97, 60} {
			assert.Equal(t, FramesForDelay(delay, fps), FramesForDelay(-delay, fps),
				"delay=%v fps=%v", delay, fps)
		}
	}
}

func TestPlanForDelay(t *testing.T) {
	t.Run("negative delay removes head frames", func(t *testing.T) {
		plan := PlanForDelay(-1000, 24)
		require.Equal(t, "0-23", plan.RemoveRange)
		require.Zero(t, plan.DuplicateCount)
	})

	t.Run("positive delay duplicates frame zero", func(t *testing.T) {
		plan := PlanForDelay(500, 25)
		require.Equal(t, 13, plan.DuplicateCount)
		require.Empty(t, plan.RemoveRange)
	})

	t.Run("zero delay is a no-op", func(t *testing.T) {
		require.True(t, PlanForDelay(0, 23.976).IsZero())
	})

	t.Run("negative delay rounding to zero frames is a no-op", func(t *testing.T) {
		require.True(t, PlanForDelay(-10, 24).IsZero())
	})
}

func TestPlanForDelayMutuallyExclusive(t *testing.T) {
	for _, delay := range []float64{-2000, -41.7, 0, 41.7, 2000} {
		plan := PlanForDelay(delay, 23.976)
		if plan.RemoveRange != "" && plan.DuplicateCount != 0 {
			t.Fatalf("delay %v produced both removal %q and duplication %d", delay, plan.RemoveRange, plan.DuplicateCount)
		}
	}
}
