package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFPSTimer_SteadyFrameRate(t *testing.T) {
	timer := NewFPSTimer()
	for i := 0; i < FPS_FRAMES_TO_AVERAGE; i++ {
		timer.Update(1.0/60.0, 0, 0)
	}

	assert.Equal(t, 60.0, timer.AverageFPS())
	assert.Equal(t, 60.0, timer.InstantaneousFPS())

	fps, ms := timer.History()
	assert.Len(t, fps, FPS_HISTORY_SIZE)
	assert.Equal(t, 60.0, fps[FPS_HISTORY_SIZE-1])
	assert.InDelta(t, 1000.0/60.0, ms[FPS_HISTORY_SIZE-1], 1e-9)
}

func TestFPSTimer_RecordsAfterWarmUp(t *testing.T) {
	timer := NewFPSTimer()

	// Before the warm-up threshold nothing is recorded.
	for i := 0; i < 10; i++ {
		timer.Update(0.01, 1.0, 2)
	}
	assert.Empty(t, timer.Recorded())

	for i := 0; i < 10; i++ {
		timer.Update(0.01, FPS_VALID_THRESHOLD+1, 2)
	}
	assert.Len(t, timer.Recorded(), 5)
}

func TestFPSTimer_IgnoresNonPositiveSamples(t *testing.T) {
	timer := NewFPSTimer()
	timer.Update(0, 10, 1)
	assert.Zero(t, timer.AverageFPS())
	assert.Empty(t, timer.Recorded())
}
