package core

import "math"

const (
	FPS_FRAMES_TO_AVERAGE = 128
	FPS_HISTORY_SIZE      = 100
	// Seconds of rendering before recorded samples are considered stable.
	FPS_VALID_THRESHOLD = 5.0
)

// FPSTimer keeps a rolling average of the frame rate over the last
// FPS_FRAMES_TO_AVERAGE samples plus a short history used for reporting.
type FPSTimer struct {
	totalTime   float64
	timeTable   [FPS_FRAMES_TO_AVERAGE]float64
	cursor      int
	instantFPS  float64
	averageFPS  float64
	historyFPS  [FPS_HISTORY_SIZE]float64
	historyMS   [FPS_HISTORY_SIZE]float64
	updateCount int
	recorded    []float64
}

func NewFPSTimer() *FPSTimer {
	t := &FPSTimer{
		totalTime: float64(FPS_FRAMES_TO_AVERAGE),
	}
	for i := range t.timeTable {
		t.timeTable[i] = 1.0
	}
	for i := range t.historyFPS {
		t.historyFPS[i] = 1.0
		t.historyMS[i] = 100.0
	}
	return t
}

// Update pushes a new sample. elapsed is the time of the sampled interval in
// seconds, renderingTime is the total time spent rendering so far. When
// recordEvery is positive, every recordEvery-th update after the warm-up period
// appends the average FPS to the recorded series.
func (t *FPSTimer) Update(elapsed, renderingTime float64, recordEvery int) {
	if elapsed <= 0 {
		return
	}
	t.totalTime += elapsed - t.timeTable[t.cursor]
	t.timeTable[t.cursor] = elapsed
	t.cursor = (t.cursor + 1) % FPS_FRAMES_TO_AVERAGE

	t.instantFPS = math.Floor(1.0/elapsed + 0.5)
	t.averageFPS = math.Floor(1.0/(t.totalTime/float64(FPS_FRAMES_TO_AVERAGE)) + 0.5)

	copy(t.historyFPS[:], t.historyFPS[1:])
	copy(t.historyMS[:], t.historyMS[1:])
	t.historyFPS[FPS_HISTORY_SIZE-1] = t.averageFPS
	if t.averageFPS > 0 {
		t.historyMS[FPS_HISTORY_SIZE-1] = 1000.0 / t.averageFPS
	}

	t.updateCount++
	if recordEvery > 0 && renderingTime > FPS_VALID_THRESHOLD && t.updateCount%recordEvery == 0 {
		t.recorded = append(t.recorded, t.averageFPS)
	}
}

func (t *FPSTimer) AverageFPS() float64 {
	return t.averageFPS
}

func (t *FPSTimer) InstantaneousFPS() float64 {
	return t.instantFPS
}

// History returns a copy of the FPS and frame time (ms) history, oldest first.
func (t *FPSTimer) History() ([]float64, []float64) {
	fps := make([]float64, FPS_HISTORY_SIZE)
	ms := make([]float64, FPS_HISTORY_SIZE)
	copy(fps, t.historyFPS[:])
	copy(ms, t.historyMS[:])
	return fps, ms
}

func (t *FPSTimer) Recorded() []float64 {
	return t.recorded
}
