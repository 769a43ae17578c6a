// Package vision wraps the slow per-frame analysis capability in a
// single-flight throttle: frames arriving mid-analysis are answered from
// the last completed result instead of queueing.
package vision

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// Detector is the perception capability. May take hundreds of milliseconds
// per call.
type Detector interface {
	Detect(frame types.Frame) (processed []byte, label types.EmotionLabel, score float64, err error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(frame types.Frame) ([]byte, types.EmotionLabel, float64, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(frame types.Frame) ([]byte, types.EmotionLabel, float64, error) {
	return f(frame)
}

// Result is a completed (or cached) analysis answer.
type Result struct {
	Processed []byte
	Label     types.EmotionLabel
}

// Throttle enforces at most one analysis in flight for its stream.
type Throttle struct {
	detector      Detector
	onObservation func(types.Observation)
	metrics       *metrics.Metrics

	busy atomic.Bool

	mu     sync.Mutex
	latest *types.Frame // freshest buffer awaiting analysis
	last   Result
	warmed bool // true once any analysis has completed
}

// NewThrottle creates a throttle for one stream. onObservation is invoked
// once per completed (non-skipped) analysis; it may be nil.
func NewThrottle(detector Detector, onObservation func(types.Observation), m *metrics.Metrics) *Throttle {
	return &Throttle{
		detector:      detector,
		onObservation: onObservation,
		metrics:       m,
	}
}

// Submit offers a frame for analysis and returns a result immediately.
//
// If an analysis is already running, the frame replaces the pending buffer
// and the last completed result (or a neutral passthrough before the first
// completion) is returned without blocking. Otherwise the freshest buffer
// available at call time is analyzed synchronously.
func (t *Throttle) Submit(frame types.Frame) Result {
	t.metrics.FramesSubmitted.Add(1)

	t.mu.Lock()
	t.latest = &frame
	t.mu.Unlock()

	if !t.busy.CompareAndSwap(false, true) {
		t.metrics.FramesSkipped.Add(1)
		return t.cached(frame)
	}
	defer t.busy.Store(false)

	t.mu.Lock()
	pending := t.latest
	t.latest = nil
	t.mu.Unlock()
	if pending == nil {
		return t.cached(frame)
	}

	start := time.Now()
	processed, label, score, err := t.detector.Detect(*pending)
	t.metrics.UpdateAnalysisLatency(time.Since(start))

	if err != nil {
		// Degrade: pass the undecorated frame through, record an error
		// observation. Failures never reach the caller.
		t.metrics.AnalysisErrors.Add(1)
		logger.Warn("Vision", "Analysis failed: %v", err)
		processed = pending.Data
		label = types.LabelError
		score = 0
	}
	t.metrics.FramesAnalyzed.Add(1)

	result := Result{Processed: processed, Label: label}
	t.mu.Lock()
	t.last = result
	t.warmed = true
	t.mu.Unlock()

	if t.onObservation != nil {
		t.onObservation(types.Observation{Label: label, Score: score})
	}
	t.metrics.Observations.Add(1)

	return result
}

// cached returns the last completed result, or a neutral passthrough of
// the submitted frame when nothing has completed yet.
func (t *Throttle) cached(frame types.Frame) Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.warmed {
		return t.last
	}
	return Result{Processed: frame.Data, Label: types.LabelNeutral}
}
