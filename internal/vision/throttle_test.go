package vision

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// blockingDetector parks inside Detect until released.
type blockingDetector struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newBlockingDetector() *blockingDetector {
	return &blockingDetector{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (d *blockingDetector) Detect(frame types.Frame) ([]byte, types.EmotionLabel, float64, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.entered <- struct{}{}
	<-d.release
	return append([]byte("done:"), frame.Data...), types.LabelHappy, 0.9, nil
}

func (d *blockingDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func frame(data string) types.Frame {
	return types.Frame{Data: []byte(data), Width: 2, Height: 2, Timestamp: time.Now()}
}

func TestSubmitRunsDetectorSynchronously(t *testing.T) {
	m := metrics.New()
	var observed []types.Observation
	tr := NewThrottle(DetectorFunc(func(f types.Frame) ([]byte, types.EmotionLabel, float64, error) {
		return append([]byte("ok:"), f.Data...), types.LabelHappy, 0.8, nil
	}), func(obs types.Observation) {
		observed = append(observed, obs)
	}, m)

	res := tr.Submit(frame("a"))
	if string(res.Processed) != "ok:a" || res.Label != types.LabelHappy {
		t.Fatalf("unexpected result %q/%s", res.Processed, res.Label)
	}
	if len(observed) != 1 || observed[0].Label != types.LabelHappy || observed[0].Score != 0.8 {
		t.Fatalf("unexpected observations %+v", observed)
	}
	if m.FramesAnalyzed.Load() != 1 || m.FramesSkipped.Load() != 0 {
		t.Fatalf("unexpected counters: analyzed=%d skipped=%d", m.FramesAnalyzed.Load(), m.FramesSkipped.Load())
	}
}

func TestOverlappingSubmitSkipsWithoutBlocking(t *testing.T) {
	m := metrics.New()
	det := newBlockingDetector()
	tr := NewThrottle(det, nil, m)

	first := make(chan Result, 1)
	go func() { first <- tr.Submit(frame("a")) }()
	<-det.entered // analysis of "a" is now in flight

	// Before any completion the skip path answers with a neutral passthrough.
	res := tr.Submit(frame("b"))
	if string(res.Processed) != "b" || res.Label != types.LabelNeutral {
		t.Fatalf("expected neutral passthrough, got %q/%s", res.Processed, res.Label)
	}
	if m.FramesSkipped.Load() != 1 {
		t.Fatalf("expected 1 skip, got %d", m.FramesSkipped.Load())
	}

	close(det.release)
	got := <-first
	if string(got.Processed) != "done:a" {
		t.Fatalf("unexpected first result %q", got.Processed)
	}
	if det.callCount() != 1 {
		t.Fatalf("expected a single detector call, got %d", det.callCount())
	}
}

func TestSkipReturnsLastCompletedResult(t *testing.T) {
	m := metrics.New()
	det := newBlockingDetector()
	tr := NewThrottle(det, nil, m)

	// Warm the cache with one completed analysis.
	done := make(chan Result, 1)
	go func() { done <- tr.Submit(frame("a")) }()
	<-det.entered
	det.release <- struct{}{}
	<-done

	// Start a second analysis and overlap it.
	go func() { done <- tr.Submit(frame("b")) }()
	<-det.entered

	res := tr.Submit(frame("c"))
	if string(res.Processed) != "done:a" || res.Label != types.LabelHappy {
		t.Fatalf("expected cached result, got %q/%s", res.Processed, res.Label)
	}

	det.release <- struct{}{}
	<-done
}

func TestDetectorErrorDegradesToPassthrough(t *testing.T) {
	m := metrics.New()
	var observed []types.Observation
	tr := NewThrottle(DetectorFunc(func(f types.Frame) ([]byte, types.EmotionLabel, float64, error) {
		return nil, types.LabelNeutral, 0, errors.New("model crashed")
	}), func(obs types.Observation) {
		observed = append(observed, obs)
	}, m)

	res := tr.Submit(frame("a"))
	if string(res.Processed) != "a" {
		t.Fatalf("expected undecorated frame back, got %q", res.Processed)
	}
	if res.Label != types.LabelError {
		t.Fatalf("expected error label, got %s", res.Label)
	}
	if len(observed) != 1 || observed[0].Label != types.LabelError || observed[0].Score != 0 {
		t.Fatalf("expected an error observation, got %+v", observed)
	}
	if m.AnalysisErrors.Load() != 1 {
		t.Fatalf("expected 1 analysis error, got %d", m.AnalysisErrors.Load())
	}
}

func TestPassthroughDetector(t *testing.T) {
	processed, label, score, err := Passthrough().Detect(frame("x"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(processed) != "x" || label != types.LabelNeutral || score != 0 {
		t.Fatalf("unexpected passthrough result %q/%s/%v", processed, label, score)
	}
}
