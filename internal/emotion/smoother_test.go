package emotion

import (
	"math"
	"testing"

	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEmptyWindowIsNeutral(t *testing.T) {
	s := NewSmoother(10)
	got := s.Current()
	if got.Label != types.LabelNeutral || got.Confidence != 0 {
		t.Fatalf("expected neutral/0, got %s/%v", got.Label, got.Confidence)
	}
}

func TestModeWithMeanConfidence(t *testing.T) {
	s := NewSmoother(10)
	s.Observe(types.LabelHappy, 0.9)
	s.Observe(types.LabelHappy, 0.8)
	s.Observe(types.LabelSad, 0.6)
	got := s.Observe(types.LabelHappy, 0.7)

	if got.Label != types.LabelHappy {
		t.Fatalf("expected happy, got %s", got.Label)
	}
	if !almostEqual(got.Confidence, 0.8) {
		t.Fatalf("expected confidence 0.8, got %v", got.Confidence)
	}
}

func TestTieBreakPrefersMostRecent(t *testing.T) {
	s := NewSmoother(10)
	s.Observe(types.LabelHappy, 0.9)
	s.Observe(types.LabelHappy, 0.9)
	s.Observe(types.LabelSad, 0.5)
	got := s.Observe(types.LabelSad, 0.7)

	if got.Label != types.LabelSad {
		t.Fatalf("tie must go to the most recent label, got %s", got.Label)
	}
	if !almostEqual(got.Confidence, 0.6) {
		t.Fatalf("expected confidence 0.6, got %v", got.Confidence)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	s := NewSmoother(3)
	s.Observe(types.LabelAngry, 1.0)
	s.Observe(types.LabelHappy, 0.5)
	s.Observe(types.LabelHappy, 0.5)
	// Pushes the angry observation out of the window.
	got := s.Observe(types.LabelSad, 0.5)

	if s.Len() != 3 {
		t.Fatalf("expected window length 3, got %d", s.Len())
	}
	if got.Label != types.LabelHappy {
		t.Fatalf("expected happy after eviction, got %s", got.Label)
	}
}

func TestErrorObservationsParticipate(t *testing.T) {
	s := NewSmoother(10)
	s.Observe(types.LabelError, 0)
	got := s.Observe(types.LabelError, 0)

	if got.Label != types.LabelError {
		t.Fatalf("error runs must be able to dominate the window, got %s", got.Label)
	}
	if got.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %v", got.Confidence)
	}
}

func TestZeroWindowFallsBackToDefault(t *testing.T) {
	s := NewSmoother(0)
	for i := 0; i < DefaultWindow+5; i++ {
		s.Observe(types.LabelHappy, 1)
	}
	if s.Len() != DefaultWindow {
		t.Fatalf("expected window capped at %d, got %d", DefaultWindow, s.Len())
	}
}
