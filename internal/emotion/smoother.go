// Package emotion reduces a stream of raw per-frame observations to a
// stable majority label with a confidence score.
package emotion

import (
	"sync"

	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// DefaultWindow is the observation history capacity.
const DefaultWindow = 10

// Smoother keeps a bounded FIFO of observations for one stream and reduces
// it to a SmoothedEmotion on every push.
type Smoother struct {
	mu      sync.Mutex
	window  int
	history []types.Observation
}

// NewSmoother creates a Smoother with the given window capacity.
// A capacity <= 0 falls back to DefaultWindow.
func NewSmoother(window int) *Smoother {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Smoother{
		window:  window,
		history: make([]types.Observation, 0, window),
	}
}

// Observe appends one observation, evicting the oldest beyond capacity,
// and returns the recomputed smoothed emotion.
func (s *Smoother) Observe(label types.EmotionLabel, score float64) types.SmoothedEmotion {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, types.Observation{Label: label, Score: score})
	if len(s.history) > s.window {
		s.history = s.history[1:]
	}

	return s.reduceLocked()
}

// Current returns the smoothed emotion for the window without mutating it.
func (s *Smoother) Current() types.SmoothedEmotion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reduceLocked()
}

// reduceLocked computes the mode label and the mean score of observations
// carrying it. Ties go to the label whose most recent observation is newest.
func (s *Smoother) reduceLocked() types.SmoothedEmotion {
	if len(s.history) == 0 {
		return types.SmoothedEmotion{Label: types.LabelNeutral, Confidence: 0}
	}

	counts := make(map[types.EmotionLabel]int, len(s.history))
	lastIndex := make(map[types.EmotionLabel]int, len(s.history))
	for i, obs := range s.history {
		counts[obs.Label]++
		lastIndex[obs.Label] = i
	}

	var mode types.EmotionLabel
	best := -1
	for label, n := range counts {
		switch {
		case n > best:
			mode, best = label, n
		case n == best && lastIndex[label] > lastIndex[mode]:
			mode = label
		}
	}

	var sum float64
	for _, obs := range s.history {
		if obs.Label == mode {
			sum += obs.Score
		}
	}

	return types.SmoothedEmotion{
		Label:      mode,
		Confidence: sum / float64(best),
	}
}

// Len returns the number of observations currently in the window.
func (s *Smoother) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
