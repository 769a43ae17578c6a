// Package emitter rate-limits the two update cadences feeding the
// generation queue. It samples: state between fires is discarded.
package emitter

import (
	"sync"
	"time"

	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// Default cadences. The slow channel represents the more deliberate state
// and maps to high priority downstream.
const (
	DefaultFastInterval = 500 * time.Millisecond
	DefaultSlowInterval = time.Second
)

// Sink receives a fired update with its dispatch priority.
type Sink func(priority types.Priority, smoothed types.SmoothedEmotion)

// Fired reports which channels fired on one MaybeEmit call.
type Fired struct {
	Fast bool
	Slow bool
}

// Emitter tracks the last fire time of each cadence for one session.
type Emitter struct {
	mu           sync.Mutex
	fastInterval time.Duration
	slowInterval time.Duration
	lastFast     time.Time
	lastSlow     time.Time
	sink         Sink
}

// New creates an Emitter with the given cadences and sink.
// Non-positive intervals fall back to the defaults.
func New(fastInterval, slowInterval time.Duration, sink Sink) *Emitter {
	if fastInterval <= 0 {
		fastInterval = DefaultFastInterval
	}
	if slowInterval <= 0 {
		slowInterval = DefaultSlowInterval
	}
	return &Emitter{
		fastInterval: fastInterval,
		slowInterval: slowInterval,
		sink:         sink,
	}
}

// MaybeEmit fires each cadence whose interval has elapsed since its last
// fire. The checks are independent; both may fire on the same call. Fired
// channels hand (priority, smoothed) to the sink: fast maps to low
// priority, slow to high.
func (e *Emitter) MaybeEmit(now time.Time, smoothed types.SmoothedEmotion) Fired {
	e.mu.Lock()
	var fired Fired
	if now.Sub(e.lastFast) >= e.fastInterval {
		e.lastFast = now
		fired.Fast = true
	}
	if now.Sub(e.lastSlow) >= e.slowInterval {
		e.lastSlow = now
		fired.Slow = true
	}
	e.mu.Unlock()

	if e.sink == nil {
		return fired
	}
	if fired.Fast {
		e.sink(types.PriorityLow, smoothed)
	}
	if fired.Slow {
		e.sink(types.PriorityHigh, smoothed)
	}
	return fired
}
