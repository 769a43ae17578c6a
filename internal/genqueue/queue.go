// Package genqueue holds the priority-coalescing dispatch queue and the
// serialized generation worker that drains it.
package genqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// slots is the per-session pending state: at most one request per priority
// level, overwritten in place, plus the last completed high-priority
// request used for keep-alive replay.
type slots struct {
	latestHigh *types.GenerationRequest
	latestLow  *types.GenerationRequest
	lastHigh   *types.GenerationRequest
}

func (s *slots) empty() bool {
	return s.latestHigh == nil && s.latestLow == nil && s.lastHigh == nil
}

// Queue coalesces generation requests per session and priority level.
// N rapid enqueues of the same priority collapse to one dispatched job
// carrying only the newest payload.
type Queue struct {
	mu       sync.Mutex
	sessions map[string]*slots
	wake     chan struct{} // level-triggered, capacity 1
	metrics  *metrics.Metrics
}

// New creates an empty queue.
func New(m *metrics.Metrics) *Queue {
	return &Queue{
		sessions: make(map[string]*slots),
		wake:     make(chan struct{}, 1),
		metrics:  m,
	}
}

// Enqueue stores the request in its session's slot for the request's
// priority, replacing any older pending request of the same priority, and
// signals the worker.
func (q *Queue) Enqueue(req types.GenerationRequest) error {
	key := req.Owner.Key()
	if key == "" {
		return fmt.Errorf("%w: request has no owner", types.ErrInvalidRequest)
	}

	q.mu.Lock()
	s := q.sessions[key]
	if s == nil {
		s = &slots{}
		q.sessions[key] = s
	}
	switch req.Priority {
	case types.PriorityHigh:
		if s.latestHigh != nil {
			q.metrics.RequestsCoalesced.Add(1)
		}
		s.latestHigh = &req
	default:
		if s.latestLow != nil {
			q.metrics.RequestsCoalesced.Add(1)
		}
		s.latestLow = &req
	}
	q.mu.Unlock()

	q.metrics.RequestsEnqueued.Add(1)
	q.signal()
	return nil
}

// Next returns the next request to run, blocking until one is available or
// the context is cancelled. Selection order per wake: any pending
// high-priority request, else any pending low-priority request, else a
// keep-alive replay of some session's last completed high-priority request.
func (q *Queue) Next(ctx context.Context) (types.GenerationRequest, error) {
	for {
		if req, ok := q.take(); ok {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return types.GenerationRequest{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// take applies the priority and keep-alive rules under the lock.
func (q *Queue) take() (types.GenerationRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.sessions {
		if s.latestHigh != nil {
			req := *s.latestHigh
			s.latestHigh = nil
			return req, true
		}
	}
	for _, s := range q.sessions {
		if s.latestLow != nil {
			req := *s.latestLow
			s.latestLow = nil
			return req, true
		}
	}
	for key, s := range q.sessions {
		if s.lastHigh != nil {
			// Re-arm the wake signal so the worker loop does not stall
			// waiting on an event that will never re-fire.
			q.signal()
			q.metrics.KeepAliveReplays.Add(1)
			logger.Debug("Queue", "No pending items, replaying last high-priority request for %s", key)
			return *s.lastHigh, true
		}
	}
	return types.GenerationRequest{}, false
}

// RecordCompleted caches a successfully generated high-priority request as
// the session's keep-alive filler. Low-priority completions never touch it.
func (q *Queue) RecordCompleted(req types.GenerationRequest) {
	if req.Priority != types.PriorityHigh {
		return
	}
	key := req.Owner.Key()

	q.mu.Lock()
	s := q.sessions[key]
	if s == nil {
		s = &slots{}
		q.sessions[key] = s
	}
	s.lastHigh = &req
	q.mu.Unlock()

	q.signal()
}

// Forget drops all pending and keep-alive state for an owner. Called when
// a live session detaches so replay does not run for a dead client.
func (q *Queue) Forget(ownerKey string) {
	q.mu.Lock()
	delete(q.sessions, ownerKey)
	q.mu.Unlock()
}

// Pending reports whether the owner currently has any queued or keep-alive
// state.
func (q *Queue) Pending(ownerKey string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.sessions[ownerKey]
	return s != nil && !s.empty()
}

// signal arms the level-triggered wake channel without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
