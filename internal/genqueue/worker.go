package genqueue

import (
	"context"
	"time"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/internal/metrics"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// Generator is the slow generation capability. It is assumed non-reentrant,
// so the worker never runs two calls concurrently.
type Generator interface {
	Generate(ctx context.Context, emotion types.EmotionLabel, metadata map[string]string) ([]byte, error)
}

// Dispatcher receives completed artifacts for delivery.
type Dispatcher interface {
	Dispatch(owner types.OwnerRef, data []byte, metadata map[string]string) error
}

// Worker drains the queue on a single goroutine, invoking the generation
// capability one request at a time.
type Worker struct {
	queue   *Queue
	gen     Generator
	disp    Dispatcher
	metrics *metrics.Metrics
}

// NewWorker creates a worker over the given queue and collaborators.
func NewWorker(queue *Queue, gen Generator, disp Dispatcher, m *metrics.Metrics) *Worker {
	return &Worker{
		queue:   queue,
		gen:     gen,
		disp:    disp,
		metrics: m,
	}
}

// Run loops until the context is cancelled. A failed generation is logged
// and dropped without retry: a superseding request will arrive soon enough,
// and retrying stale state is wasted latency.
func (w *Worker) Run(ctx context.Context) {
	logger.Info("Worker", "Generation worker started")
	for {
		req, err := w.queue.Next(ctx)
		if err != nil {
			logger.Info("Worker", "Generation worker stopping: %v", err)
			return
		}

		w.metrics.GenerationsStarted.Add(1)
		start := time.Now()
		data, err := w.gen.Generate(ctx, req.Emotion, req.Metadata)
		w.metrics.UpdateGenerationLatency(time.Since(start))

		if err != nil {
			w.metrics.GenerationsFailed.Add(1)
			logger.Error("Worker", "Generation failed for %s (owner=%s priority=%s): %v",
				req.Emotion, req.Owner.Key(), req.Priority, err)
			continue
		}
		w.metrics.GenerationsCompleted.Add(1)

		if req.Priority == types.PriorityHigh {
			w.queue.RecordCompleted(req)
		}

		if err := w.disp.Dispatch(req.Owner, data, req.Metadata); err != nil {
			w.metrics.DispatchErrors.Add(1)
			logger.Error("Worker", "Dispatch failed for owner %s: %v", req.Owner.Key(), err)
		}
	}
}
