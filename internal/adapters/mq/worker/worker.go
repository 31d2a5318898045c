// Package worker drains the activity queue and hands each event to a
// Deliverer.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/playrank/internal/adapters/mq/queue"
	"github.com/okian/playrank/pkg/logger"
	"github.com/okian/playrank/pkg/metrics"
)

const defaultWorkerMultiplier = 2

// Event is what workers read off the queue.
type Event = queue.Event

// Deliverer performs the side effect for one event.
type Deliverer interface {
	Deliver(ctx context.Context, e Event) error
}

// Source is the consumer side of a queue.
type Source interface {
	Events() <-chan Event
}

// InMemoryWorker delivers events until its source is closed and drained or
// its context is cancelled.
type InMemoryWorker struct {
	source    Source
	deliverer Deliverer
	name      string
	done      chan struct{}
	logger    logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(source Source, deliverer Deliverer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:    source,
		deliverer: deliverer,
		name:      "worker",
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run blocks until the source closes or ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			observeQueueLatency(e)
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "error delivering event", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// observeQueueLatency records how long ago the activity behind e happened
// when it leaves the queue.
func observeQueueLatency(e Event) { //nolint:gocritic // hugeParam: Event is passed by value through the channel
	if e.At.IsZero() {
		return
	}
	if wait := time.Since(e.At); wait >= 0 {
		metrics.RecordQueueProcessingLatency(float64(wait.Milliseconds()))
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: Event is passed by value through the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.deliverer.Deliver(ctx, e); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "delivery_error")
		return fmt.Errorf("deliver activity for %s: %w", e.UserID, err)
	}
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	cancel  context.CancelFunc
	once    sync.Once
	logger  logger.Logger
}

// NewPool creates workerCount workers. workerCount < 1 picks a default based
// on the CPU count.
func NewPool(workerCount int, source Source, deliverer Deliverer) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(source, deliverer, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start launches every worker. Workers outlive ctx only until Shutdown.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain what is buffered, and cancels
// them if ctx expires first.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if closer, ok := p.source.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		for i, w := range p.workers {
			select {
			case <-w.done:
			case <-ctx.Done():
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = fmt.Errorf("worker pool shutdown: %w", ctx.Err())
			}
			if err != nil {
				break
			}
		}
		if p.cancel != nil {
			p.cancel()
		}
		metrics.UpdateWorkerCount(0)
	})
	return err
}
