// Package worker runs queued assignment requests on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/voeux/internal/adapters/mq/queue"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/logger"
	"github.com/okian/voeux/pkg/metrics"
)

const defaultWorkerCount = 4

// ErrPanicked wraps a panic raised while executing a request.
var ErrPanicked = errors.New("worker: execution panicked")

// Executor performs one run. The worker reports its result on the request.
type Executor interface {
	Execute(ctx context.Context, req model.RunRequest) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req model.RunRequest) error

func (f ExecutorFunc) Execute(ctx context.Context, req model.RunRequest) error { return f(ctx, req) }

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Request
}

// Worker processes run requests using the provided executor.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue drains.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current request.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	executor Executor
	name     string
	busy     *atomic.Int64

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, executor Executor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		executor: executor,
		name:     "worker",
		busy:     new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case req, ok := <-requests:
			if !ok {
				return
			}
			w.process(ctx, req)
		}
	}
}

// Shutdown stops the worker and waits for its loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process executes one request and delivers exactly one outcome. The run
// outlives the caller's context so an abandoned wait never leaves a key
// RUNNING.
func (w *InMemoryWorker) process(ctx context.Context, req model.RunRequest) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.busy.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.busy.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	err := w.execute(context.WithoutCancel(ctx), req)
	if err != nil {
		metrics.RecordWorkerError()
		w.logger.Error(ctx, "run failed",
			logger.String("run_id", req.RunID),
			logger.String("key", req.Key().String()),
			logger.Error(err),
		)
	}

	if req.Done == nil {
		return
	}
	select {
	case req.Done <- model.RunOutcome{RunID: req.RunID, Err: err}:
	default:
		w.logger.Warn(ctx, "outcome dropped", logger.String("run_id", req.RunID))
	}
}

func (w *InMemoryWorker) execute(ctx context.Context, req model.RunRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return w.executor.Execute(ctx, req)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    atomic.Int64

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses the default.
func NewPool(workerCount int, q Queue, executor Executor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, executor, wopts...)
		w.busy = &p.busy
		p.workers[i] = w
	}

	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop stops all workers after their current request without draining.
func (p *Pool) Stop(ctx context.Context) error {
	var errs []error
	for _, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown closes the queue and lets the workers drain it. When ctx expires
// first, the workers are stopped and pending requests are left undelivered.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			err := p.Stop(stopCtx)
			cancel()
			return errors.Join(fmt.Errorf("drain timed out: %w", ctx.Err()), err)
		}
	}
	return nil
}
