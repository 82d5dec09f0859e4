// Package queue defines the contract for enqueuing and consuming run requests.
//
// The in-memory implementation is a bounded buffered channel; a full queue
// rejects instead of blocking so callers can answer with backpressure.
package queue

import (
	"context"
	"sync"

	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/metrics"
)

const defaultQueueCapacity = 64

// Request is the payload type flowing through the queue.
type Request = model.RunRequest

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a request without waiting. It returns ErrFull when no
	// slot is free and ErrClosed after Close.
	Enqueue(ctx context.Context, r Request) error

	// Dequeue returns a channel that receives requests as they become
	// available. The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Request

	// Drain removes and returns every pending request without waiting.
	Drain() []Request

	// Len returns the current number of pending requests.
	Len(ctx context.Context) int

	// Close stops accepting requests. Pending ones are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	requests chan Request
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = make(chan Request, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a request to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected()
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected()
		return err
	}

	select {
	case q.requests <- r:
		q.observe()
		return nil
	default:
		metrics.RecordQueueRejected()
		return ErrFull
	}
}

// Dequeue returns the queue channel itself. Every receive takes exactly one
// request, so nothing sits between the queue and a consumer.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Request {
	return q.requests
}

// Drain removes and returns the requests still pending. After Close it
// empties the queue for good.
func (q *InMemoryQueue) Drain() []Request {
	var out []Request
	defer q.observe()
	for {
		select {
		case r, ok := <-q.requests:
			if !ok {
				return out
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

// Len returns the current number of pending requests.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

func (q *InMemoryQueue) observe() int {
	size := len(q.requests)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.requests)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
