// Package inflight enforces at most one running assignment per level.
package inflight

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/voeux/internal/domain/model"
)

// Guard hands out exclusive per-level run slots.
type Guard interface {
	// TryAcquire claims the level without waiting. It returns false when
	// another run already holds it.
	TryAcquire(ctx context.Context, level model.Level) (bool, error)

	// Release frees a level claimed by this guard. Releasing a free level
	// is a no-op.
	Release(ctx context.Context, level model.Level) error

	// Size is the number of levels currently held through this guard.
	Size() int64
}

// memoryGuard keeps held levels in process memory.
type memoryGuard struct {
	mu   sync.Mutex
	held map[model.Level]struct{}
	size atomic.Int64
}

// NewMemoryGuard creates a guard valid within a single process.
func NewMemoryGuard() Guard {
	return &memoryGuard{held: make(map[model.Level]struct{})}
}

func (g *memoryGuard) TryAcquire(_ context.Context, level model.Level) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[level]; busy {
		return false, nil
	}
	g.held[level] = struct{}{}
	g.size.Add(1)
	return true, nil
}

func (g *memoryGuard) Release(_ context.Context, level model.Level) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[level]; busy {
		delete(g.held, level)
		g.size.Add(-1)
	}
	return nil
}

func (g *memoryGuard) Size() int64 {
	return g.size.Load()
}
