package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/metrics"
)

type records map[model.RunKey]repository.Record

// ResultStore publishes completed runs as immutable snapshots. Readers load
// the current snapshot without locking; writers copy it and swap.
type ResultStore struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[records]
}

var _ repository.ResultStore = (*ResultStore)(nil)

// NewResultStore creates an empty store.
func NewResultStore() *ResultStore {
	s := &ResultStore{}
	empty := records{}
	s.snapshot.Store(&empty)
	return s
}

func (s *ResultStore) Replace(_ context.Context, rec repository.Record) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(backendName, "replace_result", float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.snapshot.Load()
	next := make(records, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[rec.Key] = rec
	s.snapshot.Store(&next)
	return nil
}

func (s *ResultStore) Latest(_ context.Context, key model.RunKey) (repository.Record, error) {
	rec, ok := (*s.snapshot.Load())[key]
	if !ok {
		return repository.Record{}, fmt.Errorf("run %s: %w", key, repository.ErrNotFound)
	}
	return rec, nil
}
