// Package service wires the domain engines, stores and worker pool into the
// operations served by the HTTP API.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/voeux/internal/adapters/mq/queue"
	"github.com/okian/voeux/internal/adapters/mq/worker"
	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/adapters/repository/memory"
	"github.com/okian/voeux/internal/domain/diagnostics"
	"github.com/okian/voeux/internal/domain/inflight"
	"github.com/okian/voeux/internal/domain/matching"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/preference"
	"github.com/okian/voeux/internal/domain/scoring"
	"github.com/okian/voeux/pkg/logger"
	"github.com/okian/voeux/pkg/metrics"
)

const (
	defaultWorkerCount = 4
	defaultQueueSize   = 64
)

// Service implements the API dependencies for the assignment system.
type Service struct {
	mu sync.RWMutex

	// Pluggable backends
	source repository.Source
	store  repository.ResultStore
	guard  inflight.Guard

	// Engines
	validator *preference.Validator
	engine    *matching.Engine
	scorer    *scoring.Scorer
	reporter  *diagnostics.Reporter

	// Run pipeline
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	cancel  context.CancelFunc
	replies sync.Map // run id -> chan types.Report

	statusMu sync.RWMutex
	statuses map[model.RunKey]model.RunStatus

	// Configuration
	workerCount int
	queueSize   int
	levels      []model.Level
	rankBlend   float64
	now         func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of run workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the run queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLevels restricts runs to the given levels. Empty accepts any level.
func WithLevels(levels ...model.Level) Option {
	return func(s *Service) {
		s.levels = slices.Clone(levels)
	}
}

// WithScoreRankBlend blends the rank component into the satisfaction score.
func WithScoreRankBlend(alpha float64) Option {
	return func(s *Service) {
		s.rankBlend = alpha
	}
}

// WithSource sets the catalog the runs read from.
func WithSource(src repository.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithStore sets where completed runs are kept.
func WithStore(store repository.ResultStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithGuard sets the per-level run lock.
func WithGuard(g inflight.Guard) Option {
	return func(s *Service) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithClock overrides the time source for deadlines and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		statuses:    make(map[model.RunKey]model.RunStatus),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the missing components and starts the worker pool. The
// workers run until Stop, not until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if s.source == nil {
		catalog, err := memory.NewCatalog(memory.CatalogFile{})
		if err != nil {
			return fmt.Errorf("empty catalog: %w", err)
		}
		s.source = catalog
	}
	if s.store == nil {
		s.store = memory.NewResultStore()
	}
	if s.guard == nil {
		s.guard = inflight.NewMemoryGuard()
	}

	s.validator = preference.NewValidator(preference.WithClock(s.now))
	s.engine = matching.New(matching.WithVerification(true))
	s.scorer = scoring.New(scoring.WithRankBlend(s.rankBlend))
	s.reporter = diagnostics.NewReporter()

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.ExecutorFunc(s.Execute),
		worker.WithLogger(s.logger.Named("worker")))
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "assignment service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Any("levels", s.levels),
	)
	return nil
}

// Stop drains queued runs and stops the workers. Runs still queued when ctx
// expires are failed with reason "shutdown" and their level is released.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping assignment service...")

	err := s.pool.Shutdown(ctx)
	s.cancel()
	s.started = false
	for _, req := range s.queue.Drain() {
		s.abandon(context.WithoutCancel(ctx), req)
	}
	if err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "assignment service stopped")
	return nil
}

// abandon fails a request no worker picked up.
func (s *Service) abandon(ctx context.Context, req model.RunRequest) {
	now := s.now()
	s.setStatus(model.RunStatus{
		Level:      req.Level,
		Algorithm:  req.Algorithm,
		State:      model.RunFailed,
		RunID:      req.RunID,
		StartedAt:  req.Requested,
		FinishedAt: now,
		Reason:     "shutdown",
	})
	metrics.RecordRun(string(req.Level), string(req.Algorithm), "failed", millis(now.Sub(req.Requested)))
	s.release(ctx, req.Level)
	s.logger.Warn(ctx, "run dropped at shutdown",
		logger.String("run_id", req.RunID),
		logger.String("key", req.Key().String()),
	)

	if req.Done == nil {
		return
	}
	select {
	case req.Done <- model.RunOutcome{RunID: req.RunID, Err: ErrNotStarted}:
	default:
	}
}

// running returns the queue when the service accepts work.
func (s *Service) running() (*queue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.queue, nil
}

func (s *Service) checkLevel(level model.Level) error {
	if level == "" {
		return fmt.Errorf("%w: empty", ErrUnknownLevel)
	}
	if len(s.levels) > 0 && !slices.Contains(s.levels, level) {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"levels":      s.levels,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["runsInFlight"] = s.guard.Size()
		stats["runs"] = s.Statuses()
	}
	return stats
}
