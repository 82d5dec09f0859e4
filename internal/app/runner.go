package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/voeux/internal/adapters/mq/queue"
	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/matching"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/types"
	"github.com/okian/voeux/pkg/logger"
	"github.com/okian/voeux/pkg/metrics"
)

// Run executes one assignment run and waits for its report. A level that
// already has a run in flight is rejected with ErrConcurrentRun without
// queueing. If ctx ends first the run still completes in the background.
func (s *Service) Run(ctx context.Context, level model.Level, algorithm string) (types.Report, error) {
	algo, err := model.ParseAlgorithm(algorithm)
	if err != nil {
		return types.Report{}, err
	}
	if err := s.checkLevel(level); err != nil {
		return types.Report{}, err
	}
	q, err := s.running()
	if err != nil {
		return types.Report{}, err
	}

	ok, err := s.guard.TryAcquire(ctx, level)
	if err != nil {
		return types.Report{}, fmt.Errorf("acquire level %s: %w", level, err)
	}
	if !ok {
		metrics.RecordRunRejected(string(level), "in_progress")
		s.logger.Info(ctx, "run rejected, level busy",
			logger.String("level", string(level)),
			logger.String("algorithm", string(algo)),
		)
		return types.Report{}, fmt.Errorf("level %s: %w", level, ErrConcurrentRun)
	}

	req := model.RunRequest{
		RunID:     uuid.NewString(),
		Level:     level,
		Algorithm: algo,
		Requested: s.now(),
		Done:      make(chan model.RunOutcome, 1),
	}
	prev := s.setStatus(model.RunStatus{
		Level:     level,
		Algorithm: algo,
		State:     model.RunRunning,
		RunID:     req.RunID,
		StartedAt: req.Requested,
	})

	reply := make(chan types.Report, 1)
	s.replies.Store(req.RunID, reply)
	defer s.replies.Delete(req.RunID)

	if err := q.Enqueue(ctx, req); err != nil {
		s.restoreStatus(req.Key(), req.RunID, prev)
		s.release(context.WithoutCancel(ctx), level)
		if errors.Is(err, queue.ErrFull) {
			metrics.RecordRunRejected(string(level), "queue_full")
			return types.Report{}, ErrBackpressure
		}
		if errors.Is(err, queue.ErrClosed) {
			return types.Report{}, ErrNotStarted
		}
		return types.Report{}, err
	}

	select {
	case out := <-req.Done:
		if errors.Is(out.Err, ErrNotStarted) {
			return types.Report{}, ErrNotStarted
		}
		if out.Err != nil {
			return types.Report{}, fmt.Errorf("%w: %w", ErrRunFailed, out.Err)
		}
	case <-ctx.Done():
		return types.Report{}, ctx.Err()
	}

	// Execute hands over the report before the worker signals Done.
	select {
	case report := <-reply:
		return report, nil
	default:
		return types.Report{}, fmt.Errorf("%w: run %s produced no report", ErrRunFailed, req.RunID)
	}
}

// Execute runs the pipeline of one queued request. It is called by the
// worker pool and always releases the level lock before returning.
func (s *Service) Execute(ctx context.Context, req model.RunRequest) error {
	start := s.now()
	metrics.RunStarted()
	defer metrics.RunFinished()
	defer s.release(ctx, req.Level)

	log := s.logger.With(
		logger.String("run_id", req.RunID),
		logger.String("level", string(req.Level)),
		logger.String("algorithm", string(req.Algorithm)),
	)

	fail := func(reason string, err error) error {
		s.setStatus(model.RunStatus{
			Level:      req.Level,
			Algorithm:  req.Algorithm,
			State:      model.RunFailed,
			RunID:      req.RunID,
			StartedAt:  start,
			FinishedAt: s.now(),
			Reason:     reason,
		})
		metrics.RecordRun(string(req.Level), string(req.Algorithm), "failed", millis(s.now().Sub(start)))
		return err
	}

	in, err := s.source.LoadLevel(ctx, req.Level)
	if err != nil {
		log.Error(ctx, "load level", logger.Error(err))
		return fail("load_failed", fmt.Errorf("load level: %w", err))
	}
	if len(in.Students) == 0 || len(in.Projects) == 0 {
		log.Warn(ctx, "input incomplete, run completes trivially",
			logger.Int("students", len(in.Students)),
			logger.Int("projects", len(in.Projects)),
		)
	}

	alloc, err := s.engine.Run(req.Algorithm, in)
	if err != nil {
		var conflict *matching.ConflictError
		if errors.As(err, &conflict) {
			log.Error(ctx, "capacity conflict", logger.Error(err), logger.Any("input", in))
			return fail("capacity_conflict", err)
		}
		log.Error(ctx, "matching rejected input", logger.Error(err))
		return fail("invalid_input", err)
	}

	score := s.scorer.Score(in, alloc)
	report := types.NewReport(req.RunID, alloc, s.reporter.Analyze(in, alloc), score)

	rec := repository.Record{
		RunID:       req.RunID,
		Key:         req.Key(),
		Allocation:  alloc,
		Report:      report,
		CompletedAt: s.now().UTC(),
	}
	if err := s.store.Replace(ctx, rec); err != nil {
		log.Error(ctx, "store result", logger.Error(err))
		return fail("store_failed", fmt.Errorf("store result: %w", err))
	}

	if ch, ok := s.replies.LoadAndDelete(req.RunID); ok {
		ch.(chan types.Report) <- report
	}
	s.setStatus(model.RunStatus{
		Level:      req.Level,
		Algorithm:  req.Algorithm,
		State:      model.RunComplete,
		RunID:      req.RunID,
		StartedAt:  start,
		FinishedAt: rec.CompletedAt,
	})
	elapsed := s.now().Sub(start)
	metrics.RecordRun(string(req.Level), string(req.Algorithm), "complete", millis(elapsed))
	metrics.UpdateRunResult(string(req.Level), string(req.Algorithm), score.Satisfaction, score.Assigned, score.Unassigned)

	log.Info(ctx, "run complete",
		logger.Int("assigned", score.Assigned),
		logger.Int("unassigned", score.Unassigned),
		logger.Float64("satisfaction", score.Satisfaction),
		logger.Duration("elapsed", elapsed),
	)
	return nil
}

func (s *Service) release(ctx context.Context, level model.Level) {
	if err := s.guard.Release(ctx, level); err != nil {
		s.logger.Error(ctx, "release level", logger.String("level", string(level)), logger.Error(err))
	}
}

// setStatus stores st and returns the status it replaced.
func (s *Service) setStatus(st model.RunStatus) model.RunStatus {
	key := model.RunKey{Level: st.Level, Algorithm: st.Algorithm}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	prev, ok := s.statuses[key]
	if !ok {
		prev = model.RunStatus{Level: st.Level, Algorithm: st.Algorithm, State: model.RunIdle}
	}
	s.statuses[key] = st
	return prev
}

// restoreStatus undoes a RUNNING status for a request that never queued.
func (s *Service) restoreStatus(key model.RunKey, runID string, prev model.RunStatus) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if cur, ok := s.statuses[key]; ok && cur.RunID == runID {
		s.statuses[key] = prev
	}
}

// Status returns the state of the latest run of a key.
func (s *Service) Status(level model.Level, algorithm string) (model.RunStatus, error) {
	algo, err := model.ParseAlgorithm(algorithm)
	if err != nil {
		return model.RunStatus{}, err
	}
	if err := s.checkLevel(level); err != nil {
		return model.RunStatus{}, err
	}

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	if st, ok := s.statuses[model.RunKey{Level: level, Algorithm: algo}]; ok {
		return st, nil
	}
	return model.RunStatus{Level: level, Algorithm: algo, State: model.RunIdle}, nil
}

// Statuses lists the known run states ordered by key.
func (s *Service) Statuses() []model.RunStatus {
	s.statusMu.RLock()
	out := make([]model.RunStatus, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st)
	}
	s.statusMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Algorithm < out[j].Algorithm
	})
	return out
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
