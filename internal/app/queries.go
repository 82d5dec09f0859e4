package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/preference"
	"github.com/okian/voeux/internal/domain/types"
	"github.com/okian/voeux/pkg/logger"
	"github.com/okian/voeux/pkg/metrics"
)

// DefaultReportAlgorithm is used when a read names no algorithm.
const DefaultReportAlgorithm = model.AlgoGreedy

func (s *Service) latest(ctx context.Context, level model.Level, algorithm string) (repository.Record, error) {
	if algorithm == "" {
		algorithm = string(DefaultReportAlgorithm)
	}
	algo, err := model.ParseAlgorithm(algorithm)
	if err != nil {
		return repository.Record{}, err
	}
	if err := s.checkLevel(level); err != nil {
		return repository.Record{}, err
	}
	if _, err := s.running(); err != nil {
		return repository.Record{}, err
	}
	return s.store.Latest(ctx, model.RunKey{Level: level, Algorithm: algo})
}

// Report returns the report of the latest COMPLETE run. It never waits for
// a run in flight.
func (s *Service) Report(ctx context.Context, level model.Level, algorithm string) (types.Report, error) {
	rec, err := s.latest(ctx, level, algorithm)
	if err != nil {
		return types.Report{}, err
	}
	return rec.Report, nil
}

// Assignments returns the placements of the latest COMPLETE run.
func (s *Service) Assignments(ctx context.Context, level model.Level, algorithm string) ([]model.Assignment, error) {
	rec, err := s.latest(ctx, level, algorithm)
	if err != nil {
		return nil, err
	}
	return rec.Allocation.Assignments, nil
}

// SubmitVoeux validates a student's complete draft and replaces the stored
// wish list. Rejections are *preference.ValidationError.
func (s *Service) SubmitVoeux(ctx context.Context, studentID string, wishes []preference.Wish) ([]model.Voeu, error) {
	if _, err := s.running(); err != nil {
		return nil, err
	}

	st, err := s.source.Student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	deadline, err := s.source.Deadline(ctx, st.Level)
	if err != nil {
		return nil, fmt.Errorf("deadline: %w", err)
	}
	offered, err := s.source.Projects(ctx, st.Level)
	if err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}

	voeux, err := s.validator.Validate(preference.Submission{
		StudentID: st.ID,
		Level:     st.Level,
		Wishes:    wishes,
		Offered:   offered,
	}, deadline)
	if err != nil {
		reason := "invalid"
		var verr *preference.ValidationError
		if errors.As(err, &verr) {
			reason = verr.Reason()
		}
		metrics.RecordVoeuxRejected(reason)
		s.logger.Debug(ctx, "voeux rejected",
			logger.String("student_id", studentID),
			logger.String("reason", reason),
		)
		return nil, err
	}

	if err := s.source.ReplaceVoeux(ctx, st.ID, voeux); err != nil {
		return nil, fmt.Errorf("store voeux: %w", err)
	}
	metrics.RecordVoeuxAccepted()
	return voeux, nil
}
