package simulate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/voeux/internal/adapters/repository/memory"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/types"
	"github.com/okian/voeux/pkg/logger"
)

// Config drives a verification pass.
type Config struct {
	Levels    []model.Level
	Algorithm model.Algorithm
	// Workers bounds concurrent runs; zero runs every level at once.
	Workers int
	// Catalog, when set, enables seat and wish checks against the input.
	Catalog *memory.CatalogFile
}

// LevelResult is the outcome of one level.
type LevelResult struct {
	Level       model.Level
	Report      types.Report
	Assignments int
	Duration    time.Duration
	Err         error
}

// Verify runs every level concurrently, fetches the results back and
// checks them. Every level is attempted; the returned error joins the
// failures.
func Verify(ctx context.Context, c *Client, cfg Config) ([]LevelResult, error) {
	log := logger.Get().Named("simulate")
	if cfg.Algorithm == "" {
		cfg.Algorithm = model.AlgoGreedy
	}

	results := make([]LevelResult, len(cfg.Levels))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for i, level := range cfg.Levels {
		g.Go(func() error {
			start := time.Now()
			res := verifyLevel(gctx, c, cfg, level)
			res.Duration = time.Since(start)
			results[i] = res

			if res.Err != nil {
				log.Warn(gctx, "level failed verification", logger.String("level", string(level)), logger.Error(res.Err))
			} else {
				log.Info(gctx, "level verified",
					logger.String("level", string(level)),
					logger.Int("assigned", res.Report.Stats.AssignedCount),
					logger.Float64("satisfaction", res.Report.Stats.SatisfactionScore),
					logger.Duration("duration", res.Duration))
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("level %s: %w", r.Level, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func verifyLevel(ctx context.Context, c *Client, cfg Config, level model.Level) LevelResult {
	res := LevelResult{Level: level}

	report, err := c.Run(ctx, level, cfg.Algorithm)
	if err != nil {
		res.Err = fmt.Errorf("run: %w", err)
		return res
	}
	res.Report = report

	stored, err := c.Report(ctx, level, cfg.Algorithm)
	if err != nil {
		res.Err = fmt.Errorf("report: %w", err)
		return res
	}
	as, err := c.Assignments(ctx, level, cfg.Algorithm)
	if err != nil {
		res.Err = fmt.Errorf("assignments: %w", err)
		return res
	}
	res.Assignments = len(as)

	errs := CheckReport(level, cfg.Algorithm, report, as)
	if stored.RunID != report.RunID {
		errs = append(errs, fmt.Errorf("%w: stored run %s, ran %s", ErrInvariant, stored.RunID, report.RunID))
	}
	if cfg.Catalog != nil {
		errs = append(errs, CheckAgainstCatalog(*cfg.Catalog, level, as)...)
	}
	res.Err = errors.Join(errs...)
	return res
}

// CheckReport verifies the counts of a report against its assignment list.
func CheckReport(level model.Level, algorithm model.Algorithm, report types.Report, as []model.Assignment) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...))
	}

	if report.Level != level || report.Algorithm != algorithm {
		fail("report for %s/%s, want %s/%s", report.Level, report.Algorithm, level, algorithm)
	}
	st := report.Stats
	if st.AssignedCount != len(as) {
		fail("assigned_count %d, listed %d", st.AssignedCount, len(as))
	}
	if st.AssignedCount+st.UnassignedCount != st.TotalStudents {
		fail("assigned %d + unassigned %d != total %d", st.AssignedCount, st.UnassignedCount, st.TotalStudents)
	}
	u := report.Unassigned
	if n := len(u.NoWish) + len(u.SaturatedOnly) + u.OtherCount; n != st.UnassignedCount {
		fail("unassigned causes sum to %d, want %d", n, st.UnassignedCount)
	}
	if st.SatisfactionScore < 0 || st.SatisfactionScore > 100 {
		fail("satisfaction %.2f out of range", st.SatisfactionScore)
	}
	if st.AssignedCount == 0 && st.SatisfactionScore != 0 {
		fail("satisfaction %.2f with nobody assigned", st.SatisfactionScore)
	}

	seen := make(map[string]struct{}, len(as))
	for _, a := range as {
		if _, dup := seen[a.StudentID]; dup {
			fail("student %s assigned twice", a.StudentID)
		}
		seen[a.StudentID] = struct{}{}
		if a.Rank < 1 || a.Weight < model.MinWeight || a.Weight > model.MaxWeight {
			fail("student %s has rank %d weight %d", a.StudentID, a.Rank, a.Weight)
		}
	}
	for _, ref := range append(append([]types.StudentRef{}, u.NoWish...), u.SaturatedOnly...) {
		if _, ok := seen[ref.ID]; ok {
			fail("student %s both assigned and unassigned", ref.ID)
		}
	}
	return errs
}

// CheckAgainstCatalog verifies that assignments respect the catalog: each
// one follows a wish of the student and no project exceeds its groups.
func CheckAgainstCatalog(file memory.CatalogFile, level model.Level, as []model.Assignment) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...))
	}

	capacity := make(map[string]int)
	for _, p := range file.Projects {
		if p.Level == level {
			capacity[p.ID] = p.Capacity
		}
	}
	wished := make(map[string]map[string]model.Voeu)
	for _, s := range file.Students {
		if s.Level != level {
			continue
		}
		wished[s.ID] = make(map[string]model.Voeu, len(s.Voeux))
		for i, v := range s.Voeux {
			if v.Rank == 0 {
				v.Rank = i + 1
			}
			wished[s.ID][v.ProjectID] = v
		}
	}

	used := make(map[string]int)
	for _, a := range as {
		w, ok := wished[a.StudentID]
		if !ok {
			fail("student %s not in level %s", a.StudentID, level)
			continue
		}
		v, ok := w[a.ProjectID]
		if !ok {
			fail("student %s got unwished project %s", a.StudentID, a.ProjectID)
			continue
		}
		if v.Rank != a.Rank || v.Weight != a.Weight {
			fail("student %s on %s reported rank %d weight %d, wished rank %d weight %d",
				a.StudentID, a.ProjectID, a.Rank, a.Weight, v.Rank, v.Weight)
		}
		used[a.ProjectID]++
	}
	for id, n := range used {
		if n > capacity[id] {
			fail("project %s holds %d students over %d groups", id, n, capacity[id])
		}
	}
	return errs
}
