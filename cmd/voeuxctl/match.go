package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/voeux/internal/adapters/repository/memory"
	service "github.com/okian/voeux/internal/app"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/types"
	"github.com/okian/voeux/pkg/logger"
)

type matchOutput struct {
	Report      types.Report       `json:"report"`
	Assignments []model.Assignment `json:"assignments"`
}

func newMatchCmd() *cobra.Command {
	var (
		catalogPath string
		level       string
		algorithm   string
		rankBlend   float64
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run an assignment over a catalog file without a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out, err := matchOffline(ctx, catalogPath, model.Level(level), algorithm, rankBlend)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog file")
	cmd.Flags().StringVar(&level, "level", "", "Level to assign")
	cmd.Flags().StringVar(&algorithm, "algorithm", string(model.AlgoGreedy), "Matching algorithm (algo1, algo2)")
	cmd.Flags().Float64Var(&rankBlend, "rank-blend", 0, "Blend of rank position into satisfaction (0..1)")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

// matchOffline runs the full service pipeline on an in-memory catalog.
func matchOffline(ctx context.Context, path string, level model.Level, algorithm string, rankBlend float64) (matchOutput, error) {
	catalog, err := memory.LoadCatalogFile(path)
	if err != nil {
		return matchOutput{}, err
	}

	svc := service.New(
		service.WithWorkerCount(1),
		service.WithLevels(level),
		service.WithSource(catalog),
		service.WithScoreRankBlend(rankBlend),
		service.WithLogger(logger.Get().Named("match")),
	)
	if err := svc.Start(ctx); err != nil {
		return matchOutput{}, fmt.Errorf("start service: %w", err)
	}
	defer func() { _ = svc.Stop(context.WithoutCancel(ctx)) }()

	report, err := svc.Run(ctx, level, algorithm)
	if err != nil {
		return matchOutput{}, err
	}
	as, err := svc.Assignments(ctx, level, algorithm)
	if err != nil {
		return matchOutput{}, err
	}
	return matchOutput{Report: report, Assignments: as}, nil
}
