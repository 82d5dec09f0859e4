package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/voeux/internal/adapters/repository/memory"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/simulate"
)

func newVerifyCmd() *cobra.Command {
	var (
		baseURL     string
		levels      []string
		algorithm   string
		workers     int
		timeout     time.Duration
		catalogPath string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run levels concurrently against a service and check the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			algo, err := model.ParseAlgorithm(algorithm)
			if err != nil {
				return err
			}
			cfg := simulate.Config{Levels: parseLevels(levels), Algorithm: algo, Workers: workers}
			if len(cfg.Levels) == 0 {
				cfg.Levels = simulate.DefaultLevels
			}
			if catalogPath != "" {
				file, err := readCatalog(catalogPath)
				if err != nil {
					return err
				}
				cfg.Catalog = &file
			}

			ctx := cmd.Context()
			client := simulate.NewClient(baseURL, simulate.WithTimeout(timeout))
			if err := client.Health(ctx); err != nil {
				return err
			}

			results, err := simulate.Verify(ctx, client, cfg)
			out := cmd.OutOrStdout()
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = "FAIL"
				}
				fmt.Fprintf(out, "%-4s %-5s assigned=%d/%d satisfaction=%.2f duration=%s\n",
					status, r.Level, r.Report.Stats.AssignedCount, r.Report.Stats.TotalStudents,
					r.Report.Stats.SatisfactionScore, r.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:9080", "Base URL of the service")
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "Levels to run (default L1,L2,L3,M1,M2)")
	cmd.Flags().StringVar(&algorithm, "algorithm", string(model.AlgoGreedy), "Matching algorithm (algo1, algo2)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent runs (default: all levels at once)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "HTTP request timeout")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog the service was seeded with, for seat and wish checks")
	return cmd
}

func readCatalog(path string) (memory.CatalogFile, error) {
	var file memory.CatalogFile
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("read catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("decode catalog: %w", err)
	}
	return file, nil
}
