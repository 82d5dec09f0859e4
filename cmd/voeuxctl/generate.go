package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/voeux/internal/simulate"
)

const outputPermission = 0o600

func newGenerateCmd() *cobra.Command {
	var (
		opts   simulate.GenerateOptions
		levels []string
		cutoff string
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic YAML catalog",
		Long: `Generates students, projects and wish lists for each level. Students
wish for up to max-choice shuffled projects of their own level with
non-increasing weights between 1 and 20.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Levels = parseLevels(levels)
			if cutoff != "" {
				t, err := time.Parse(time.RFC3339, cutoff)
				if err != nil {
					return fmt.Errorf("invalid --cutoff: %w", err)
				}
				opts.Cutoff = t
			}
			if !cmd.Flags().Changed("seed") {
				opts.Seed = uint64(time.Now().UnixNano())
			}

			data, err := simulate.Generate(opts).Marshal()
			if err != nil {
				return fmt.Errorf("encode catalog: %w", err)
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, outputPermission); err != nil {
				return fmt.Errorf("write catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "Levels to generate (default L1,L2,L3,M1,M2)")
	cmd.Flags().IntVar(&opts.StudentsPerLevel, "students", 30, "Students per level")
	cmd.Flags().IntVar(&opts.ProjectsPerLevel, "projects", 10, "Projects per level")
	cmd.Flags().IntVar(&opts.MaxChoice, "max-choice", 5, "Maximum wishes per student")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed (default: time based)")
	cmd.Flags().StringVar(&cutoff, "cutoff", "", "RFC3339 submission deadline (default: open)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}
