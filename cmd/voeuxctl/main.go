// Command voeuxctl generates catalogs, matches them offline and verifies a
// running voeux service.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:           "voeuxctl",
		Short:         "Tooling for the voeux assignment service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr(), logFormat); err != nil {
				return err
			}
			return logger.SetLevelString(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(newGenerateCmd(), newMatchCmd(), newVerifyCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

func parseLevels(names []string) []model.Level {
	out := make([]model.Level, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, model.Level(n))
		}
	}
	return out
}
