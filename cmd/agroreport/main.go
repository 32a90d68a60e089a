// Command agroreport runs the field-report services: the Telegram bot, the
// extraction workers and the reporting API, plus a few maintenance tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LazarevaL/agro-llm-hack/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agroreport",
		Short:         "Turn agronomists' field reports into a summary table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newBotCmd(),
		newWorkerCmd(),
		newAPICmd(),
		newMigrateCmd(),
		newExportCmd(),
		newExtractCmd(),
		newRectifyCmd(),
		newDBHealthCmd(),
	)
	return root
}

// setup loads the environment config, validates it for roles and installs
// the process logger.
func setup(roles ...common.Role) (*common.Config, *slog.Logger, error) {
	cfg := common.LoadConfig()
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	if len(roles) > 0 {
		if err := cfg.Validate(roles...); err != nil {
			return nil, nil, err
		}
	}
	return cfg, logger, nil
}

func newLogger(cfg common.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
