package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/wrangler/internal/config"
	"github.com/Iron-Ham/wrangler/internal/coordinator"
	"github.com/Iron-Ham/wrangler/internal/event"
	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lifecycle coordinator",
	Long: `Starts the coordinator and keeps it running until interrupted.

On startup any snapshot from a previous run is recovered and persisted
resumable contexts are surfaced as resume candidates. On SIGINT/SIGTERM a
final snapshot is written before exit, so suspended conversations survive
the restart. Configuration changes are picked up without a restart.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	st, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	bus := event.NewBus()
	coord := coordinator.New(cfg, st, bus, logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}
	config.Watch(coord.ApplyConfig)

	logger.Info("wrangler running", "data_dir", cfg.DataDir())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", "signal", sig.String())
	cancel()
	if err := coord.Stop(); err != nil {
		return fmt.Errorf("shutdown snapshot failed: %w", err)
	}
	return nil
}
