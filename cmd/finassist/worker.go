package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/calmcall/finassist/internal/worker"
	"github.com/calmcall/finassist/pkg/version"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker management commands",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the dispatch server and run assigned jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		url, token := workerEndpoint(cmd, cfg.LiveKit.WorkerURL, cfg.LiveKit.WorkerToken)
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		logger := setupLogger(cfg.Log)
		logger.Info("Starting worker",
			slog.String("service", "finassist"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.String("url", url),
			slog.Bool("dry_run", dryRun))

		if url == "" {
			return fmt.Errorf("--url or FINASSIST_WORKER_URL is required")
		}
		if token == "" {
			return fmt.Errorf("--token or FINASSIST_WORKER_TOKEN is required")
		}
		if cfg.LiveKit.URL == "" {
			return fmt.Errorf("LIVEKIT_URL is required to join assigned rooms")
		}

		ctx, cancel := signalContext()
		defer cancel()

		rt, err := newRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		if dryRun {
			logger.Info("Dry run mode - configuration valid, exiting")
			return nil
		}

		handler := worker.JobHandlerFunc(func(ctx context.Context, a worker.Assignment) error {
			rt.metrics.JobStarted()
			err := rt.runRoomJob(ctx, a.JobID, cfg.LiveKit.URL, a.Token, a.RoomName)
			status := worker.JobStatusCompleted
			if err != nil {
				status = worker.JobStatusFailed
			}
			rt.metrics.JobFinished(status)
			return err
		})

		w := worker.New(worker.Config{URL: url, Token: token}, handler, logger)
		if err := w.Run(ctx); err != nil {
			logger.Error("Worker failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	},
}

var workerHealthzCmd = &cobra.Command{
	Use:   "healthz",
	Short: "Validate worker configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		url, token := workerEndpoint(cmd, cfg.LiveKit.WorkerURL, cfg.LiveKit.WorkerToken)

		logger := setupLogger(cfg.Log)
		logger.Info("Performing health check",
			slog.String("service", "finassist"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit))

		if url == "" {
			return fmt.Errorf("--url is required for health check")
		}
		if token == "" {
			return fmt.Errorf("--token is required for health check")
		}

		logger.Info("Health check passed - required parameters validated")
		return nil
	},
}

// workerEndpoint prefers flags over configuration.
func workerEndpoint(cmd *cobra.Command, url, token string) (string, string) {
	if v, _ := cmd.Flags().GetString("url"); v != "" {
		url = v
	}
	if v, _ := cmd.Flags().GetString("token"); v != "" {
		token = v
	}
	return url, token
}

func init() {
	workerRunCmd.Flags().String("url", "", "Dispatch server WebSocket URL")
	workerRunCmd.Flags().String("token", "", "Dispatch server token")
	workerRunCmd.Flags().Bool("dry-run", false, "Dry run mode - validate config and exit")

	workerHealthzCmd.Flags().String("url", "", "Dispatch server WebSocket URL")
	workerHealthzCmd.Flags().String("token", "", "Dispatch server token")

	workerCmd.AddCommand(workerRunCmd, workerHealthzCmd)
}
