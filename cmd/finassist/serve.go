package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/calmcall/finassist/internal/httpapi"
	"github.com/calmcall/finassist/pkg/job"
	"github.com/calmcall/finassist/pkg/version"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		logger := setupLogger(cfg.Log)
		logger.Info("Starting API server",
			slog.String("service", "finassist"),
			slog.String("version", version.Version),
			slog.String("commit", version.GitCommit),
			slog.String("addr", cfg.HTTP.Addr))

		ctx, cancel := signalContext()
		defer cancel()

		rt, err := newRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		api := httpapi.New(httpapi.Options{
			Providers:      rt.providers,
			Store:          rt.store,
			Search:         rt.search,
			LiveKitURL:     cfg.LiveKit.URL,
			Credentials:    job.Credentials{APIKey: cfg.LiveKit.APIKey, APISecret: cfg.LiveKit.APISecret},
			TokenTTL:       cfg.LiveKit.TokenTTL,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			Metrics:        rt.metrics,
			Logger:         logger,
		})

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return serve(ctx, srv, logger)
	},
}

// serve runs srv until ctx ends, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides FINASSIST_HTTP_ADDR)")
}
