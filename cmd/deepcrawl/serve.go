package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/api"
	"github.com/crawlforge/deepcrawl/internal/job"
	"github.com/crawlforge/deepcrawl/internal/progress"
	"github.com/crawlforge/deepcrawl/internal/progress/sinks"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, store, err := buildRunner(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			broadcaster := progress.NewBroadcaster(progress.Config{Logger: logger}, sinks.NewLog(logger))
			manager := job.NewManager(cfg.Jobs.Retention, broadcaster, logger)

			server := api.NewServer(manager, runner, broadcaster, cfg.Crawler, logger)
			httpServer := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      server.Handler(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("shutdown incomplete", zap.Error(err))
			}
			broadcaster.Close(shutdownCtx)
			return nil
		},
	}
}
