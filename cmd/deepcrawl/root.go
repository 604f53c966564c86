package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/config"
	"github.com/crawlforge/deepcrawl/internal/extract"
	"github.com/crawlforge/deepcrawl/internal/job"
	"github.com/crawlforge/deepcrawl/internal/llm"
	"github.com/crawlforge/deepcrawl/internal/logging"
	"github.com/crawlforge/deepcrawl/internal/storage"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deepcrawl",
		Short: "Domain-scoped web crawler with LLM summarization and embeddings",
		Long: "deepcrawl recursively crawls a site, extracts page content as markdown,\n" +
			"summarizes and embeds it with a local LLM, and persists the results\n" +
			"locally and to Postgres.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newCrawlCmd(&configPath))
	cmd.AddCommand(newImportCmd(&configPath))
	return cmd
}

// bootstrap loads config and builds the logger shared by all subcommands.
func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// buildRunner assembles a job runner from config, connecting the store when a
// DSN is configured.
func buildRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*job.Runner, storage.Store, error) {
	var store storage.Store
	if cfg.DB.DSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DB.DSN, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect store: %w", err)
		}
		store = pg
	} else {
		logger.Info("no database configured, results go to local artifacts only")
	}

	runner := job.NewRunner(job.RunnerConfig{
		Extract: extract.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			Timeout:       cfg.HTTP.Timeout,
			MaxRetries:    cfg.HTTP.MaxRetries,
			RetryDelay:    cfg.HTTP.RetryDelay,
			RespectRobots: cfg.HTTP.RespectRobots,
		},
		LLM: llm.Config{
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			SystemPrompt:   cfg.LLM.SystemPrompt,
			TargetDim:      cfg.LLM.EmbeddingDim,
			Timeout:        cfg.LLM.Timeout,
			Logger:         logger,
		},
		MaxRequestsPerSecond: cfg.Crawler.MaxRequestsPerSecond,
		MinRequestInterval:   cfg.Crawler.MinRequestInterval,
		MaxChunkSize:         cfg.Crawler.MaxChunkSize,
		ArtifactDir:          cfg.Storage.ArtifactDir,
		Store:                store,
		SitemapTimeout:       30 * time.Second,
		Logger:               logger,
	})
	return runner, store, nil
}
