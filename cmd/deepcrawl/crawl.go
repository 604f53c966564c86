package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlforge/deepcrawl/internal/job"
	"github.com/crawlforge/deepcrawl/internal/progress"
	"github.com/crawlforge/deepcrawl/internal/progress/sinks"
)

func newCrawlCmd(configPath *string) *cobra.Command {
	var (
		depth       int
		maxPages    int
		concurrency int
		sitemap     bool
		domains     []string
	)

	cmd := &cobra.Command{
		Use:   "crawl <url> [url...]",
		Short: "Run a one-shot crawl from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			runner, store, err := buildRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			if depth < 0 {
				depth = cfg.Crawler.MaxDepth
			}
			if maxPages <= 0 {
				maxPages = cfg.Crawler.MaxPages
			}
			if concurrency <= 0 {
				concurrency = cfg.Crawler.Concurrency
			}

			req := job.Request{
				Sitemap:        sitemap,
				MaxDepth:       depth,
				MaxPages:       maxPages,
				Concurrency:    concurrency,
				AllowedDomains: domains,
			}
			if len(args) == 1 {
				req.URL = args[0]
			} else {
				req.URLs = args
			}

			broadcaster := progress.NewBroadcaster(progress.Config{Logger: logger}, sinks.NewLog(logger))
			t := job.NewTracker(uuid.New(), maxPages, broadcaster, logger)
			runner.Run(cmd.Context(), t, req)

			snap := t.Snapshot()
			if snap.Status != job.StatusCompleted {
				return fmt.Errorf("crawl finished with status %s: %s", snap.Status, snap.Error)
			}
			logger.Info("crawl completed",
				zap.Int("pages", snap.PagesCrawled),
				zap.String("job_id", snap.ID.String()))
			fmt.Printf("crawled %d pages\n", snap.PagesCrawled)
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", -1, "link-following depth (config default when unset)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap (config default when unset)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "worker count for multi-URL crawls")
	cmd.Flags().BoolVar(&sitemap, "sitemap", false, "treat the URL as a sitemap and crawl its entries")
	cmd.Flags().StringSliceVar(&domains, "domains", nil, "allowed domains (seed's domain when unset)")
	return cmd
}
