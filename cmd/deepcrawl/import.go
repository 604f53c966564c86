package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlforge/deepcrawl/internal/storage"
)

func newImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <artifact.json>",
		Short: "Import a crawl results file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.DB.DSN == "" {
				return errors.New("db.dsn must be configured to import")
			}
			store, err := storage.NewPostgresStore(cmd.Context(), cfg.DB.DSN, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			importer := storage.NewImporter(storage.ImporterConfig{}, store, logger)
			stats, err := importer.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("imported %d pages, skipped %d existing, %d failed\n",
				stats.Imported, stats.Skipped, stats.Failed)
			if stats.Failed > 0 {
				return fmt.Errorf("%d pages failed to import", stats.Failed)
			}
			return nil
		},
	}
}
