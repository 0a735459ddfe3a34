package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/model"
)

func scrapeCmd() *cobra.Command {
	var (
		browserOpts browserFlags
		importOpts  importFlags
		htmlFile    string
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Extract transactions from the page open in Chrome",
		Long: `Capture the current page of a Chrome tab and extract the transactions on it.

Vision extraction is tried first when a provider is configured; otherwise, or when
it fails, the page's DOM is read directly. With --account the rows are reconciled
against that account's history and, with --execute, imported.`,
		Example: `  # Extract from the tab Chrome is showing
  harvest scrape --remote-url http://localhost:9222

  # Extract from a saved page and preview it against an account
  harvest scrape --html statement.html --account checking`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			scraper := newScraper()
			visionCfg := config.LoadVisionConfig()

			var candidates []model.Candidate
			if htmlFile != "" {
				markup, err := os.ReadFile(htmlFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", htmlFile, err)
				}
				candidates, err = scraper.ScrapeSnapshot(ctx, model.PageSnapshot{
					CapturedAt: time.Now(),
					URL:        "file://" + htmlFile,
					HTML:       string(markup),
				}, visionCfg)
				if err != nil {
					return err
				}
			} else {
				session, err := browserOpts.openSession(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = session.Driver().Close() }()

				candidates, err = scraper.ScrapeSession(ctx, session, visionCfg)
				if err != nil {
					return err
				}
			}

			return importOpts.reconcile(ctx, cmd.OutOrStdout(), store, candidates, "scrape")
		},
	}

	browserOpts.register(cmd)
	importOpts.register(cmd)
	cmd.Flags().StringVar(&htmlFile, "html", "", "extract from a saved HTML file instead of a live tab")

	return cmd
}
