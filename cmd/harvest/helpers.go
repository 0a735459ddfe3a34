package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/cli"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/extract"
	"github.com/Veraticus/spice-harvest/internal/importer"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/recipe"
	"github.com/Veraticus/spice-harvest/internal/scrape"
	"github.com/Veraticus/spice-harvest/internal/service"
	"github.com/Veraticus/spice-harvest/internal/storage"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func newScraper() *scrape.Scraper {
	extractor := extract.NewExtractor(config.LoadExtractConfig(), slog.Default())
	return scrape.New(extractor, slog.Default())
}

func newPlayer(scraper recipe.Scraper, pace bool) *recipe.Player {
	return recipe.NewPlayer(scraper, recipe.Options{
		Vision: config.LoadVisionConfig(),
		Pace:   pace,
	}, slog.Default())
}

func newImporter(store service.Storage) (*importer.Importer, error) {
	matcher, err := config.LoadMatcher()
	if err != nil {
		return nil, err
	}
	return importer.New(store, matcher, slog.Default()), nil
}

// browserFlags are the flags every command that drives Chrome accepts.
type browserFlags struct {
	remoteURL string
	target    string
}

func (f *browserFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.remoteURL, "remote-url", "", "DevTools endpoint of a running Chrome (default: browser.remote_url, or launch one)")
	cmd.Flags().StringVar(&f.target, "target", "", "attach to an existing tab by target ID")
}

// openSession connects to Chrome and wraps the tab in a session. ctx bounds the
// driver's lifetime.
func (f *browserFlags) openSession(ctx context.Context) (*browser.Session, error) {
	cfg := config.LoadBrowserConfig()
	if f.remoteURL != "" {
		cfg.RemoteURL = f.remoteURL
	}
	cfg.TargetID = f.target

	driver, err := browser.NewChromeDriver(ctx, cfg, slog.Default())
	if err != nil {
		if cfg.RemoteURL == "" {
			return nil, err
		}
		return nil, common.NewUserError(
			"Could not reach Chrome at "+cfg.RemoteURL+". Start it with --remote-debugging-port or fix browser.remote_url.", err)
	}
	return browser.NewSession("cli", driver), nil
}

// importFlags control what happens to candidates once they are in hand.
type importFlags struct {
	account           string
	execute           bool
	includeDuplicates bool
	json              bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.account, "account", "a", "", "account to reconcile against and import into")
	cmd.Flags().BoolVar(&f.execute, "execute", false, "write the new rows instead of only previewing them")
	cmd.Flags().BoolVar(&f.includeDuplicates, "include-duplicates", false, "with --execute, also write rows that matched existing history")
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON instead of tables")
}

// reconcile previews candidates against the account and, with --execute, writes them.
// Without an account the candidates are only printed.
func (f *importFlags) reconcile(ctx context.Context, w io.Writer, store service.Storage, candidates []model.Candidate, source string) error {
	if f.account == "" {
		if f.execute {
			return fmt.Errorf("--execute needs --account")
		}
		if f.json {
			return writeJSON(w, candidates)
		}
		return cli.RenderCandidates(w, candidates)
	}

	imp, err := newImporter(store)
	if err != nil {
		return err
	}

	preview, err := imp.Preview(ctx, candidates, f.account)
	if err != nil {
		return err
	}

	if !f.execute {
		if f.json {
			return writeJSON(w, preview)
		}
		if err := cli.RenderPreview(w, preview); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, cli.FormatInfo("Preview only. Run again with --execute to import."))
		return err
	}

	result, err := imp.Execute(ctx, preview, f.account, importer.ExecuteOptions{
		Source:         source,
		SkipDuplicates: !f.includeDuplicates,
	})
	if err != nil {
		return err
	}

	if f.json {
		return writeJSON(w, result)
	}
	if err := cli.RenderPreview(w, preview); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Imported %d, skipped %d into %s", result.Imported, result.Skipped, f.account)))
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
