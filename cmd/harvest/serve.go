package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/certs"
	"github.com/Veraticus/spice-harvest/internal/config"
	"github.com/Veraticus/spice-harvest/internal/recipe"
	"github.com/Veraticus/spice-harvest/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		addr   string
		useTLS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local HTTP API",
		Long: `Serve sessions, recording, playback, recipes and import over HTTP for a browser
extension or local UI. Playback state changes stream over a websocket at
/api/playbacks/{id}/events.

The API listens on 127.0.0.1 by default and only accepts browser requests from
localhost origins unless server.allowed_origins says otherwise.

With --tls the API is served over HTTPS using a self-signed localhost certificate
kept in server.cert_dir. Trust the printed certificate file once in the browser.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			imp, err := newImporter(store)
			if err != nil {
				return err
			}

			listen, origins := config.LoadServerConfig()
			if addr != "" {
				listen = addr
			}

			scraper := newScraper()
			srv := server.New(server.Config{
				Addr:           listen,
				AllowedOrigins: origins,
				Browser:        config.LoadBrowserConfig(),
				Vision:         config.LoadVisionConfig(),
			}, server.Deps{
				Sessions: browser.NewRegistry(slog.Default()),
				Recorder: recipe.NewRecorder(slog.Default()),
				Player:   newPlayer(scraper, false),
				Scraper:  scraper,
				Recipes:  store,
				Importer: imp,
			}, slog.Default())

			start := srv.Start
			if useTLS || viper.GetBool("server.tls") {
				certDir, err := config.CertDir()
				if err != nil {
					return err
				}
				manager := certs.NewFileManager(certDir)
				cert, err := manager.GetOrCreateCertificate()
				if err != nil {
					return fmt.Errorf("failed to prepare TLS certificate: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Serving HTTPS with %s\n", manager.CertFile())
				start = func() error { return srv.StartTLS(cert) }
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down cleanly: %w", err)
			}
			slog.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "serve HTTPS with a self-signed localhost certificate")
	return cmd
}
