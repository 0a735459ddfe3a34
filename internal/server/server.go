// Package server exposes sessions, recording, playback, recipes and import over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/importer"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/recipe"
	"github.com/Veraticus/spice-harvest/internal/service"
	"github.com/Veraticus/spice-harvest/internal/vision"
)

// Attacher opens a driver for a new session. ctx bounds the driver's lifetime.
type Attacher func(ctx context.Context, cfg browser.ChromeConfig) (browser.Driver, error)

// SessionScraper scrapes whatever a session currently shows.
type SessionScraper interface {
	ScrapeSession(ctx context.Context, session *browser.Session, cfg vision.Config) ([]model.Candidate, error)
}

// Config holds server configuration.
type Config struct {
	Addr           string
	AllowedOrigins []string
	Browser        browser.ChromeConfig // defaults for POST /api/sessions
	Vision         vision.Config
}

// Deps are the components the handlers drive.
type Deps struct {
	Sessions *browser.Registry
	Recorder *recipe.Recorder
	Player   *recipe.Player
	Scraper  SessionScraper
	Recipes  service.RecipeStore
	Importer *importer.Importer
	Attach   Attacher // nil launches or attaches to Chrome via chromedp
}

// Server is the HTTP API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	logger    *slog.Logger
	cfg       Config
	deps      Deps
	ctx       context.Context // outlives requests; bounds drivers and playbacks
	cancel    context.CancelFunc
	playbacks map[string]*activePlayback
	mu        sync.Mutex
}

// New creates a new HTTP server.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8765"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*", "https://localhost:*", "https://127.0.0.1:*"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:    chi.NewRouter(),
		logger:    common.ComponentLogger(logger, "server"),
		cfg:       cfg,
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		playbacks: make(map[string]*activePlayback),
	}
	if s.deps.Attach == nil {
		s.deps.Attach = s.attachChrome
	}

	s.setupMiddleware()
	s.setupRoutes()

	// No write timeout: scrapes wait on vision providers and event streams stay open.
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleAttachSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.handleCloseSession)
				r.Post("/scrape", s.handleScrape)
				r.Post("/recording", s.handleStartRecording)
				r.Get("/recording", s.handleRecordingSteps)
				r.Delete("/recording", s.handleStopRecording)
				r.Post("/recording/wait", s.handleMarkWait)
				r.Post("/playbacks", s.handleStartPlayback)
			})
		})

		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", s.handleListRecipes)
			r.Post("/", s.handleSaveRecipe)
			r.Get("/{id}", s.handleGetRecipe)
			r.Delete("/{id}", s.handleDeleteRecipe)
		})

		r.Route("/playbacks/{id}", func(r chi.Router) {
			r.Get("/", s.handlePlaybackStatus)
			r.Delete("/", s.handleCancelPlayback)
			r.Post("/input", s.handlePlaybackInput)
			r.Get("/events", s.handlePlaybackEvents)
		})

		r.Route("/import", func(r chi.Router) {
			r.Post("/preview", s.handleImportPreview)
			r.Post("/execute", s.handleImportExecute)
		})
	})
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.cfg.Addr)
	return s.server.ListenAndServe()
}

// StartTLS is Start over HTTPS with cert.
func (s *Server) StartTLS(cert tls.Certificate) error {
	s.logger.Info("starting HTTPS server", "addr", s.cfg.Addr)
	s.server.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return s.server.ListenAndServeTLS("", "")
}

// Shutdown cancels running playbacks, stops accepting requests and closes every
// browser session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.cancel()
	err := s.server.Shutdown(ctx)
	if s.deps.Sessions != nil {
		if closeErr := s.deps.Sessions.Close(); closeErr != nil {
			s.logger.Warn("failed to close browser sessions", "error", closeErr)
		}
	}
	return err
}

func (s *Server) attachChrome(ctx context.Context, cfg browser.ChromeConfig) (browser.Driver, error) {
	return browser.NewChromeDriver(ctx, cfg, s.logger)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
