// Package scrape turns the page in a browser session into candidate transactions.
//
// A scrape tries the vision provider once when one is configured. If that fails or
// finds nothing it falls back to structural DOM extraction. The two paths never run
// concurrently and nothing is retried.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/extract"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/vision"
)

// ProviderFactory builds a vision provider from config.
type ProviderFactory func(ctx context.Context, cfg vision.Config) (vision.Provider, error)

// Scraper runs the vision-first, DOM-fallback extraction.
type Scraper struct {
	extractor   *extract.Extractor
	newProvider ProviderFactory
	logger      *slog.Logger
	strategies  []extract.Strategy
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithProviderFactory replaces vision.NewProvider.
func WithProviderFactory(f ProviderFactory) Option {
	return func(s *Scraper) {
		s.newProvider = f
	}
}

// WithStrategies replaces extract.DefaultStrategies.
func WithStrategies(strategies []extract.Strategy) Option {
	return func(s *Scraper) {
		s.strategies = strategies
	}
}

// New creates a scraper.
func New(extractor *extract.Extractor, logger *slog.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		extractor:   extractor,
		newProvider: vision.NewProvider,
		logger:      common.ComponentLogger(logger, "scrape"),
		strategies:  extract.DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeSession holds session for the duration of one scrape. It fails with
// common.ErrSessionBusy when a recording or playback owns the window.
func (s *Scraper) ScrapeSession(ctx context.Context, session *browser.Session, cfg vision.Config) ([]model.Candidate, error) {
	if err := session.Acquire(browser.OwnerScraper); err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Release(browser.OwnerScraper); err != nil {
			s.logger.Error("failed to release session", "session", session.ID, "error", err)
		}
	}()

	return s.Scrape(ctx, session.Driver(), cfg)
}

// Scrape captures page and extracts candidates from it. The caller must already own
// the window the page belongs to.
func (s *Scraper) Scrape(ctx context.Context, page browser.Page, cfg vision.Config) ([]model.Candidate, error) {
	snap, err := s.capture(ctx, page, cfg.Enabled())
	if err != nil {
		return nil, err
	}
	return s.ScrapeSnapshot(ctx, snap, cfg)
}

// ScrapeSnapshot runs extraction over an already captured snapshot.
func (s *Scraper) ScrapeSnapshot(ctx context.Context, snap model.PageSnapshot, cfg vision.Config) ([]model.Candidate, error) {
	if snap.Empty() {
		return nil, common.ErrNoSnapshot
	}

	if cfg.Enabled() {
		candidates, err := s.tryVision(ctx, snap, cfg)
		if err == nil {
			s.logger.Info("vision extraction succeeded", "provider", cfg.Provider, "rows", len(candidates))
			return candidates, nil
		}
		s.logger.Info("falling back to DOM extraction", "provider", cfg.Provider, "reason", err)
	}

	if snap.HTML == "" {
		return nil, fmt.Errorf("%w: no DOM to fall back on", common.ErrNoSnapshot)
	}

	dom, err := extract.SnapshotFromHTML(snap.URL, snap.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNoSnapshot, err)
	}

	candidates := extract.Dedupe(s.extractor.Extract(dom, s.strategies))
	s.logger.Info("DOM extraction finished", "url", snap.URL, "rows", len(candidates))
	return candidates, nil
}

// tryVision makes the single vision attempt. Any error or an empty result means the
// caller falls back.
func (s *Scraper) tryVision(ctx context.Context, snap model.PageSnapshot, cfg vision.Config) ([]model.Candidate, error) {
	provider, err := s.newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, common.ErrVisionDisabled
	}

	raw, err := provider.Extract(ctx, snap)
	if err != nil {
		return nil, err
	}

	candidates := extract.Dedupe(s.extractor.Normalize(raw))
	if len(candidates) == 0 {
		return nil, common.ErrVisionEmpty
	}
	return candidates, nil
}

func (s *Scraper) capture(ctx context.Context, page browser.Page, withScreenshot bool) (model.PageSnapshot, error) {
	snap := model.PageSnapshot{CapturedAt: time.Now()}

	url, err := page.URL(ctx)
	if err != nil {
		s.logger.Debug("could not read page URL", "error", err)
	}
	snap.URL = url

	html, htmlErr := page.OuterHTML(ctx)
	snap.HTML = html

	var shotErr error
	if withScreenshot {
		snap.Screenshot, shotErr = page.Screenshot(ctx)
		if shotErr != nil {
			s.logger.Debug("screenshot failed", "error", shotErr)
		}
	}

	if snap.Empty() {
		if cause := errors.Join(htmlErr, shotErr); cause != nil {
			return snap, fmt.Errorf("%w: %w", common.ErrNoSnapshot, cause)
		}
		return snap, common.ErrNoSnapshot
	}
	return snap, nil
}
