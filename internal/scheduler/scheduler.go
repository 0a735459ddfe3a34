// Package scheduler replays recorded recipes on a cron schedule and imports what they
// scrape, with sensitive values taken from the environment.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/importer"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

// Job is one configured unattended replay. Cron takes six fields, seconds first, or a
// descriptor such as @daily.
type Job struct {
	RecipeID  string `mapstructure:"recipe" json:"recipe"`
	Cron      string `mapstructure:"cron" json:"cron"`
	AccountID string `mapstructure:"account" json:"account"`
}

// Validate checks that the job names a recipe, an account and a parseable schedule.
func (j Job) Validate() error {
	if j.RecipeID == "" || j.AccountID == "" {
		return fmt.Errorf("%w: schedule needs recipe and account", common.ErrInvalidConfig)
	}
	if _, err := cronParser.Parse(j.Cron); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", common.ErrInvalidConfig, j.Cron, err)
	}
	return nil
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// RecipeSource looks up recipes by ID.
type RecipeSource interface {
	GetRecipe(ctx context.Context, id string) (*model.Recipe, error)
}

// Player starts playbacks.
type Player interface {
	Play(ctx context.Context, session *browser.Session, r model.Recipe, input recipe.SensitiveInputFunc) (*recipe.Playback, error)
}

// Importer reconciles and stores scraped candidates.
type Importer interface {
	Import(ctx context.Context, candidates []model.Candidate, accountID string, opts importer.ExecuteOptions) (model.Preview, model.ImportResult, error)
}

// SessionOpener opens a fresh browser session for one run. The scheduler closes the
// session's driver when the run ends.
type SessionOpener func(ctx context.Context) (*browser.Session, error)

// Options configures a Scheduler.
type Options struct {
	Lookup     func(string) (string, bool) // secret lookup; default os.LookupEnv
	RunTimeout time.Duration               // bound on one replay plus import; default 10m
}

// Scheduler runs replay jobs on their schedules.
type Scheduler struct {
	cron     *cron.Cron
	recipes  RecipeSource
	player   Player
	importer Importer
	open     SessionOpener
	lookup   func(string) (string, bool)
	logger   *slog.Logger
	timeout  time.Duration
}

// New creates a scheduler. Jobs are added with Add.
func New(recipes RecipeSource, player Player, imp Importer, open SessionOpener, opts Options, logger *slog.Logger) *Scheduler {
	logger = common.ComponentLogger(logger, "scheduler")
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}

	cronLogger := cronLogAdapter{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		recipes:  recipes,
		player:   player,
		importer: imp,
		open:     open,
		lookup:   opts.Lookup,
		logger:   logger,
		timeout:  opts.RunTimeout,
	}
}

// Add registers job on its schedule.
func (s *Scheduler) Add(job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(job.Cron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunNow(ctx, job); err != nil {
			s.logger.Error("scheduled replay failed", "recipe", job.RecipeID, "account", job.AccountID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: schedule %q: %v", common.ErrInvalidConfig, job.Cron, err)
	}

	s.logger.Info("replay scheduled", "recipe", job.RecipeID, "account", job.AccountID, "cron", job.Cron)
	return nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

// RunNow replays job's recipe in a new session, then previews and executes the import
// with duplicates skipped.
func (s *Scheduler) RunNow(ctx context.Context, job Job) (model.ImportResult, error) {
	r, err := s.recipes.GetRecipe(ctx, job.RecipeID)
	if err != nil {
		return model.ImportResult{}, err
	}

	session, err := s.open(ctx)
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("failed to open browser: %w", err)
	}

	s.logger.Info("replaying recipe", "recipe", r.ID, "name", r.Name, "steps", len(r.Steps))
	pb, err := s.player.Play(ctx, session, *r, EnvSecrets(r.ID, s.lookup))
	if err != nil {
		s.closeBrowser(session)
		return model.ImportResult{}, err
	}
	result, err := pb.Wait(ctx)
	if err != nil {
		pb.Cancel()
		<-pb.Done()
		// The window stays on the page that failed so it can be inspected.
		s.logger.Warn("replay failed, browser left open", "recipe", r.ID, "error", err)
		return model.ImportResult{}, err
	}
	s.closeBrowser(session)

	_, imported, err := s.importer.Import(ctx, result.Candidates, job.AccountID, importer.ExecuteOptions{
		SkipDuplicates: true,
		Source:         "scrape",
	})
	if err != nil {
		return model.ImportResult{}, err
	}
	s.logger.Info("scheduled import finished",
		"recipe", r.ID,
		"account", job.AccountID,
		"imported", imported.Imported,
		"skipped", imported.Skipped)
	return imported, nil
}

func (s *Scheduler) closeBrowser(session *browser.Session) {
	if err := session.Driver().Close(); err != nil {
		s.logger.Warn("failed to close browser", "error", err)
	}
}

// cronLogAdapter sends cron's own logging to slog.
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
