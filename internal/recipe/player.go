package recipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/vision"
)

// Scraper is what the player triggers once the last step has run.
type Scraper interface {
	Scrape(ctx context.Context, page browser.Page, cfg vision.Config) ([]model.Candidate, error)
}

// SensitiveRequest asks the caller for the value of one sensitive step.
type SensitiveRequest struct {
	Label      string `json:"label"`
	StepIndex  int    `json:"stepIndex"` // zero-based
	TotalSteps int    `json:"totalSteps"`
}

// SensitiveInputFunc supplies a sensitive value. It blocks until the value is known or
// ctx ends; the value is used once and discarded.
type SensitiveInputFunc func(ctx context.Context, req SensitiveRequest) (string, error)

// StepError reports the step at which playback failed.
type StepError struct {
	Err      error
	Type     model.StepType
	Selector string
	Index    int // zero-based
}

func (e *StepError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("step %d (%s %s): %v", e.Index+1, e.Type, e.Selector, e.Err)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Type, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Options tunes playback.
type Options struct {
	Vision      vision.Config
	StepTimeout time.Duration // per driver action; default 30s
	Pace        bool          // sleep each step's recorded delay before running it
}

// Player replays recipes against browser sessions.
type Player struct {
	scraper Scraper
	logger  *slog.Logger
	opts    Options
}

// NewPlayer creates a player that hands the final page to scraper.
func NewPlayer(scraper Scraper, opts Options, logger *slog.Logger) *Player {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 30 * time.Second
	}
	return &Player{
		scraper: scraper,
		logger:  common.ComponentLogger(logger, "player"),
		opts:    opts,
	}
}

// Play starts replaying r on session and returns immediately. It fails synchronously,
// with no state change, when the recipe is invalid or the session is held. ctx bounds
// the whole playback; Cancel on the returned handle stops it at a step boundary.
func (p *Player) Play(ctx context.Context, session *browser.Session, r model.Recipe, input SensitiveInputFunc) (*Playback, error) {
	if len(r.Steps) == 0 {
		return nil, common.ErrEmptyRecipe
	}
	for i, step := range r.Steps {
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", model.ErrInvalidRecipe, i+1, err)
		}
	}
	if err := session.Acquire(browser.OwnerPlayer); err != nil {
		return nil, err
	}

	interruptCtx, interrupt := context.WithCancel(ctx)
	pb := newPlayback(uuid.NewString(), r, session.ID, interrupt)

	go p.run(ctx, interruptCtx, session, r, input, pb)
	return pb, nil
}

// run drives the steps and settles the playback. The session is released before the
// playback is marked finished so a waiter can reuse the window right away.
func (p *Player) run(ctx, interruptCtx context.Context, session *browser.Session, r model.Recipe, input SensitiveInputFunc, pb *Playback) {
	state, result, err := p.play(ctx, interruptCtx, session, r, input, pb)
	if relErr := session.Release(browser.OwnerPlayer); relErr != nil {
		p.logger.Error("failed to release session", "session", session.ID, "error", relErr)
	}
	pb.finish(state, result, err)
	pb.interrupt()
}

// play executes the steps. Driver actions use ctx so that Cancel never aborts one
// halfway; waits and sensitive prompts use interruptCtx so Cancel can end them.
func (p *Player) play(ctx, interruptCtx context.Context, session *browser.Session, r model.Recipe, input SensitiveInputFunc, pb *Playback) (State, Result, error) {
	logger := p.logger.With("playback", pb.ID, "recipe", r.ID, "session", session.ID)
	driver := session.Driver()
	total := len(r.Steps)

	pb.setState(StatePlaying, -1)
	logger.Info("playback started", "steps", total)

	if r.StartURL != "" {
		if err := p.load(ctx, driver, r.StartURL); err != nil {
			return StateFailed, Result{}, fmt.Errorf("failed to load start URL: %w", err)
		}
	}

	cancelled := func() bool {
		return pb.cancelRequested() || interruptCtx.Err() != nil
	}

	for i, step := range r.Steps {
		if cancelled() {
			logger.Info("playback canceled", "step", i)
			return StateCancelled, Result{StepsRun: i}, common.ErrPlaybackCancelled
		}
		pb.setState(StatePlaying, i)

		if p.opts.Pace && step.Type != model.StepWait && step.DelayMs > 0 {
			if err := sleep(interruptCtx, time.Duration(step.DelayMs)*time.Millisecond); err != nil {
				return StateCancelled, Result{StepsRun: i}, common.ErrPlaybackCancelled
			}
		}

		if err := p.execute(ctx, interruptCtx, driver, step, i, total, input, pb); err != nil {
			if cancelled() {
				logger.Info("playback canceled", "step", i)
				return StateCancelled, Result{StepsRun: i}, common.ErrPlaybackCancelled
			}
			logger.Warn("playback failed", "step", i, "type", step.Type, "selector", step.Selector, "error", err)
			return StateFailed, Result{StepsRun: i}, &StepError{Index: i, Type: step.Type, Selector: step.Selector, Err: err}
		}
		logger.Debug("step done", "step", i, "type", step.Type)
	}

	pb.setState(StateScraping, total)
	candidates, err := p.scraper.Scrape(ctx, driver, p.opts.Vision)
	if err != nil {
		return StateFailed, Result{StepsRun: total}, fmt.Errorf("extraction after playback: %w", err)
	}

	logger.Info("playback completed", "candidates", len(candidates))
	return StateCompleted, Result{StepsRun: total, Candidates: candidates}, nil
}

func (p *Player) execute(ctx, interruptCtx context.Context, driver browser.Driver, step model.RecordingStep, index, total int, input SensitiveInputFunc, pb *Playback) error {
	switch step.Type {
	case model.StepNavigate:
		return p.load(ctx, driver, step.URL)
	case model.StepWait:
		return sleep(interruptCtx, time.Duration(step.DelayMs)*time.Millisecond)
	}

	stepCtx, cancel := context.WithTimeout(ctx, p.opts.StepTimeout)
	defer cancel()

	found, err := driver.Exists(stepCtx, step.Selector)
	if err != nil {
		return err
	}
	if !found {
		return common.ErrSelectorNotFound
	}

	value := step.Value
	if step.IsSensitive {
		value, err = p.askSensitive(interruptCtx, step, index, total, input, pb)
		if err != nil {
			return err
		}
		// The prompt may have taken a while; give the action a fresh budget.
		cancel()
		stepCtx, cancel = context.WithTimeout(ctx, p.opts.StepTimeout)
		defer cancel()
	}

	switch step.Type {
	case model.StepClick:
		return driver.Click(stepCtx, step.Selector)
	case model.StepInput:
		return driver.SetValue(stepCtx, step.Selector, value)
	case model.StepSelect:
		return driver.SelectOption(stepCtx, step.Selector, value)
	default:
		return fmt.Errorf("unsupported step type %q", step.Type)
	}
}

func (p *Player) askSensitive(ctx context.Context, step model.RecordingStep, index, total int, input SensitiveInputFunc, pb *Playback) (string, error) {
	if input == nil {
		return "", common.ErrSensitiveInputMissing
	}

	req := SensitiveRequest{Label: step.DisplayLabel(), StepIndex: index, TotalSteps: total}
	pb.pause(req)
	value, err := input(ctx, req)
	pb.resume()

	switch {
	case err != nil && ctx.Err() != nil:
		return "", common.ErrPlaybackCancelled
	case err != nil:
		return "", fmt.Errorf("%w: %v", common.ErrSensitiveInputMissing, err)
	case value == "":
		return "", common.ErrSensitiveInputMissing
	}
	return value, nil
}

func (p *Player) load(ctx context.Context, driver browser.Driver, url string) error {
	stepCtx, cancel := context.WithTimeout(ctx, p.opts.StepTimeout)
	defer cancel()

	if err := driver.Navigate(stepCtx, url); err != nil {
		return err
	}
	return driver.WaitReady(stepCtx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCancelled reports whether err came from a canceled playback.
func IsCancelled(err error) bool {
	return errors.Is(err, common.ErrPlaybackCancelled)
}
