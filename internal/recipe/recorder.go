package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

// Recorder captures interactions on browser sessions into draft recipes.
type Recorder struct {
	logger *slog.Logger
	now    func() time.Time
	active map[string]*recording
	mu     sync.Mutex
}

type recording struct {
	last     time.Time
	session  *browser.Session
	stop     chan struct{}
	done     chan struct{}
	startURL string
	steps    []model.RecordingStep
	mu       sync.Mutex
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder.
func NewRecorder(logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: common.ComponentLogger(logger, "recorder"),
		now:    time.Now,
		active: make(map[string]*recording),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start takes ownership of session and begins capturing. It fails with
// common.ErrSessionBusy when anything else holds the session.
func (r *Recorder) Start(ctx context.Context, session *browser.Session) error {
	if err := session.Acquire(browser.OwnerRecorder); err != nil {
		return err
	}

	driver := session.Driver()
	startURL, err := driver.URL(ctx)
	if err != nil {
		r.logger.Debug("could not read start URL", "session", session.ID, "error", err)
	}

	events, err := driver.StartEvents(ctx)
	if err != nil {
		r.release(session)
		return fmt.Errorf("failed to start recording: %w", err)
	}

	rec := &recording{
		session:  session,
		startURL: startURL,
		last:     r.now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	r.active[session.ID] = rec
	r.mu.Unlock()

	go r.consume(rec, events)

	r.logger.Info("recording started", "session", session.ID, "url", startURL)
	return nil
}

// Mark appends an explicit wait step. A zero delay records the time elapsed since the
// previous step.
func (r *Recorder) Mark(session *browser.Session, delay time.Duration) error {
	rec, err := r.lookup(session)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := r.now()
	if delay <= 0 {
		delay = now.Sub(rec.last)
	}
	rec.last = now
	rec.steps = append(rec.steps, model.RecordingStep{
		Type:    model.StepWait,
		DelayMs: int(delay.Milliseconds()),
	})
	return nil
}

// Steps returns a copy of what has been captured so far.
func (r *Recorder) Steps(session *browser.Session) ([]model.RecordingStep, error) {
	rec, err := r.lookup(session)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]model.RecordingStep(nil), rec.steps...), nil
}

// Stop ends the recording, releases the session and returns the captured steps as a
// draft recipe. Nothing captured before Stop is lost.
func (r *Recorder) Stop(ctx context.Context, session *browser.Session) (model.Recipe, error) {
	// Claim the recording before touching it so a concurrent Stop sees it gone.
	r.mu.Lock()
	rec, ok := r.active[session.ID]
	if ok {
		delete(r.active, session.ID)
	}
	r.mu.Unlock()
	if !ok {
		return model.Recipe{}, fmt.Errorf("%w: not recording", common.ErrSessionNotHeld)
	}

	if err := session.Driver().StopEvents(ctx); err != nil {
		r.logger.Warn("failed to remove recorder hooks", "session", session.ID, "error", err)
	}
	close(rec.stop)
	<-rec.done
	r.release(session)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	draft := model.Recipe{
		StartURL: rec.startURL,
		Steps:    append([]model.RecordingStep(nil), rec.steps...),
	}
	r.logger.Info("recording stopped", "session", session.ID, "steps", len(draft.Steps))
	return draft, nil
}

// Recording reports whether session is being recorded.
func (r *Recorder) Recording(session *browser.Session) bool {
	_, err := r.lookup(session)
	return err == nil
}

func (r *Recorder) lookup(session *browser.Session) (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.active[session.ID]
	if !ok {
		return nil, fmt.Errorf("%w: not recording", common.ErrSessionNotHeld)
	}
	return rec, nil
}

func (r *Recorder) release(session *browser.Session) {
	if err := session.Release(browser.OwnerRecorder); err != nil {
		r.logger.Error("failed to release session", "session", session.ID, "error", err)
	}
}

func (r *Recorder) consume(rec *recording, events <-chan browser.Event) {
	defer close(rec.done)

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.record(rec, evt)
		case <-rec.stop:
			// Keep whatever the driver delivered before it was told to stop.
			for {
				select {
				case evt, ok := <-events:
					if !ok {
						return
					}
					r.record(rec, evt)
				default:
					return
				}
			}
		}
	}
}

// record converts one event into a step. Keystrokes into the same field collapse into
// a single type step, and a sensitive field's value never enters the buffer.
func (r *Recorder) record(rec *recording, evt browser.Event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = r.now()
	}
	delay := int(at.Sub(rec.last).Milliseconds())
	if delay < 0 {
		delay = 0
	}

	var prev *model.RecordingStep
	if n := len(rec.steps); n > 0 {
		prev = &rec.steps[n-1]
	}

	var step model.RecordingStep
	switch evt.Type {
	case browser.EventNavigate:
		if evt.URL == "" || evt.URL == "about:blank" {
			return
		}
		if (prev == nil && evt.URL == rec.startURL) || (prev != nil && prev.Type == model.StepNavigate && prev.URL == evt.URL) {
			return
		}
		step = model.RecordingStep{Type: model.StepNavigate, URL: evt.URL}

	case browser.EventClick:
		step = model.RecordingStep{Type: model.StepClick, Selector: evt.Selector, Label: evt.Label}

	case browser.EventInput:
		sensitive := IsSensitiveField(evt.InputType, evt.Name, evt.Label)
		value := evt.Value
		if sensitive {
			value = ""
		}
		if prev != nil && prev.Type == model.StepInput && prev.Selector == evt.Selector {
			prev.IsSensitive = prev.IsSensitive || sensitive
			if prev.IsSensitive {
				value = ""
			}
			prev.Value = value
			rec.last = at
			return
		}
		step = model.RecordingStep{
			Type:        model.StepInput,
			Selector:    evt.Selector,
			Label:       evt.Label,
			Value:       value,
			IsSensitive: sensitive,
		}

	case browser.EventChange:
		step = model.RecordingStep{Type: model.StepSelect, Selector: evt.Selector, Label: evt.Label, Value: evt.Value}

	default:
		r.logger.Debug("ignoring event", "type", evt.Type)
		return
	}

	if step.Selector == "" && step.Type != model.StepNavigate {
		return
	}

	step.DelayMs = delay
	rec.last = at
	rec.steps = append(rec.steps, step)
	r.logger.Debug("step captured", "session", rec.session.ID, "index", len(rec.steps)-1, "type", step.Type, "selector", step.Selector)
}
