package recipe

import (
	"context"
	"sync"

	"github.com/Veraticus/spice-harvest/internal/model"
)

// State is the lifecycle stage of a playback.
type State string

// Playback states.
const (
	StateStarting  State = "starting"
	StatePlaying   State = "playing"
	StatePaused    State = "paused" // waiting for a sensitive value
	StateScraping  State = "scraping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "canceled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Result is what a finished playback produced.
type Result struct {
	Candidates []model.Candidate `json:"candidates,omitempty"`
	StepsRun   int               `json:"stepsRun"`
}

// Status is a point-in-time view of a playback, safe to serialize.
type Status struct {
	Pending    *SensitiveRequest `json:"pending,omitempty"`
	ID         string            `json:"id"`
	RecipeID   string            `json:"recipeId"`
	SessionID  string            `json:"sessionId"`
	State      State             `json:"state"`
	Error      string            `json:"error,omitempty"`
	StepIndex  int               `json:"stepIndex"`
	TotalSteps int               `json:"totalSteps"`
}

// Playback is the handle to one running replay.
type Playback struct {
	result      Result
	err         error
	pending     *SensitiveRequest
	interrupt   context.CancelFunc
	done        chan struct{}
	subscribers map[chan Status]struct{}
	ID          string
	recipeID    string
	sessionID   string
	state       State
	stepIndex   int
	totalSteps  int
	cancelled   bool
	mu          sync.Mutex
}

func newPlayback(id string, r model.Recipe, sessionID string, interrupt context.CancelFunc) *Playback {
	return &Playback{
		ID:          id,
		recipeID:    r.ID,
		sessionID:   sessionID,
		totalSteps:  len(r.Steps),
		state:       StateStarting,
		stepIndex:   -1,
		interrupt:   interrupt,
		done:        make(chan struct{}),
		subscribers: make(map[chan Status]struct{}),
	}
}

// Wait blocks until the playback ends or ctx is done.
func (p *Playback) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-p.done:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err
}

// Done is closed once the playback reaches a terminal state.
func (p *Playback) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle stage.
func (p *Playback) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns a snapshot of the playback.
func (p *Playback) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

// Cancel asks the playback to stop before its next step. A pending sensitive prompt
// or wait is interrupted; a driver action already in flight completes.
func (p *Playback) Cancel() {
	p.mu.Lock()
	if p.state.Terminal() {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	p.mu.Unlock()
	p.interrupt()
}

// Subscribe returns a channel of status changes. The channel is closed when the
// playback ends or unsubscribe is called. Slow readers miss intermediate updates.
func (p *Playback) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)

	p.mu.Lock()
	if p.state.Terminal() {
		ch <- p.statusLocked()
		close(ch)
		p.mu.Unlock()
		return ch, func() {}
	}
	p.subscribers[ch] = struct{}{}
	ch <- p.statusLocked()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subscribers[ch]; ok {
				delete(p.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (p *Playback) cancelRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *Playback) setState(state State, step int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.stepIndex = step
	p.pending = nil
	p.broadcastLocked()
}

func (p *Playback) pause(req SensitiveRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StatePaused
	p.pending = &req
	p.broadcastLocked()
}

func (p *Playback) resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePaused {
		p.state = StatePlaying
	}
	p.pending = nil
	p.broadcastLocked()
}

func (p *Playback) finish(state State, result Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
	p.result = result
	p.err = err
	p.pending = nil
	p.broadcastLocked()
	for ch := range p.subscribers {
		close(ch)
		delete(p.subscribers, ch)
	}
	close(p.done)
}

func (p *Playback) statusLocked() Status {
	s := Status{
		ID:         p.ID,
		RecipeID:   p.recipeID,
		SessionID:  p.sessionID,
		State:      p.state,
		StepIndex:  p.stepIndex,
		TotalSteps: p.totalSteps,
	}
	if p.pending != nil {
		req := *p.pending
		s.Pending = &req
	}
	if p.err != nil {
		s.Error = p.err.Error()
	}
	return s
}

func (p *Playback) broadcastLocked() {
	status := p.statusLocked()
	for ch := range p.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}
