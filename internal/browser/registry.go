package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-harvest/internal/common"
)

// Registry tracks open sessions by ID.
type Registry struct {
	logger   *slog.Logger
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:   common.ComponentLogger(logger, "browser"),
		sessions: make(map[string]*Session),
	}
}

// Add registers driver under a fresh session ID.
func (r *Registry) Add(driver Driver) *Session {
	session := NewSession(uuid.NewString(), driver)

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	r.logger.Info("browser session opened", "session", session.ID)
	return session
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	}
	return session, nil
}

// IDs lists registered session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove closes and forgets a session. A held session is refused.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, common.ErrNotFound)
	}
	if owner := session.Owner(); owner != OwnerNone {
		r.mu.Unlock()
		return fmt.Errorf("%w: held by %s", common.ErrSessionBusy, owner)
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	r.logger.Info("browser session closed", "session", id)
	return session.driver.Close()
}

// Close closes every session's driver.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for id, session := range r.sessions {
		if err := session.driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
		delete(r.sessions, id)
	}
	return errors.Join(errs...)
}
