package browser

import (
	"fmt"
	"sync"

	"github.com/Veraticus/spice-harvest/internal/common"
)

// Owner identifies the flow currently holding a session.
type Owner string

// Session owners. OwnerNone means the session is idle.
const (
	OwnerNone     Owner = ""
	OwnerRecorder Owner = "recording"
	OwnerPlayer   Owner = "playing"
	OwnerScraper  Owner = "scraping"
)

// Session is the handle every operation on a browser window goes through.
// At most one owner holds it at a time; contention is rejected, never queued.
type Session struct {
	driver Driver
	ID     string
	mu     sync.Mutex
	owner  Owner
}

// NewSession wraps driver in an idle session.
func NewSession(id string, driver Driver) *Session {
	return &Session{ID: id, driver: driver}
}

// Driver returns the window this session controls.
func (s *Session) Driver() Driver {
	return s.driver
}

// Owner returns the current holder, or OwnerNone.
func (s *Session) Owner() Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Acquire hands the session to owner. It fails with ErrSessionBusy, leaving the
// current holder in place, when the session is already held.
func (s *Session) Acquire(owner Owner) error {
	if owner == OwnerNone {
		return fmt.Errorf("%w: empty owner", common.ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != OwnerNone {
		return fmt.Errorf("%w: held by %s", common.ErrSessionBusy, s.owner)
	}
	s.owner = owner
	return nil
}

// Release gives the session back. Only the current holder may release it.
func (s *Session) Release(owner Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != owner || owner == OwnerNone {
		return fmt.Errorf("%w: %s", common.ErrSessionNotHeld, owner)
	}
	s.owner = OwnerNone
	return nil
}
