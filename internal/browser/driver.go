// Package browser drives a live browser window and owns the session handle through
// which recording, playback and scraping share it.
package browser

import (
	"context"
	"time"
)

//go:generate mockgen -source=driver.go -destination=mocks/mock_driver.go -package=mocks

// Page is the read side of a driven window: enough to take a snapshot.
type Page interface {
	URL(ctx context.Context) (string, error)
	OuterHTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Driver controls one browser window.
type Driver interface {
	Page

	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context) error
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error

	// StartEvents begins streaming user interactions. The channel closes after
	// StopEvents or Close.
	StartEvents(ctx context.Context) (<-chan Event, error)
	StopEvents(ctx context.Context) error

	Close() error
}

// EventType names a captured user interaction.
type EventType string

// Event types emitted while recording.
const (
	EventClick    EventType = "click"
	EventInput    EventType = "input"
	EventChange   EventType = "change"
	EventNavigate EventType = "navigate"
)

// Event is one interaction observed on the page.
// Value is empty for fields the page marks as passwords.
type Event struct {
	At        time.Time `json:"-"`
	Type      EventType `json:"type"`
	Selector  string    `json:"selector,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	InputType string    `json:"inputType,omitempty"`
	Name      string    `json:"name,omitempty"`
	Label     string    `json:"label,omitempty"`
	Value     string    `json:"value,omitempty"`
	URL       string    `json:"url,omitempty"`
}
