// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Browser session errors.
	ErrSessionBusy      = errors.New("browser session is already in use")
	ErrSessionNotHeld   = errors.New("browser session is not held by caller")
	ErrSelectorNotFound = errors.New("selector could not be resolved")
	ErrNoSnapshot       = errors.New("page snapshot unavailable")

	// Playback errors.
	ErrPlaybackCancelled     = errors.New("playback canceled")
	ErrSensitiveInputMissing = errors.New("sensitive input not supplied")
	ErrEmptyRecipe           = errors.New("recipe has no steps")

	// Vision errors.
	ErrVisionDisabled = errors.New("vision provider not configured")
	ErrVisionEmpty    = errors.New("vision provider returned no transactions")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// Remediation returns the message a user interface should render for err.
// Unknown errors fall back to their own text.
func Remediation(err error) string {
	var userErr *UserError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &userErr):
		return userErr.UserMessage
	case errors.Is(err, ErrSessionBusy):
		return "Another recording, playback or scrape is using this browser window. Finish or cancel it first."
	case errors.Is(err, ErrSelectorNotFound):
		return "A recorded element could not be found on the page. The browser has been left open so you can continue by hand."
	case errors.Is(err, ErrNoSnapshot):
		return "The page is not loaded. Navigate to the transaction list and try again."
	case errors.Is(err, ErrSensitiveInputMissing):
		return "A password or one-time code was required but not provided."
	default:
		return err.Error()
	}
}
