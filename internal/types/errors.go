package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoReadyMarker = errors.New("ready marker did not appear")
	ErrFieldNotFound = errors.New("field not found on page")
	ErrNotNumeric    = errors.New("value is not numeric")
	ErrNoFollow      = errors.New("page does not support navigation")
)

// FetchErrorKind classifies page fetch failures.
type FetchErrorKind string

const (
	FetchLoadTimeout FetchErrorKind = "load_timeout"
	FetchSession     FetchErrorKind = "session"
	FetchCancelled   FetchErrorKind = "cancelled"
)

// FetchError wraps errors that occur while loading a product page.
type FetchError struct {
	Kind     FetchErrorKind
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("fetch %s for %s after %d attempts: %v", e.Kind, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError records a single field lookup that fell back to its default.
// It is never surfaced as a run failure.
type ExtractionError struct {
	Field    Field
	Selector string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (selector=%q): %v", e.Field, e.Selector, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ForecastErrorKind classifies forecast failures.
type ForecastErrorKind string

const (
	ForecastInsufficientData    ForecastErrorKind = "insufficient_data"
	ForecastModelNonConvergence ForecastErrorKind = "model_non_convergence"
)

// ForecastError is returned when no trustworthy forecast can be produced.
// Callers treat it as recoverable.
type ForecastError struct {
	Kind    ForecastErrorKind
	Product string
	Points  int
	Err     error
}

func (e *ForecastError) Error() string {
	msg := fmt.Sprintf("forecast %s for %q (%d points)", e.Kind, e.Product, e.Points)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ForecastError) Unwrap() error { return e.Err }

// RecommendationErrorKind classifies recommendation failures.
type RecommendationErrorKind string

const RecommendationCompletionFailed RecommendationErrorKind = "completion_failed"

// RecommendationError wraps a failed text-completion call.
type RecommendationError struct {
	Kind    RecommendationErrorKind
	Product string
	Err     error
}

func (e *RecommendationError) Error() string {
	return fmt.Sprintf("recommendation %s for %q: %v", e.Kind, e.Product, e.Err)
}

func (e *RecommendationError) Unwrap() error { return e.Err }

// DispatchErrorKind classifies notification failures.
type DispatchErrorKind string

const DispatchDeliveryFailed DispatchErrorKind = "delivery_failed"

// DispatchError is returned when the notification channel rejects a message.
type DispatchError struct {
	Kind    DispatchErrorKind
	Channel string
	Status  int
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("dispatch %s via %s (status %d): %v", e.Kind, e.Channel, e.Status, e.Err)
	}
	return fmt.Sprintf("dispatch %s via %s: %v", e.Kind, e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in a history backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
