// Package activity contains the read-only view of the behavioral event ledger.
// The ledger is owned by an external system; this domain only reads it
// within bounded time windows.
package activity

import (
	"errors"
	"time"
)

// EventType classifies a ledger record.
type EventType string

const (
	EventLogin               EventType = "login"
	EventPageView            EventType = "page_view"
	EventDocumentUpload      EventType = "document_upload"
	EventApplicationSubmit   EventType = "application_submitted"
	EventForumPost           EventType = "forum_post"
	EventForumAnswer         EventType = "forum_answer"
	EventProfileUpdate       EventType = "profile_update"
	EventOpportunityBookmark EventType = "opportunity_bookmark"
)

// Event is one immutable ledger record.
type Event struct {
	UserID     string         `json:"user_id"`
	Type       EventType      `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ErrInvalidWindow is returned for windows whose end is not after their start.
var ErrInvalidWindow = errors.New("activity window end must be after start")

// NewWindow builds a window of the given length that ends at `end`.
func NewWindow(end time.Time, length time.Duration) (Window, error) {
	w := Window{From: end.Add(-length), To: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate checks the window bounds.
func (w Window) Validate() error {
	if !w.To.After(w.From) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Tail returns the trailing sub-window of length d, clipped to the window.
func (w Window) Tail(d time.Duration) Window {
	from := w.To.Add(-d)
	if from.Before(w.From) {
		from = w.From
	}
	return Window{From: from, To: w.To}
}

// Shift moves the window back in time by d.
func (w Window) Shift(d time.Duration) Window {
	return Window{From: w.From.Add(-d), To: w.To.Add(-d)}
}

// Filter returns the events that fall inside the window, preserving order.
func (w Window) Filter(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if w.Contains(e.OccurredAt) {
			out = append(out, e)
		}
	}
	return out
}
