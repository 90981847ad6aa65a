package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_ContainsIsHalfOpen(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	w, err := NewWindow(end, 24*time.Hour)
	require.NoError(t, err)

	assert.True(t, w.Contains(w.From))
	assert.True(t, w.Contains(end.Add(-time.Nanosecond)))
	assert.False(t, w.Contains(end))
	assert.Equal(t, 24*time.Hour, w.Duration())
}

func TestWindow_Validate(t *testing.T) {
	_, err := NewWindow(time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestWindow_TailShiftFilter(t *testing.T) {
	end := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	w, _ := NewWindow(end, 14*24*time.Hour)

	recent := w.Tail(7 * 24 * time.Hour)
	prior := recent.Shift(7 * 24 * time.Hour)
	assert.Equal(t, end.AddDate(0, 0, -7), recent.From)
	assert.Equal(t, w.From, prior.From)
	assert.Equal(t, recent.From, prior.To)

	// A tail longer than the window is clipped.
	assert.Equal(t, w, w.Tail(30*24*time.Hour))

	events := []Event{
		{UserID: "u", OccurredAt: end.Add(-time.Hour)},
		{UserID: "u", OccurredAt: end},
		{UserID: "u", OccurredAt: w.From.Add(-time.Hour)},
	}
	assert.Len(t, w.Filter(events), 1)
}
