package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration

	// Align snaps runs to multiples of Interval since the Unix epoch, so that
	// restarts of the worker do not drift the run times.
	Align bool
}

// Every returns a drifting interval schedule.
func Every(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Aligned returns an interval schedule snapped to wall-clock boundaries.
func Aligned(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval, Align: true}
}

// Next returns the next scheduled time strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.Interval <= 0 {
		return time.Time{}
	}
	if !s.Align {
		return t.Add(s.Interval)
	}
	next := t.Truncate(s.Interval).Add(s.Interval)
	if !next.After(t) {
		next = next.Add(s.Interval)
	}
	return next
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	if s.Align {
		return fmt.Sprintf("@every %s (aligned)", s.Interval)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
