// Package timeutil provides calendar helpers for bucketing activity in a
// configured platform time zone. All functions take the location explicitly
// so analytics stay deterministic regardless of the host clock settings.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultLocation is used when no platform zone is configured.
var DefaultLocation = time.UTC

// LoadLocation resolves an IANA zone name, falling back to UTC for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return DefaultLocation, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// In converts t into loc, treating a nil location as DefaultLocation.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultLocation
	}
	return t.In(loc)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := In(t, loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, lt.Location())
}

// Bucket returns the weekday (0=Sunday..6) and hour (0..23) of t in loc.
func Bucket(t time.Time, loc *time.Location) (day, hour int) {
	lt := In(t, loc)
	return int(lt.Weekday()), lt.Hour()
}

// DayKey formats the local calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(DateFormat)
}

// DayKeys lists every local calendar day touched by the half-open range [from, to).
// An empty or inverted range yields nil.
func DayKeys(from, to time.Time, loc *time.Location) []string {
	if !to.After(from) {
		return nil
	}
	last := to.Add(-time.Nanosecond)
	var keys []string
	for d := StartOfDay(from, loc); !d.After(last); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format(DateFormat))
	}
	return keys
}

// DaysSince returns whole days elapsed between t and now, never negative.
func DaysSince(t, now time.Time) int {
	if now.Before(t) {
		return 0
	}
	return int(now.Sub(t) / (24 * time.Hour))
}

// Common date/time formats.
const (
	DateFormat     = "2006-01-02"
	DateTimeFormat = time.RFC3339
)
