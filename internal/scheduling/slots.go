package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidClock    = errors.New("scheduling: invalid clock value")
	ErrInvalidInterval = errors.New("scheduling: end must be after start")
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval validates that end is strictly after start.
func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// SlotAvailable reports whether candidate overlaps none of the busy intervals.
// Callers pass only the intervals of active appointments.
func SlotAvailable(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return false
		}
	}
	return true
}

// DayWindow is the opening window for one weekday, clock values in "HH:MM".
type DayWindow struct {
	Weekday time.Weekday
	Open    string
	Close   string
	Closed  bool
}

// WithinWorkingHours reports whether candidate fits entirely inside the
// window configured for its weekday, evaluated in loc. Days with no window
// or marked closed reject every candidate.
func WithinWorkingHours(candidate Interval, windows []DayWindow, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	start := candidate.Start.In(loc)
	end := candidate.End.In(loc)
	if start.YearDay() != end.Add(-time.Nanosecond).YearDay() {
		return false
	}
	for _, w := range windows {
		if w.Weekday != start.Weekday() || w.Closed {
			continue
		}
		openAt, err := AtClock(start, w.Open, loc)
		if err != nil {
			continue
		}
		closeAt, err := AtClock(start, w.Close, loc)
		if err != nil {
			continue
		}
		if !start.Before(openAt) && !end.After(closeAt) {
			return true
		}
	}
	return false
}

// ParseClock parses a 24-hour "HH:MM" value.
func ParseClock(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, value)
	}
	return hour, minute, nil
}

// AtClock returns the instant on day's calendar date (in loc) at the given clock time.
func AtClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc), nil
}

// ParseSlot combines an ISO date ("2006-01-02") and a 24-hour clock ("15:04")
// into an interval of the given duration, interpreted in loc.
func ParseSlot(date, clock string, duration time.Duration, loc *time.Location) (Interval, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), loc)
	if err != nil {
		return Interval{}, fmt.Errorf("scheduling: invalid date %q: %w", date, err)
	}
	start, err := AtClock(day, clock, loc)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(start, start.Add(duration))
}
