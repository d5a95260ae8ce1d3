package util

import (
	"fmt"
	"time"
)

// Window is a daily maintenance window in a fixed location. A zero Window
// always contains every instant.
type Window struct {
	start, end *clock
	loc        *time.Location
}

type clock struct{ h, m int }

func (c clock) minutes() int { return c.h*60 + c.m }

// ParseWindow parses "HH:MM" bounds in tz. Either bound may be empty; an
// empty tz keeps the location of the instants later passed to Contains.
func ParseWindow(start, end, tz string) (Window, error) {
	var w Window
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Window{}, fmt.Errorf("invalid timezone: %w", err)
		}
		w.loc = loc
	}
	var err error
	if w.start, err = parseClock(start); err != nil {
		return Window{}, fmt.Errorf("invalid window start: %w", err)
	}
	if w.end, err = parseClock(end); err != nil {
		return Window{}, fmt.Errorf("invalid window end: %w", err)
	}
	return w, nil
}

func parseClock(v string) (*clock, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return nil, err
	}
	return &clock{h: t.Hour(), m: t.Minute()}, nil
}

// Contains reports whether now falls inside the window, bounds inclusive to
// the minute. Windows whose end precedes their start wrap past midnight.
func (w Window) Contains(now time.Time) bool {
	if w.loc != nil {
		now = now.In(w.loc)
	}
	cur := now.Hour()*60 + now.Minute()
	switch {
	case w.start == nil && w.end == nil:
		return true
	case w.end == nil:
		return cur >= w.start.minutes()
	case w.start == nil:
		return cur <= w.end.minutes()
	case w.end.minutes() >= w.start.minutes():
		return cur >= w.start.minutes() && cur <= w.end.minutes()
	default:
		return cur >= w.start.minutes() || cur <= w.end.minutes()
	}
}

// InWindow parses the window and checks now against it.
func InWindow(now time.Time, start, end, tz string) (bool, error) {
	w, err := ParseWindow(start, end, tz)
	if err != nil {
		return false, err
	}
	return w.Contains(now), nil
}
