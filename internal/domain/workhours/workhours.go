// Package workhours computes elapsed business time between two instants,
// where a working day is 09:00-17:00 Monday through Friday in a reviewer's
// local time zone. Results depend only on the two endpoints, never on the
// wall clock.
package workhours

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	dayStartHour = 9
	dayEndHour   = 17
)

// Calendar maps reviewers to their working-hours time zones. A reviewer
// missing from the mapping falls back to the default zone with a warning.
type Calendar struct {
	zones       map[string]*time.Location
	defaultZone *time.Location
}

// NewCalendar builds a Calendar from reviewer login -> IANA zone name. Every
// zone name, including the default, must resolve via the system tz database.
func NewCalendar(zoneNames map[string]string, defaultZone string) (*Calendar, error) {
	def, err := time.LoadLocation(defaultZone)
	if err != nil {
		return nil, fmt.Errorf("load default zone %q: %w", defaultZone, err)
	}

	zones := make(map[string]*time.Location, len(zoneNames))
	for reviewer, name := range zoneNames {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("load zone %q for reviewer %s: %w", name, reviewer, err)
		}
		zones[reviewer] = loc
	}

	return &Calendar{zones: zones, defaultZone: def}, nil
}

// Zone returns the reviewer's configured time zone, or the default zone when
// the reviewer is unmapped.
func (c *Calendar) Zone(reviewer string) *time.Location {
	if loc, ok := c.zones[reviewer]; ok {
		return loc
	}
	slog.Warn("no timezone configured for reviewer, using default",
		"reviewer", reviewer,
		"default", c.defaultZone.String(),
	)
	return c.defaultZone
}

// Between returns the working time elapsed between start and end in the
// reviewer's zone.
func (c *Calendar) Between(reviewer string, start, end time.Time) time.Duration {
	return Between(c.Zone(reviewer), start, end)
}

// Between returns the working time elapsed between start and end, counting
// only the 09:00-17:00 Monday-Friday window in the given zone. It walks
// day-by-day: outside the window it advances to the next business 09:00,
// inside it accumulates the overlap with that day's window and jumps to the
// next day.
func Between(loc *time.Location, start, end time.Time) time.Duration {
	if !end.After(start) {
		return 0
	}

	cur := start.In(loc)
	last := end.In(loc)

	var total time.Duration
	for cur.Before(last) {
		if !isBusinessDay(cur) || cur.Hour() >= dayEndHour {
			cur = nextWindowStart(cur)
			continue
		}
		if cur.Hour() < dayStartHour {
			cur = at(cur, dayStartHour)
			continue
		}

		windowEnd := at(cur, dayEndHour)
		segEnd := windowEnd
		if last.Before(windowEnd) {
			segEnd = last
		}
		total += segEnd.Sub(cur)
		cur = nextWindowStart(windowEnd)
	}

	return total
}

// Hours converts a working duration to a rounded whole-hours figure.
func Hours(d time.Duration) int {
	return int(d.Round(time.Hour) / time.Hour)
}

func isBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// at returns t's calendar day at the given hour in t's location.
func at(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

// nextWindowStart returns 09:00 on the first business day after t's day.
func nextWindowStart(t time.Time) time.Time {
	next := at(t, dayStartHour).AddDate(0, 0, 1)
	for !isBusinessDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
