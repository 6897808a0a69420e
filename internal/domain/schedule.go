package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency enumerates supported recurrence intervals.
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiWeekly Frequency = "bi-weekly"
	FrequencyMonthly  Frequency = "monthly"
)

// ScheduleSpec is a pure value describing when a stream becomes due.
// DayOfWeek is required iff the frequency is weekly or bi-weekly.
type ScheduleSpec struct {
	Frequency Frequency    `json:"frequency"`
	DayOfWeek time.Weekday `json:"dayOfWeek,omitempty"`
	TimeOfDay string       `json:"time"` // HH:MM in the owner's timezone
	Timezone  string       `json:"timezone,omitempty"`
}

// Validate checks frequency, day-of-week presence, and the HH:MM clock.
func (s ScheduleSpec) Validate() error {
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
		return fmt.Errorf("invalid day of week %d", s.DayOfWeek)
	}
	if _, _, err := s.clock(); err != nil {
		return err
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("unknown timezone %s: %w", s.Timezone, err)
		}
	}
	return nil
}

// NextRun computes the next due time strictly after anchor. The computation
// is deterministic and idempotent: the same spec and anchor always yield the
// same result.
func (s ScheduleSpec) NextRun(anchor time.Time) (time.Time, error) {
	hour, minute, err := s.clock()
	if err != nil {
		return time.Time{}, err
	}

	loc := s.location()
	a := anchor.In(loc)

	var next time.Time
	switch s.Frequency {
	case FrequencyDaily:
		next = time.Date(a.Year(), a.Month(), a.Day()+1, hour, minute, 0, 0, loc)
	case FrequencyWeekly, FrequencyBiWeekly:
		step := 7
		if s.Frequency == FrequencyBiWeekly {
			step = 14
		}
		base := a.AddDate(0, 0, step)
		offset := (int(s.DayOfWeek) - int(base.Weekday()) + 7) % 7
		d := base.AddDate(0, 0, offset)
		next = time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
		if next.Before(a.AddDate(0, 0, step)) {
			next = next.AddDate(0, 0, 7)
		}
	case FrequencyMonthly:
		day := a.Day()
		if last := daysInMonth(a.Year(), a.Month()+1); day > last {
			day = last
		}
		next = time.Date(a.Year(), a.Month()+1, day, hour, minute, 0, 0, loc)
	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", s.Frequency)
	}

	// Never hand back a time at or before the anchor.
	for !next.After(anchor) {
		next = next.AddDate(0, 0, 1)
	}

	return next, nil
}

func (s ScheduleSpec) clock() (hour, minute int, err error) {
	parts := strings.SplitN(s.TimeOfDay, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time of day %q is not HH:MM", s.TimeOfDay)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q has invalid hour", s.TimeOfDay)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q has invalid minute", s.TimeOfDay)
	}
	return hour, minute, nil
}

func (s ScheduleSpec) location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// daysInMonth tolerates out-of-range months via time.Date normalization.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
