package domain

import (
	"testing"
	"time"
)

func TestNextRunWeekly(t *testing.T) {
	t.Parallel()

	spec := ScheduleSpec{
		Frequency: FrequencyWeekly,
		DayOfWeek: time.Monday,
		TimeOfDay: "09:00",
	}

	// Anchor on a Monday 09:00; the next occurrence is exactly seven days out.
	anchor := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	next, err := spec.NextRun(anchor)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}

	want := time.Date(2024, time.January, 22, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRunWeeklyFromOffDay(t *testing.T) {
	t.Parallel()

	spec := ScheduleSpec{
		Frequency: FrequencyWeekly,
		DayOfWeek: time.Friday,
		TimeOfDay: "18:30",
	}

	// Anchor on a Wednesday; the result lands on a Friday at least a week out.
	anchor := time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)
	next, err := spec.NextRun(anchor)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}

	if next.Weekday() != time.Friday {
		t.Fatalf("expected a Friday, got %v", next.Weekday())
	}
	if next.Sub(anchor) < 7*24*time.Hour {
		t.Fatalf("next run %v is less than a week after anchor %v", next, anchor)
	}
	if next.Hour() != 18 || next.Minute() != 30 {
		t.Fatalf("unexpected clock time: %v", next)
	}
}

func TestNextRunBiWeekly(t *testing.T) {
	t.Parallel()

	spec := ScheduleSpec{
		Frequency: FrequencyBiWeekly,
		DayOfWeek: time.Tuesday,
		TimeOfDay: "07:15",
	}

	anchor := time.Date(2024, time.June, 4, 7, 15, 0, 0, time.UTC) // a Tuesday
	next, err := spec.NextRun(anchor)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}

	want := time.Date(2024, time.June, 18, 7, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRunDaily(t *testing.T) {
	t.Parallel()

	spec := ScheduleSpec{Frequency: FrequencyDaily, TimeOfDay: "06:00"}

	anchor := time.Date(2024, time.February, 28, 6, 0, 0, 0, time.UTC)
	next, err := spec.NextRun(anchor)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}

	want := time.Date(2024, time.February, 29, 6, 0, 0, 0, time.UTC) // leap day
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRunMonthlyClampsDay(t *testing.T) {
	t.Parallel()

	spec := ScheduleSpec{Frequency: FrequencyMonthly, TimeOfDay: "10:00"}

	// January 31st; February has no 31st, so the run clamps to the 29th.
	anchor := time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)
	next, err := spec.NextRun(anchor)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}

	want := time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextRunDeterministic(t *testing.T) {
	t.Parallel()

	specs := []ScheduleSpec{
		{Frequency: FrequencyDaily, TimeOfDay: "00:30"},
		{Frequency: FrequencyWeekly, DayOfWeek: time.Sunday, TimeOfDay: "23:45"},
		{Frequency: FrequencyBiWeekly, DayOfWeek: time.Saturday, TimeOfDay: "12:00"},
		{Frequency: FrequencyMonthly, TimeOfDay: "08:00"},
	}

	anchor := time.Date(2024, time.July, 9, 14, 3, 0, 0, time.UTC)
	for _, spec := range specs {
		first, err := spec.NextRun(anchor)
		if err != nil {
			t.Fatalf("%s: NextRun error: %v", spec.Frequency, err)
		}
		second, err := spec.NextRun(anchor)
		if err != nil {
			t.Fatalf("%s: NextRun error on repeat: %v", spec.Frequency, err)
		}
		if !first.Equal(second) {
			t.Fatalf("%s: not deterministic: %v vs %v", spec.Frequency, first, second)
		}
		if !first.After(anchor) {
			t.Fatalf("%s: next run %v is not after anchor %v", spec.Frequency, first, anchor)
		}
	}
}

func TestNextRunTimezone(t *testing.T) {
	t.Parallel()

	spec := ScheduleSpec{
		Frequency: FrequencyDaily,
		TimeOfDay: "09:00",
		Timezone:  "America/New_York",
	}

	anchor := time.Date(2024, time.May, 1, 13, 0, 0, 0, time.UTC) // 09:00 EDT
	next, err := spec.NextRun(anchor)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	local := next.In(loc)
	if local.Hour() != 9 || local.Minute() != 0 {
		t.Fatalf("expected 09:00 local, got %v", local)
	}
	if local.Day() != 2 {
		t.Fatalf("expected next day, got %v", local)
	}
}

func TestScheduleSpecValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		spec    ScheduleSpec
		wantErr bool
	}{
		{"daily ok", ScheduleSpec{Frequency: FrequencyDaily, TimeOfDay: "08:00"}, false},
		{"weekly ok", ScheduleSpec{Frequency: FrequencyWeekly, DayOfWeek: time.Monday, TimeOfDay: "08:00"}, false},
		{"bad frequency", ScheduleSpec{Frequency: "hourly", TimeOfDay: "08:00"}, true},
		{"bad clock", ScheduleSpec{Frequency: FrequencyDaily, TimeOfDay: "25:00"}, true},
		{"missing minutes", ScheduleSpec{Frequency: FrequencyDaily, TimeOfDay: "8"}, true},
		{"bad timezone", ScheduleSpec{Frequency: FrequencyDaily, TimeOfDay: "08:00", Timezone: "Mars/Olympus"}, true},
	}

	for _, tc := range cases {
		err := tc.spec.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}
