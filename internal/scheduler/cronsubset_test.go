package scheduler

import (
	"testing"
	"time"
)

func TestParse_RejectsWrongFieldCount(t *testing.T) {
	if _, err := Parse("* * *"); err == nil {
		t.Error("expected error for too few fields")
	}
}

func TestParse_RejectsRangesAndLists(t *testing.T) {
	for _, expr := range []string{"1-5 * * * *", "1,2,3 * * * *"} {
		if _, err := Parse(expr); err == nil {
			t.Errorf("expected %q to be rejected (ranges/lists unsupported)", expr)
		}
	}
}

func TestSchedule_Matches(t *testing.T) {
	cases := []struct {
		expr string
		t    time.Time
		want bool
	}{
		{"*/5 * * * *", time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC), true},
		{"*/5 * * * *", time.Date(2026, 1, 1, 12, 7, 0, 0, time.UTC), false},
		{"0 9 * * *", time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), true},
		{"0 9 * * *", time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), false},
		{"* * * * *", time.Date(2026, 1, 1, 3, 33, 0, 0, time.UTC), true},
	}
	for _, c := range cases {
		sched, err := Parse(c.expr)
		if err != nil {
			t.Fatalf("parse %q: %v", c.expr, err)
		}
		if got := sched.Matches(c.t); got != c.want {
			t.Errorf("%q.Matches(%v) = %v, want %v", c.expr, c.t, got, c.want)
		}
	}
}

func TestSchedule_DayMonthWeekdayIgnoredInV1(t *testing.T) {
	// day=15 would not match Jan 1, but spec §4.7 says day/month/weekday
	// are parsed but ignored when matching in v1.
	sched, err := Parse("0 9 15 6 3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !sched.Matches(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Error("expected day/month/weekday fields to be ignored for matching")
	}
}
