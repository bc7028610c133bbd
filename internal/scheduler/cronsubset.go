package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// field is one parsed cron-subset field: a matcher over an integer value.
type field struct {
	raw   string
	match func(v int) bool
}

func (f field) Matches(v int) bool {
	if f.match == nil {
		return true
	}
	return f.match(v)
}

// parseField parses a single cron-subset field per spec §4.7: "*", a
// literal integer, or "*/N". Ranges and lists are deliberately
// unsupported — the spec's v1 grammar omits them.
func parseField(raw string) (field, error) {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		return field{raw: raw, match: func(int) bool { return true }}, nil
	}
	if strings.HasPrefix(raw, "*/") {
		n, err := strconv.Atoi(raw[2:])
		if err != nil || n <= 0 {
			return field{}, fmt.Errorf("invalid step field %q", raw)
		}
		return field{raw: raw, match: func(v int) bool { return v%n == 0 }}, nil
	}
	lit, err := strconv.Atoi(raw)
	if err != nil {
		return field{}, fmt.Errorf("invalid cron-subset field %q", raw)
	}
	return field{raw: raw, match: func(v int) bool { return v == lit }}, nil
}

// Schedule is a parsed cron-subset expression: five whitespace-separated
// fields, minute hour day month weekday. Day, month, and weekday are
// parsed (for syntax validation) but ignored when matching, per spec
// §4.7's documented v1 non-goal.
type Schedule struct {
	minute, hour, day, month, weekday field
}

// Parse parses a five-field cron-subset schedule string.
func Parse(expr string) (Schedule, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Schedule{}, fmt.Errorf("cron-subset schedule must have 5 fields, got %d", len(parts))
	}
	var sched Schedule
	var err error
	if sched.minute, err = parseField(parts[0]); err != nil {
		return Schedule{}, fmt.Errorf("minute field: %w", err)
	}
	if sched.hour, err = parseField(parts[1]); err != nil {
		return Schedule{}, fmt.Errorf("hour field: %w", err)
	}
	if sched.day, err = parseField(parts[2]); err != nil {
		return Schedule{}, fmt.Errorf("day field: %w", err)
	}
	if sched.month, err = parseField(parts[3]); err != nil {
		return Schedule{}, fmt.Errorf("month field: %w", err)
	}
	if sched.weekday, err = parseField(parts[4]); err != nil {
		return Schedule{}, fmt.Errorf("weekday field: %w", err)
	}
	return sched, nil
}

// Matches reports whether t falls within the current clock minute matched
// by the schedule. Only minute and hour are consulted (spec §4.7: "day/
// month/weekday may be present but are ignored in v1").
func (s Schedule) Matches(t time.Time) bool {
	return s.minute.Matches(t.Minute()) && s.hour.Matches(t.Hour())
}
