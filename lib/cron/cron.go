// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule represents a parsed cron expression. Use Parse to create
// one from a string, then call Next to compute the next matching time.
type Schedule struct {
	expression  string
	seconds     bitset64
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64
}

// bitset64 uses a uint64 as a compact set of integers 0-63.
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

// fieldSpec describes one positional field of an expression.
type fieldSpec struct {
	name             string
	minimum, maximum int
}

var (
	secondField     = fieldSpec{"second", 0, 59}
	minuteField     = fieldSpec{"minute", 0, 59}
	hourField       = fieldSpec{"hour", 0, 23}
	dayOfMonthField = fieldSpec{"day-of-month", 1, 31}
	monthField      = fieldSpec{"month", 1, 12}
	dayOfWeekField  = fieldSpec{"day-of-week", 0, 6}
)

// Parse parses a five-field (minute resolution) or six-field (leading
// seconds field) cron expression.
func Parse(expression string) (Schedule, error) {
	fields := strings.Fields(expression)

	specs := []fieldSpec{minuteField, hourField, dayOfMonthField, monthField, dayOfWeekField}
	switch len(fields) {
	case 5:
	case 6:
		specs = append([]fieldSpec{secondField}, specs...)
	default:
		return Schedule{}, fmt.Errorf("cron: expected 5 or 6 fields, got %d", len(fields))
	}

	sets := make([]bitset64, len(specs))
	for i, spec := range specs {
		bits, err := parseField(fields[i], spec.minimum, spec.maximum)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", spec.name, err)
		}
		sets[i] = bits
	}

	schedule := Schedule{expression: strings.Join(fields, " ")}
	if len(sets) == 6 {
		schedule.seconds, sets = sets[0], sets[1:]
	} else {
		schedule.seconds.set(0)
	}
	schedule.minutes = sets[0]
	schedule.hours = sets[1]
	schedule.daysOfMonth = sets[2]
	schedule.months = sets[3]
	schedule.daysOfWeek = sets[4]
	return schedule, nil
}

// MustParse is Parse for expressions known at compile time. It panics
// on a malformed expression.
func MustParse(expression string) Schedule {
	schedule, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return schedule
}

// String returns the normalized expression the schedule was parsed
// from.
func (s Schedule) String() string { return s.expression }

// Next returns the earliest time strictly after t that matches the
// schedule. All computation is in UTC.
//
// Returns an error if no matching time can be found within 4 years
// of t (impossible schedules like Feb 31).
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Second).Add(time.Second)

	// 4 years covers every leap year cycle.
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}

		// Wildcards produce full bitsets, so checking both day
		// constraints gives AND semantics with a wildcard field.
		if !s.daysOfMonth.has(t.Day()) || !s.daysOfWeek.has(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}

		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}

		if !s.minutes.has(t.Minute()) {
			t = t.Truncate(time.Minute).Add(time.Minute)
			continue
		}

		if !s.seconds.has(t.Second()) {
			t = t.Add(time.Second)
			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no matching time within 4 years of %s", t.Format(time.RFC3339))
}

// parseField parses a single cron field into a bitset. The field may
// contain comma-separated terms, each of which is a wildcard, value,
// range, or stepped range/wildcard.
func parseField(field string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(field, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", field)
	}
	return result, nil
}

// parseTerm parses a single term: *, */N, V, V-V, V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	rangeExpression, stepExpression, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepExpression, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	var rangeStart, rangeEnd int
	switch {
	case rangeExpression == "*":
		rangeStart, rangeEnd = minimum, maximum

	case strings.Contains(rangeExpression, "-"):
		startText, endText, _ := strings.Cut(rangeExpression, "-")
		var err error
		if rangeStart, err = strconv.Atoi(startText); err != nil {
			return 0, fmt.Errorf("invalid range start %q: %w", startText, err)
		}
		if rangeEnd, err = strconv.Atoi(endText); err != nil {
			return 0, fmt.Errorf("invalid range end %q: %w", endText, err)
		}
		if rangeStart > rangeEnd {
			return 0, fmt.Errorf("range start %d > end %d", rangeStart, rangeEnd)
		}

	default:
		value, err := strconv.Atoi(rangeExpression)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", rangeExpression, err)
		}
		rangeStart, rangeEnd = value, value
	}

	if rangeStart < minimum || rangeEnd > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, rangeStart, rangeEnd)
	}

	var result bitset64
	for value := rangeStart; value <= rangeEnd; value += step {
		result.set(value)
	}
	return result, nil
}
