// Package calendar resolves collection dates. Business days are Monday to
// Friday; public holidays are not modeled.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of every collection date.
const DateLayout = time.DateOnly

// Date expressions accepted by ResolveDate besides YYYY-MM-DD.
const (
	ExprToday        = "today"
	ExprYesterday    = "yesterday"
	ExprLastBusiness = "last-business"
	ExprLastWeek     = "last-week"
)

var (
	// ErrFutureDate is returned for dates after the reference day.
	ErrFutureDate = errors.New("date is in the future")

	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("end date is before start date")
)

// IsBusinessDay reports whether t falls on a weekday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Format renders t as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// Parse reads a YYYY-MM-DD date in loc.
func Parse(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// LastBusinessDay returns the n-th business day strictly before from.
// n < 1 is treated as 1.
func LastBusinessDay(from time.Time, n int) time.Time {
	if n < 1 {
		n = 1
	}
	d := Day(from)
	for n > 0 {
		d = d.AddDate(0, 0, -1)
		if IsBusinessDay(d) {
			n--
		}
	}
	return d
}

// BusinessDays returns every business day in [start, end], in order.
func BusinessDays(start, end time.Time) ([]time.Time, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days, nil
}

// ResolveDate turns a date expression into a day relative to now:
// YYYY-MM-DD, "today", "yesterday", "last-business" (previous business day)
// or "last-week" (same weekday seven days ago). Future dates are rejected.
func ResolveDate(expr string, now time.Time) (time.Time, error) {
	today := Day(now)
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case "", ExprToday:
		return today, nil
	case ExprYesterday:
		return today.AddDate(0, 0, -1), nil
	case ExprLastBusiness:
		return LastBusinessDay(today, 1), nil
	case ExprLastWeek:
		return today.AddDate(0, 0, -7), nil
	}

	d, err := Parse(expr, now.Location())
	if err != nil {
		return time.Time{}, err
	}
	if d.After(today) {
		return time.Time{}, fmt.Errorf("%s: %w", expr, ErrFutureDate)
	}
	return d, nil
}
