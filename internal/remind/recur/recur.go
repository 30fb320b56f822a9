// Package recur compiles recognized recurrence patterns into canonical
// 6-field schedule rules and computes next occurrences.
//
// A rule is "second minute hour day-of-month month weekday" with "*" for
// unconstrained fields, e.g. "15 30 20 * * *" for 20:30:15 every day.
package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrBadPattern marks a recognized pattern that does not compile to a valid
// rule (out-of-range fields).
var ErrBadPattern = errors.New("recurrence pattern does not compile")

// ErrNoOccurrence is returned when a rule has no matching instant in the
// search horizon (e.g. second 0 minute 0 hour 0 of Feb 30).
var ErrNoOccurrence = errors.New("rule has no next occurrence")

type Family int

const (
	Daily Family = iota
	Weekly
	Monthly
	Yearly
)

// Pattern is a recognized recurrence before compilation.
// Exactly one of {Month+Day} or {Weekday} is meaningful per family:
// yearly/monthly constrain date fields, weekly constrains the weekday,
// daily constrains neither.
type Pattern struct {
	Family  Family
	Month   int // Yearly
	Day     int // Yearly, Monthly
	Weekday int // Weekly; Sunday=0

	Hour, Minute, Second int
}

// Rule is a compiled recurrence: the canonical 6-field spec plus the
// human-readable label that stays paired with it.
type Rule struct {
	Spec  string
	Label string
}

var weekdayNames = [7]string{"日", "一", "二", "三", "四", "五", "六"}

// Compile validates the pattern and produces its canonical rule.
func Compile(p Pattern) (Rule, error) {
	if p.Hour < 0 || p.Hour > 23 || p.Minute < 0 || p.Minute > 59 || p.Second < 0 || p.Second > 59 {
		return Rule{}, fmt.Errorf("%w: time %02d:%02d:%02d out of range", ErrBadPattern, p.Hour, p.Minute, p.Second)
	}

	switch p.Family {
	case Daily:
		return Rule{
			Spec:  fmt.Sprintf("%d %d %d * * *", p.Second, p.Minute, p.Hour),
			Label: "每天",
		}, nil
	case Weekly:
		if p.Weekday < 0 || p.Weekday > 6 {
			return Rule{}, fmt.Errorf("%w: weekday %d out of range", ErrBadPattern, p.Weekday)
		}
		return Rule{
			Spec:  fmt.Sprintf("%d %d %d * * %d", p.Second, p.Minute, p.Hour, p.Weekday),
			Label: "每周" + weekdayNames[p.Weekday],
		}, nil
	case Monthly:
		if p.Day < 1 || p.Day > 31 {
			return Rule{}, fmt.Errorf("%w: day %d out of range", ErrBadPattern, p.Day)
		}
		return Rule{
			Spec:  fmt.Sprintf("%d %d %d %d * *", p.Second, p.Minute, p.Hour, p.Day),
			Label: fmt.Sprintf("每月%d日", p.Day),
		}, nil
	case Yearly:
		if p.Month < 1 || p.Month > 12 || p.Day < 1 || p.Day > 31 {
			return Rule{}, fmt.Errorf("%w: date %d月%d日 out of range", ErrBadPattern, p.Month, p.Day)
		}
		return Rule{
			Spec:  fmt.Sprintf("%d %d %d %d %d *", p.Second, p.Minute, p.Hour, p.Day, p.Month),
			Label: fmt.Sprintf("每年%d月%d日", p.Month, p.Day),
		}, nil
	default:
		return Rule{}, fmt.Errorf("%w: unknown family %d", ErrBadPattern, p.Family)
	}
}

// All six fields are mandatory; Parse rejects 5-field specs so stored rules
// stay canonical.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Next returns the earliest instant strictly after ref that satisfies spec,
// evaluated in ref's location. It is pure: no timers, no side effects. Both
// the creation-time preview and the post-fire reschedule go through here so
// the two always agree.
func Next(spec string, ref time.Time) (time.Time, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBadPattern, err)
	}
	t := sched.Next(ref)
	if t.IsZero() {
		return time.Time{}, ErrNoOccurrence
	}
	return t, nil
}
