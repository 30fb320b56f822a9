// Package timeparse turns colloquial Chinese time expressions into either a
// concrete instant or a recurrence pattern.
//
// Rules are tried in a fixed order and the first match wins: relative
// durations first, then recurrence prefixes from most to least specific
// (每年, 每月, 每周, 每天), then absolute date/time expressions. The text
// after a matched prefix must be fully consumed; leftover junk fails the
// whole parse rather than silently defaulting.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/remind/recur"
)

var (
	// ErrUnrecognized means no rule matched the text, or a rule matched but
	// left unconsumed residue.
	ErrUnrecognized = errors.New("time expression not recognized")
	// ErrPastTime means the expression resolved to an instant strictly
	// before the reference time.
	ErrPastTime = errors.New("time already passed")
	// ErrInvalidTime means the expression named a nonexistent instant,
	// such as 25点 or 2月30日.
	ErrInvalidTime = errors.New("time expression out of range")
)

type Kind int

const (
	Absolute Kind = iota
	Recurring
)

// Result is a successful parse. At is set for Absolute, Pattern for
// Recurring.
type Result struct {
	Kind    Kind
	At      time.Time
	Pattern recur.Pattern
}

var (
	reRelative = regexp.MustCompile(`^(?:(\d+)\s*(?:个)?\s*小时)?\s*(?:(\d+)\s*分钟)?(?:之|以)?后$`)
	reYearly   = regexp.MustCompile(`^每年(\d{1,2})月(\d{1,2})日(.*)$`)
	reMonthly  = regexp.MustCompile(`^每月(\d{1,2})日(.*)$`)
	reWeekly   = regexp.MustCompile(`^每(?:周|星期|礼拜)([一二三四五六日天0-7])(.*)$`)
	reDaily    = regexp.MustCompile(`^每天(.*)$`)

	reDateYMD = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	reDateCN  = regexp.MustCompile(`(?:(\d{4})年)?(?:(\d{1,2})月)?(\d{1,2})日`)

	reClockHMS = regexp.MustCompile(`^(\d{1,2}):(\d{1,2}):(\d{1,2})$`)
	reClockHM  = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)
	reClockH   = regexp.MustCompile(`^(\d{1,2})$`)
)

// colloquialDurations rewrites spoken duration forms before the relative
// rule runs. Longer forms first so 一个半小时 never half-matches.
var colloquialDurations = strings.NewReplacer(
	"一个半小时", "90分钟",
	"半个小时", "30分钟",
	"半小时", "30分钟",
	"一刻钟", "15分钟",
)

// compoundDays expands fused day words so the day keyword scan sees them,
// and unifies 号 with 日.
var compoundDays = strings.NewReplacer(
	"每晚", "每天晚上",
	"每早", "每天早上",
	"今晚", "今天晚上",
	"明晚", "明天晚上",
	"后晚", "后天晚上",
	"今早", "今天早上",
	"明早", "明天早上",
	"后早", "后天早上",
	"号", "日",
	"：", ":",
)

var weekdayValues = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6,
	"日": 0, "天": 0,
	"0": 0, "1": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 0,
}

// Parse interprets text relative to now. The resulting instant (for
// Absolute) carries now's location.
func Parse(text string, now time.Time) (Result, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Result{}, ErrUnrecognized
	}

	if at, ok, err := parseRelative(s, now); ok {
		return Result{Kind: Absolute, At: at}, err
	}
	if pat, ok, err := parseRecurring(s); ok {
		return Result{Kind: Recurring, Pattern: pat}, err
	}
	return parseAbsolute(s, now)
}

func parseRelative(s string, now time.Time) (time.Time, bool, error) {
	m := reRelative.FindStringSubmatch(colloquialDurations.Replace(s))
	if m == nil || (m[1] == "" && m[2] == "") {
		return time.Time{}, false, nil
	}
	var d time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		d += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		min, _ := strconv.Atoi(m[2])
		d += time.Duration(min) * time.Minute
	}
	if d <= 0 {
		return time.Time{}, true, fmt.Errorf("%w: zero duration", ErrInvalidTime)
	}
	return now.Add(d), true, nil
}

func parseRecurring(s string) (recur.Pattern, bool, error) {
	norm := compoundDays.Replace(s)

	if m := reYearly.FindStringSubmatch(norm); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		clk, err := requireClock(m[3])
		if err != nil {
			return recur.Pattern{}, true, err
		}
		return recur.Pattern{
			Family: recur.Yearly, Month: month, Day: day,
			Hour: clk.hour, Minute: clk.min, Second: clk.sec,
		}, true, nil
	}
	if m := reMonthly.FindStringSubmatch(norm); m != nil {
		day, _ := strconv.Atoi(m[1])
		clk, err := requireClock(m[2])
		if err != nil {
			return recur.Pattern{}, true, err
		}
		return recur.Pattern{
			Family: recur.Monthly, Day: day,
			Hour: clk.hour, Minute: clk.min, Second: clk.sec,
		}, true, nil
	}
	if m := reWeekly.FindStringSubmatch(norm); m != nil {
		wd, ok := weekdayValues[m[1]]
		if !ok {
			return recur.Pattern{}, true, fmt.Errorf("%w: weekday %q", ErrUnrecognized, m[1])
		}
		clk, err := requireClock(m[2])
		if err != nil {
			return recur.Pattern{}, true, err
		}
		return recur.Pattern{
			Family: recur.Weekly, Weekday: wd,
			Hour: clk.hour, Minute: clk.min, Second: clk.sec,
		}, true, nil
	}
	if m := reDaily.FindStringSubmatch(norm); m != nil {
		clk, err := requireClock(m[1])
		if err != nil {
			return recur.Pattern{}, true, err
		}
		return recur.Pattern{
			Family: recur.Daily,
			Hour: clk.hour, Minute: clk.min, Second: clk.sec,
		}, true, nil
	}
	return recur.Pattern{}, false, nil
}

// requireClock parses the time-of-day part of a recurrence, which must be
// present and fully consumed.
func requireClock(s string) (clock, error) {
	clk, explicit, err := parseClock(s)
	if err != nil {
		return clock{}, err
	}
	if !explicit {
		return clock{}, fmt.Errorf("%w: recurrence without a time of day", ErrUnrecognized)
	}
	return clk, nil
}

func parseAbsolute(s string, now time.Time) (Result, error) {
	norm := compoundDays.Replace(s)

	year, month, day := now.Year(), int(now.Month()), now.Day()
	dateExplicit := false
	rest := norm

	switch {
	case strings.Contains(norm, "后天"):
		t := now.AddDate(0, 0, 2)
		year, month, day = t.Year(), int(t.Month()), t.Day()
		rest = strings.Replace(norm, "后天", "", 1)
		dateExplicit = true
	case strings.Contains(norm, "明天"):
		t := now.AddDate(0, 0, 1)
		year, month, day = t.Year(), int(t.Month()), t.Day()
		rest = strings.Replace(norm, "明天", "", 1)
		dateExplicit = true
	case strings.Contains(norm, "今天"):
		rest = strings.Replace(norm, "今天", "", 1)
		dateExplicit = true
	default:
		if m := reDateYMD.FindStringSubmatch(norm); m != nil {
			year, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			day, _ = strconv.Atoi(m[3])
			rest = strings.Replace(norm, m[0], "", 1)
			dateExplicit = true
		} else if m := reDateCN.FindStringSubmatch(norm); m != nil {
			if m[1] != "" {
				year, _ = strconv.Atoi(m[1])
			}
			if m[2] != "" {
				month, _ = strconv.Atoi(m[2])
			}
			day, _ = strconv.Atoi(m[3])
			rest = strings.Replace(norm, m[0], "", 1)
			dateExplicit = true
		}
	}

	clk, clockExplicit, err := parseClock(rest)
	if err != nil {
		return Result{}, err
	}
	if !dateExplicit && !clockExplicit {
		return Result{}, ErrUnrecognized
	}
	if !clockExplicit {
		clk = clock{hour: 8}
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Result{}, fmt.Errorf("%w: %d月%d日", ErrInvalidTime, month, day)
	}
	at := time.Date(year, time.Month(month), day, clk.hour, clk.min, clk.sec, 0, now.Location())
	// time.Date normalizes overflow (2月30日 becomes March); reject that.
	if at.Year() != year || int(at.Month()) != month || at.Day() != day {
		return Result{}, fmt.Errorf("%w: %d月%d日", ErrInvalidTime, month, day)
	}
	if at.Before(now) {
		return Result{}, ErrPastTime
	}
	return Result{Kind: Absolute, At: at}, nil
}

type clock struct {
	hour, min, sec int
}

var clockNorm = strings.NewReplacer(
	"：", ":",
	"点", ":",
	"时", ":",
	"半", "30",
	"分", ":",
	"秒", "",
)

// parseClock interprets a time-of-day fragment. It returns explicit=false
// for an empty fragment; a non-empty fragment that is not a pure clock
// expression is an error. 下午 and 晚上 shift hours in [1,12) to the
// afternoon; 12 itself stays 12 so 下午12点 means noon.
func parseClock(s string) (clock, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return clock{}, false, nil
	}

	isPM := strings.Contains(s, "下午") || strings.Contains(s, "晚上")
	hasDigit := strings.ContainsAny(s, "0123456789")
	if strings.Contains(s, "中午") && !hasDigit {
		return clock{hour: 12}, true, nil
	}
	for _, q := range []string{"凌晨", "早上", "上午", "中午", "下午", "晚上"} {
		s = strings.ReplaceAll(s, q, "")
	}

	s = clockNorm.Replace(s)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ":"))
	if s == "" {
		return clock{}, false, nil
	}

	var c clock
	switch {
	case reClockHMS.MatchString(s):
		m := reClockHMS.FindStringSubmatch(s)
		c.hour, _ = strconv.Atoi(m[1])
		c.min, _ = strconv.Atoi(m[2])
		c.sec, _ = strconv.Atoi(m[3])
	case reClockHM.MatchString(s):
		m := reClockHM.FindStringSubmatch(s)
		c.hour, _ = strconv.Atoi(m[1])
		c.min, _ = strconv.Atoi(m[2])
	case reClockH.MatchString(s):
		c.hour, _ = strconv.Atoi(s)
	default:
		return clock{}, false, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}

	if isPM && c.hour >= 1 && c.hour < 12 {
		c.hour += 12
	}
	if c.hour > 23 || c.min > 59 || c.sec > 59 {
		return clock{}, false, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTime, c.hour, c.min, c.sec)
	}
	return c, true, nil
}
