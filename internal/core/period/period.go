// Package period resolves reporting windows for weekly, monthly and quarterly
// reports in a seller's timezone. A window is a closed date interval; both
// ends are local midnights and End is inclusive
package period

import (
	"fmt"
	"strings"
	"time"

	"mixshift/internal/platform/clock"
)

// Type is the reporting period of a report
type Type uint8

const (
	// Week is a Sunday through Saturday window
	Week Type = iota + 1
	// Month is a calendar month
	Month
	// Quarter is a calendar quarter
	Quarter
)

// All lists every Type in processing order
var All = []Type{Week, Month, Quarter}

var typeNames = map[Type]string{Week: "WEEK", Month: "MONTH", Quarter: "QUARTER"}

// String returns the provider period name
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of All
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType accepts WEEK, MONTH or QUARTER in any case
func ParseType(s string) (Type, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown report type %q", s)
}

const dateLayout = "2006-01-02"

// Window is one reporting interval
type Window struct {
	Type  Type
	Start time.Time
	End   time.Time
}

// String renders the window as an ISO 8601 interval, e.g. 2026-10-04/2026-10-10
func (w Window) String() string {
	if w.Start.IsZero() {
		return ""
	}
	return w.Start.Format(dateLayout) + "/" + w.End.Format(dateLayout)
}

// ParseWindow is the inverse of Window.String
func ParseWindow(t Type, s string, loc *time.Location) (Window, error) {
	a, b, ok := strings.Cut(s, "/")
	if !ok {
		return Window{}, fmt.Errorf("malformed range %q", s)
	}
	start, err := time.ParseInLocation(dateLayout, a, loc)
	if err != nil {
		return Window{}, fmt.Errorf("range start: %w", err)
	}
	end, err := time.ParseInLocation(dateLayout, b, loc)
	if err != nil {
		return Window{}, fmt.Errorf("range end: %w", err)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("range %q ends before it starts", s)
	}
	return Window{Type: t, Start: start, End: end}, nil
}

// Schedule holds publication rules. Zero fields take defaults in Normalize
type Schedule struct {
	Location *time.Location

	// WeekUnlock is the first weekday on which weekly reports may be requested
	WeekUnlock time.Weekday
	// MonthUnlockDay is the first day of month on which monthly reports may be requested
	MonthUnlockDay int
	// QuarterUnlockDay is the first day of quarter (1 based) for quarterly reports
	QuarterUnlockDay int
	// RollbackDays: within the first N days of a month the previous month is
	// treated as unpublished. Quarters apply it in their first month only
	RollbackDays int
	// MaxPending caps catch-up enumeration per type
	MaxPending int
}

// DefaultSchedule unlocks weekly reports on Tuesday and rolls months back for 3 days
func DefaultSchedule() Schedule {
	return Schedule{
		Location:         time.UTC,
		WeekUnlock:       time.Tuesday,
		MonthUnlockDay:   1,
		QuarterUnlockDay: 1,
		RollbackDays:     3,
		MaxPending:       12,
	}
}

// Normalize fills zero values from DefaultSchedule
func (s Schedule) Normalize() Schedule {
	d := DefaultSchedule()
	if s.Location == nil {
		s.Location = d.Location
	}
	if s.MonthUnlockDay < 1 {
		s.MonthUnlockDay = d.MonthUnlockDay
	}
	if s.QuarterUnlockDay < 1 {
		s.QuarterUnlockDay = d.QuarterUnlockDay
	}
	if s.RollbackDays < 0 {
		s.RollbackDays = 0
	}
	if s.MaxPending < 1 {
		s.MaxPending = d.MaxPending
	}
	return s
}

// Day truncates t to local midnight in loc
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func quarterStart(day time.Time) time.Time {
	m := ((int(day.Month())-1)/3)*3 + 1
	return time.Date(day.Year(), time.Month(m), 1, 0, 0, 0, 0, day.Location())
}

// daysBetween counts calendar days from a to b ignoring DST shifts
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func windowAt(t Type, start time.Time) Window {
	switch t {
	case Week:
		return Window{Type: t, Start: start, End: start.AddDate(0, 0, 6)}
	case Month:
		return Window{Type: t, Start: start, End: start.AddDate(0, 1, -1)}
	default:
		return Window{Type: t, Start: start, End: start.AddDate(0, 3, -1)}
	}
}

// previous returns the window immediately before w
func previous(w Window) Window {
	switch w.Type {
	case Week:
		return windowAt(w.Type, w.Start.AddDate(0, 0, -7))
	case Month:
		return windowAt(w.Type, w.Start.AddDate(0, -1, 0))
	default:
		return windowAt(w.Type, w.Start.AddDate(0, -3, 0))
	}
}

// Next returns the window immediately after w
func Next(w Window) Window { return windowAt(w.Type, w.End.AddDate(0, 0, 1)) }

// LatestClosed returns the most recent published window of t as seen on today
func LatestClosed(t Type, today time.Time, s Schedule) Window {
	s = s.Normalize()
	today = Day(today, s.Location)
	switch t {
	case Week:
		cur := today.AddDate(0, 0, -int(today.Weekday()))
		return windowAt(Week, cur.AddDate(0, 0, -7))
	case Month:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.Location)
		w := windowAt(Month, first.AddDate(0, -1, 0))
		if today.Day() <= s.RollbackDays {
			w = previous(w)
		}
		return w
	default:
		qs := quarterStart(today)
		w := windowAt(Quarter, qs.AddDate(0, -3, 0))
		if today.Month() == qs.Month() && today.Day() <= s.RollbackDays {
			w = previous(w)
		}
		return w
	}
}

// Delayed reports whether t must not be requested yet on today.
// The unlock day itself is not delayed
func Delayed(t Type, today time.Time, s Schedule) bool {
	s = s.Normalize()
	today = Day(today, s.Location)
	switch t {
	case Week:
		return today.Weekday() < s.WeekUnlock
	case Month:
		return today.Day() < s.MonthUnlockDay
	default:
		return daysBetween(quarterStart(today), today)+1 < s.QuarterUnlockDay
	}
}

// Pending lists, oldest first, every published window of t that closed after
// lastPull and on or before today. A window ending on day E closes at E+1, so
// it is pending when E >= lastPull and E < today. A zero lastPull yields only
// the latest window. The result is capped at the s.MaxPending oldest windows;
// Resume tells the caller where the next catch-up pass starts
func Pending(t Type, lastPull, today time.Time, s Schedule) []Window {
	s = s.Normalize()
	today = Day(today, s.Location)
	latest := LatestClosed(t, today, s)
	if lastPull.IsZero() {
		return []Window{latest}
	}
	lp := Day(lastPull, s.Location)
	if !lp.Before(today) {
		return nil
	}

	var rev []Window
	for w := latest; !w.End.Before(lp); w = previous(w) {
		rev = append(rev, w)
	}
	n := min(len(rev), s.MaxPending)
	out := make([]Window, n)
	for i := range n {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

// Resume is the last-pull day that keeps every window of t after ws pending.
// It is zero when ws already reaches the latest closed window
func Resume(t Type, ws []Window, today time.Time, s Schedule) time.Time {
	if len(ws) == 0 {
		return time.Time{}
	}
	s = s.Normalize()
	last := ws[len(ws)-1]
	if !LatestClosed(t, Day(today, s.Location), s).End.After(last.End) {
		return time.Time{}
	}
	return Next(last).Start
}

// Watermark is the newest last-pull day that hides no window. A window that
// has closed but cannot be requested yet, because its type is delayed or its
// month is rolled back, holds the watermark at its end so it stays pending
func Watermark(today time.Time, s Schedule) time.Time {
	s = s.Normalize()
	today = Day(today, s.Location)
	wm := today
	for _, t := range All {
		held := LatestClosed(t, today, s)
		if !Delayed(t, today, s) {
			held = Next(held)
		}
		if held.End.Before(wm) {
			wm = held.End
		}
	}
	return wm
}

// Calculator binds a Schedule to a Clock
type Calculator struct {
	s     Schedule
	clock clock.Clock
}

// NewCalculator builds a Calculator; a nil clock means wall time
func NewCalculator(s Schedule, c clock.Clock) *Calculator {
	if c == nil {
		c = clock.System{}
	}
	return &Calculator{s: s.Normalize(), clock: c}
}

// Schedule returns the normalized schedule
func (c *Calculator) Schedule() Schedule { return c.s }

// Today is local midnight of the current day
func (c *Calculator) Today() time.Time { return Day(c.clock.Now(), c.s.Location) }

// LatestClosed is LatestClosed for the current day
func (c *Calculator) LatestClosed(t Type) Window { return LatestClosed(t, c.Today(), c.s) }

// Delayed is Delayed for the current day
func (c *Calculator) Delayed(t Type) bool { return Delayed(t, c.Today(), c.s) }

// Pending is Pending for the current day
func (c *Calculator) Pending(t Type, lastPull time.Time) []Window {
	return Pending(t, lastPull, c.Today(), c.s)
}

// Resume is Resume for the current day
func (c *Calculator) Resume(t Type, ws []Window) time.Time { return Resume(t, ws, c.Today(), c.s) }

// Watermark is Watermark for the current day
func (c *Calculator) Watermark() time.Time { return Watermark(c.Today(), c.s) }
