// Package validity implements the four validity predicate variants used to
// decide when an alarm routing entry applies: Default, Weekly, Monthly, and
// SingleTime. Each non-default variant expands to the set of UTC intervals
// intersecting a given UTC calendar month.
package validity

import (
	"fmt"
	"time"

	"alarm-gateway/internal/timez"
)

// InvalidPredicateError is returned at construction time for impossible
// calendar inputs.
type InvalidPredicateError struct {
	Reason string
}

func (e *InvalidPredicateError) Error() string {
	return fmt.Sprintf("invalid validity predicate: %s", e.Reason)
}

// Interval is a half-open UTC interval [Begin, End).
type Interval struct {
	Begin time.Time
	End   time.Time
}

func (iv Interval) empty() bool { return !iv.Begin.Before(iv.End) }

// intersectsMonth reports whether iv intersects the UTC calendar month
// containing monthOf (any instant within the target month).
func intersectsMonth(iv Interval, monthOf time.Time) bool {
	start := time.Date(monthOf.Year(), monthOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return iv.Begin.Before(end) && iv.End.After(start)
}

// Predicate is a validity rule governing the set of UTC instants during
// which an exception payload list applies.
type Predicate interface {
	// Intervals enumerates every half-open UTC interval intersecting the
	// UTC calendar month containing monthOf, including intervals that
	// began in the previous local month or end in the next.
	Intervals(monthOf time.Time) ([]Interval, error)
	// IsDefault reports whether this predicate is the always-valid
	// fallthrough.
	IsDefault() bool
	// Equal reports structural equality; predicates of different variants
	// are never equal.
	Equal(other Predicate) bool
}

// Default is the always-valid fallthrough predicate. It enumerates to the
// empty set of exception intervals — it is not itself an exception.
type Default struct{}

func NewDefault() Default { return Default{} }

func (Default) Intervals(time.Time) ([]Interval, error) { return nil, nil }
func (Default) IsDefault() bool                         { return true }
func (Default) Equal(other Predicate) bool {
	_, ok := other.(Default)
	return ok
}

// Weekday mirrors time.Weekday to keep this package's public surface
// self-contained.
type Weekday = time.Weekday

// WeekOrdinal selects which occurrence(s) of a weekday within a month a
// Weekly predicate applies to.
type WeekOrdinal int

const (
	Week1 WeekOrdinal = iota + 1
	Week2
	Week3
	Week4
	WeekLast
)

// clockTime is a local wall-clock time-of-day with second resolution.
type clockTime struct {
	hour, min, sec int
}

func NewClockTime(hour, min, sec int) (clockTime, error) {
	if hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		return clockTime{}, &InvalidPredicateError{Reason: fmt.Sprintf("invalid time-of-day %02d:%02d:%02d", hour, min, sec)}
	}
	return clockTime{hour: hour, min: min, sec: sec}, nil
}

func (c clockTime) equal(o clockTime) bool { return c == o }

// Weekly is (weeks, weekday, begin, end). End <= begin means the
// interval crosses midnight.
type Weekly struct {
	zone   *timez.Zone
	weeks  map[WeekOrdinal]bool
	day    time.Weekday
	begin  clockTime
	end    clockTime
	spans  bool // end <= begin: interval crosses midnight
	weekList []WeekOrdinal // insertion-order copy, for Equal/determinism
}

// NewWeekly constructs a Weekly predicate. Fails with InvalidPredicateError
// on an empty week-set, invalid weekday, or begin == end.
func NewWeekly(zone *timez.Zone, weeks []WeekOrdinal, day time.Weekday, beginH, beginM, beginS, endH, endM, endS int) (*Weekly, error) {
	if len(weeks) == 0 {
		return nil, &InvalidPredicateError{Reason: "weekly predicate requires a non-empty week set"}
	}
	if day < time.Sunday || day > time.Saturday {
		return nil, &InvalidPredicateError{Reason: "invalid weekday"}
	}
	begin, err := NewClockTime(beginH, beginM, beginS)
	if err != nil {
		return nil, err
	}
	end, err := NewClockTime(endH, endM, endS)
	if err != nil {
		return nil, err
	}
	if begin.equal(end) {
		return nil, &InvalidPredicateError{Reason: "weekly predicate begin must differ from end"}
	}
	set := make(map[WeekOrdinal]bool, len(weeks))
	list := make([]WeekOrdinal, 0, len(weeks))
	for _, w := range weeks {
		if !set[w] {
			set[w] = true
			list = append(list, w)
		}
	}
	if zone == nil {
		zone = timez.Default
	}
	return &Weekly{
		zone:     zone,
		weeks:    set,
		day:      day,
		begin:    begin,
		end:      end,
		spans:    end.hour < begin.hour || (end.hour == begin.hour && (end.min < begin.min || (end.min == begin.min && end.sec <= begin.sec))),
		weekList: list,
	}, nil
}

func (Weekly) IsDefault() bool { return false }

func (w *Weekly) Equal(other Predicate) bool {
	o, ok := other.(*Weekly)
	if !ok {
		return false
	}
	if w.day != o.day || w.begin != o.begin || o.end != w.end {
		return false
	}
	if len(w.weeks) != len(o.weeks) {
		return false
	}
	for k := range w.weeks {
		if !o.weeks[k] {
			return false
		}
	}
	return true
}

// weekdayOccurrencesInMonth returns the day-of-month (1-based) of every
// occurrence of day within the given local calendar month, in ascending
// order.
func weekdayOccurrencesInMonth(loc *time.Location, year int, month time.Month, day time.Weekday) []int {
	var out []int
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	for d := 1; d <= lastDay; d++ {
		if time.Date(year, month, d, 0, 0, 0, 0, loc).Weekday() == day {
			out = append(out, d)
		}
	}
	return out
}

// resolveOrdinals maps the predicate's week ordinals onto actual
// day-of-month values for one local month, deduplicating the WeekLast alias
// with an explicit Week4 selection in a month with four occurrences.
func (w *Weekly) resolveOrdinals(loc *time.Location, year int, month time.Month) []int {
	occurrences := weekdayOccurrencesInMonth(loc, year, month, w.day)
	seen := map[int]bool{}
	var days []int
	add := func(idx int) {
		if idx < 0 || idx >= len(occurrences) {
			return
		}
		d := occurrences[idx]
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	for _, ord := range w.weekList {
		switch ord {
		case Week1:
			add(0)
		case Week2:
			add(1)
		case Week3:
			add(2)
		case Week4:
			add(3)
		case WeekLast:
			if len(occurrences) >= 5 {
				add(4)
			} else {
				add(3)
			}
		}
	}
	return days
}

// Intervals implements Predicate for Weekly: compute candidate local months
// {prev, this, next}, enumerate each qualifying local begin-instant, add the
// wall-clock duration, convert both endpoints to UTC, drop empties, and keep
// only intervals intersecting the requested UTC month.
func (w *Weekly) Intervals(monthOf time.Time) ([]Interval, error) {
	loc := w.zone.Location()
	var out []Interval
	for _, off := range [...]int{-1, 0, 1} {
		anchor := time.Date(monthOf.In(loc).Year(), monthOf.In(loc).Month(), 1, 0, 0, 0, 0, loc).AddDate(0, off, 0)
		for _, day := range w.resolveOrdinals(loc, anchor.Year(), anchor.Month()) {
			beginUTC, err := w.zone.LocalToUTC(anchor.Year(), int(anchor.Month()), day, w.begin.hour, w.begin.min, w.begin.sec, 0)
			if err != nil {
				return nil, err
			}
			endDay := day
			endYear, endMonth := anchor.Year(), anchor.Month()
			if w.spans {
				nextDay := time.Date(anchor.Year(), anchor.Month(), day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
				endYear, endMonth, endDay = nextDay.Year(), nextDay.Month(), nextDay.Day()
			}
			endUTC, err := w.zone.LocalToUTC(endYear, int(endMonth), endDay, w.end.hour, w.end.min, w.end.sec, 0)
			if err != nil {
				return nil, err
			}
			iv := Interval{Begin: beginUTC, End: endUTC}
			if iv.empty() {
				continue
			}
			if !intersectsMonth(iv, monthOf) {
				continue
			}
			out = append(out, iv)
		}
	}
	return dedupe(out), nil
}

func dedupe(ivs []Interval) []Interval {
	var out []Interval
	for _, iv := range ivs {
		dup := false
		for _, existing := range out {
			if existing.Begin.Equal(iv.Begin) && existing.End.Equal(iv.End) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, iv)
		}
	}
	return out
}

// Monthly is (day-of-month, months, begin, end). If the day
// does not exist in a given month, that occurrence is silently skipped.
type Monthly struct {
	zone    *timez.Zone
	day     int
	months  map[time.Month]bool
	monthList []time.Month
	begin   clockTime
	end     clockTime
	spans   bool
}

func NewMonthly(zone *timez.Zone, day int, months []time.Month, beginH, beginM, beginS, endH, endM, endS int) (*Monthly, error) {
	if day < 1 || day > 31 {
		return nil, &InvalidPredicateError{Reason: "day-of-month must be 1-31"}
	}
	if len(months) == 0 {
		return nil, &InvalidPredicateError{Reason: "monthly predicate requires a non-empty month set"}
	}
	begin, err := NewClockTime(beginH, beginM, beginS)
	if err != nil {
		return nil, err
	}
	end, err := NewClockTime(endH, endM, endS)
	if err != nil {
		return nil, err
	}
	if begin.equal(end) {
		return nil, &InvalidPredicateError{Reason: "monthly predicate begin must differ from end"}
	}
	set := make(map[time.Month]bool, len(months))
	list := make([]time.Month, 0, len(months))
	for _, m := range months {
		if m < time.January || m > time.December {
			return nil, &InvalidPredicateError{Reason: "invalid month"}
		}
		if !set[m] {
			set[m] = true
			list = append(list, m)
		}
	}
	if zone == nil {
		zone = timez.Default
	}
	return &Monthly{
		zone: zone, day: day, months: set, monthList: list, begin: begin, end: end,
		spans: end.hour < begin.hour || (end.hour == begin.hour && (end.min < begin.min || (end.min == begin.min && end.sec <= begin.sec))),
	}, nil
}

func (Monthly) IsDefault() bool { return false }

func (m *Monthly) Equal(other Predicate) bool {
	o, ok := other.(*Monthly)
	if !ok {
		return false
	}
	if m.day != o.day || m.begin != o.begin || m.end != o.end {
		return false
	}
	if len(m.months) != len(o.months) {
		return false
	}
	for k := range m.months {
		if !o.months[k] {
			return false
		}
	}
	return true
}

func daysInMonth(loc *time.Location, year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

func (m *Monthly) Intervals(monthOf time.Time) ([]Interval, error) {
	loc := m.zone.Location()
	var out []Interval
	for _, off := range [...]int{-1, 0, 1} {
		anchor := time.Date(monthOf.In(loc).Year(), monthOf.In(loc).Month(), 1, 0, 0, 0, 0, loc).AddDate(0, off, 0)
		if !m.months[anchor.Month()] {
			continue
		}
		if m.day > daysInMonth(loc, anchor.Year(), anchor.Month()) {
			continue // day does not exist this month: silently skipped
		}
		beginUTC, err := m.zone.LocalToUTC(anchor.Year(), int(anchor.Month()), m.day, m.begin.hour, m.begin.min, m.begin.sec, 0)
		if err != nil {
			return nil, err
		}
		endYear, endMonth, endDay := anchor.Year(), anchor.Month(), m.day
		if m.spans {
			nextDay := time.Date(anchor.Year(), anchor.Month(), m.day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
			endYear, endMonth, endDay = nextDay.Year(), nextDay.Month(), nextDay.Day()
		}
		endUTC, err := m.zone.LocalToUTC(endYear, int(endMonth), endDay, m.end.hour, m.end.min, m.end.sec, 0)
		if err != nil {
			return nil, err
		}
		iv := Interval{Begin: beginUTC, End: endUTC}
		if iv.empty() || !intersectsMonth(iv, monthOf) {
			continue
		}
		out = append(out, iv)
	}
	return dedupe(out), nil
}

// SingleTime is (begin, end) — a single absolute local date-time range.
// end must be strictly after begin.
type SingleTime struct {
	zone  *timez.Zone
	begin civilInstant
	end   civilInstant
}

type civilInstant struct {
	year, month, day, hour, min, sec int
}

func NewSingleTime(zone *timez.Zone, beginY, beginMo, beginD, beginH, beginMi, beginS int, endY, endMo, endD, endH, endMi, endS int) (*SingleTime, error) {
	if zone == nil {
		zone = timez.Default
	}
	begin := civilInstant{beginY, beginMo, beginD, beginH, beginMi, beginS}
	end := civilInstant{endY, endMo, endD, endH, endMi, endS}
	beginUTC, err := zone.LocalToUTC(begin.year, begin.month, begin.day, begin.hour, begin.min, begin.sec, 0)
	if err != nil {
		return nil, err
	}
	endUTC, err := zone.LocalToUTC(end.year, end.month, end.day, end.hour, end.min, end.sec, 0)
	if err != nil {
		return nil, err
	}
	if !endUTC.After(beginUTC) {
		return nil, &InvalidPredicateError{Reason: "single-time predicate requires end > begin"}
	}
	return &SingleTime{zone: zone, begin: begin, end: end}, nil
}

func (SingleTime) IsDefault() bool { return false }

func (s *SingleTime) Equal(other Predicate) bool {
	o, ok := other.(*SingleTime)
	return ok && s.begin == o.begin && s.end == o.end
}

func (s *SingleTime) Intervals(monthOf time.Time) ([]Interval, error) {
	beginUTC, err := s.zone.LocalToUTC(s.begin.year, s.begin.month, s.begin.day, s.begin.hour, s.begin.min, s.begin.sec, 0)
	if err != nil {
		return nil, err
	}
	endUTC, err := s.zone.LocalToUTC(s.end.year, s.end.month, s.end.day, s.end.hour, s.end.min, s.end.sec, 0)
	if err != nil {
		return nil, err
	}
	iv := Interval{Begin: beginUTC, End: endUTC}
	if iv.empty() || !intersectsMonth(iv, monthOf) {
		return nil, nil
	}
	return []Interval{iv}, nil
}
