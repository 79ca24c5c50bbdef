// Package timez implements civil-zone time conversion: a single fixed zone
// with DST rules (spring forward / fall back on the last Sundays of March
// and October), local→UTC conversion with gap/overlap disambiguation, and
// the human-readable formatter used in outgoing payload bodies and log
// lines.
package timez

import (
	"fmt"
	"time"
)

// InvalidTimeError is returned when a local wall-clock value is ill-formed
// (e.g. an impossible day-of-month) rather than merely ambiguous.
type InvalidTimeError struct {
	Reason string
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("invalid local time: %s", e.Reason)
}

// Zone wraps a single *time.Location used consistently across the gateway
// for expanding validity predicates and formatting outgoing text. The
// default is Europe/Berlin.
type Zone struct {
	loc *time.Location
}

// Default is the zone used when no explicit *Zone is threaded through
// construction.
var Default = MustLoad("Europe/Berlin")

// MustLoad loads a named zone and panics if it cannot be found; intended for
// package-level defaults and config-time construction only.
func MustLoad(name string) *Zone {
	z, err := Load(name)
	if err != nil {
		panic(fmt.Sprintf("timez: load location %q: %v", name, err))
	}
	return z
}

// Load loads a named zone, returning InvalidTimeError on failure.
func Load(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &InvalidTimeError{Reason: err.Error()}
	}
	return &Zone{loc: loc}, nil
}

func (z *Zone) Location() *time.Location {
	if z == nil {
		return time.UTC
	}
	return z.loc
}

func monthDayValid(month, day int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > 31 {
		return fmt.Errorf("day %d out of range", day)
	}
	return nil
}

// LocalToUTC converts a local wall-clock instant (year/month/day/hour/min/
// sec/nsec, interpreted in z) to UTC.
//
// On a spring-forward gap, the wall-clock instant does not exist; the first
// valid UTC instant after the gap is returned.
//
// On a fall-back overlap, the wall-clock instant occurs twice; the UTC
// instant of the first (daylight-saving-still-active) occurrence is
// returned. Use FormatLocal to render the "A"/"B" disambiguation suffix on
// output.
func (z *Zone) LocalToUTC(year, month, day, hour, min, sec, nsec int) (time.Time, error) {
	if err := monthDayValid(month, day); err != nil {
		return time.Time{}, &InvalidTimeError{Reason: err.Error()}
	}
	loc := z.Location()
	naive := time.Date(year, time.Month(month), day, hour, min, sec, nsec, loc)

	// time.Date never fails; for a wall-clock instant inside a spring-
	// forward gap it silently normalizes by adding the gap width, which we
	// detect by the reconstructed fields no longer matching what we asked
	// for.
	if naive.Year() == year && naive.Month() == time.Month(month) && naive.Day() == day &&
		naive.Hour() == hour && naive.Minute() == min {
		// On a fall-back overlap time.Date picks the second (standard-time)
		// pass; step back to the first pass, which shows the same fields.
		if ambiguousPass(loc, naive) == "B" {
			return naive.Add(-time.Hour).UTC(), nil
		}
		return naive.UTC(), nil
	}

	// Gap: walk back to the last instant whose offset still matches the
	// pre-transition offset, then forward minute-by-minute to the first
	// instant past the transition. DST transitions are at most a few hours
	// wide, so bounding the scan to +/-4h around the naive guess is exact.
	_, offBefore := naive.Add(-4 * time.Hour).Zone()
	for t := naive.Add(-4 * time.Hour).Truncate(time.Minute); t.Before(naive.Add(4 * time.Hour)); t = t.Add(time.Minute) {
		if _, off := t.Zone(); off != offBefore {
			return t.UTC(), nil
		}
	}
	// No transition found in range (shouldn't happen if the mismatch above
	// fired); fall back to the normalized instant.
	return naive.UTC(), nil
}

// sameWallClock reports whether a and b, each viewed in loc, show identical
// year/month/day/hour/minute/second fields.
func sameWallClock(loc *time.Location, a, b time.Time) bool {
	la, lb := a.In(loc), b.In(loc)
	ya, ma, da := la.Date()
	yb, mb, db := lb.Date()
	return ya == yb && ma == mb && da == db && la.Hour() == lb.Hour() && la.Minute() == lb.Minute() && la.Second() == lb.Second()
}

// ambiguousPass reports whether t (in loc) is part of a fall-back overlap —
// i.e. another instant exactly one hour away shares the same wall-clock
// fields — and if so whether t is the "A" (first, still-DST) or "B"
// (second, standard-time) occurrence.
func ambiguousPass(loc *time.Location, t time.Time) string {
	_, off := t.In(loc).Zone()
	for _, delta := range [...]time.Duration{-time.Hour, time.Hour} {
		other := t.Add(delta)
		_, offOther := other.In(loc).Zone()
		if offOther == off {
			continue
		}
		if sameWallClock(loc, t, other) {
			if off < offOther {
				// t has the smaller (standard-time) offset, so it is the
				// later, second pass.
				return "B"
			}
			return "A"
		}
	}
	return ""
}

const germanLayout = "02.01.2006 15:04:05"

var germanWeekdays = map[time.Weekday]string{
	time.Sunday:    "Sonntag",
	time.Monday:    "Montag",
	time.Tuesday:   "Dienstag",
	time.Wednesday: "Mittwoch",
	time.Thursday:  "Donnerstag",
	time.Friday:    "Freitag",
	time.Saturday:  "Samstag",
}

// FormatLocal renders t as "<German weekday>, DD.MM.YYYY hh:mm:ss" in z,
// appending " A" or " B" when t falls in z's autumn overlap.
func (z *Zone) FormatLocal(t time.Time) string {
	loc := z.Location()
	local := t.In(loc)
	base := fmt.Sprintf("%s, %s", germanWeekdays[local.Weekday()], local.Format(germanLayout))
	if suffix := ambiguousPass(loc, t); suffix != "" {
		return base + " " + suffix
	}
	return base
}
