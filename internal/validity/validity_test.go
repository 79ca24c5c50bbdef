package validity

import (
	"testing"
	"time"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load Europe/Berlin: %v", err)
	}
	return loc
}

func TestWeekly_Scenario_TwoOctoberSundays(t *testing.T) {
	w, err := NewWeekly(nil, []WeekOrdinal{Week1, Week3}, time.Sunday, 7, 9, 4, 7, 21, 23)
	if err != nil {
		t.Fatalf("NewWeekly: %v", err)
	}
	month := time.Date(2016, 10, 1, 0, 0, 0, 0, time.UTC)
	ivs, err := w.Intervals(month)
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(ivs) != 2 {
		t.Fatalf("got %d intervals, want 2: %+v", len(ivs), ivs)
	}
	wantWidth := 12*time.Minute + 19*time.Second
	for _, iv := range ivs {
		if got := iv.End.Sub(iv.Begin); got != wantWidth {
			t.Errorf("interval width = %v, want %v", got, wantWidth)
		}
	}
	if !ivs[0].Begin.Before(ivs[1].Begin) {
		t.Fatalf("expected intervals in chronological order: %+v", ivs)
	}
	loc := berlin(t)
	d1 := ivs[0].Begin.In(loc).Day()
	d2 := ivs[1].Begin.In(loc).Day()
	if d1 != 2 || d2 != 16 {
		t.Fatalf("expected Oct 2 and Oct 16, got %d and %d", d1, d2)
	}
}

func TestWeekly_EmptyWeekSetRejected(t *testing.T) {
	if _, err := NewWeekly(nil, nil, time.Sunday, 7, 0, 0, 8, 0, 0); err == nil {
		t.Fatal("expected InvalidPredicateError for empty week set")
	}
}

func TestWeekly_BeginEqualsEndRejected(t *testing.T) {
	if _, err := NewWeekly(nil, []WeekOrdinal{Week1}, time.Monday, 7, 0, 0, 7, 0, 0); err == nil {
		t.Fatal("expected InvalidPredicateError for begin == end")
	}
}

// TestWeekly_SpringGapPromotesBeginOnly covers a begin instant that falls
// inside the spring-forward gap ([02:00,03:00) local on 2026-03-29) while end
// (03:30 local) does not: only begin is promoted to the first valid instant
// after the gap, so the occurrence survives as a non-empty interval.
func TestWeekly_SpringGapPromotesBeginOnly(t *testing.T) {
	// 2026-03-29 is the last Sunday of March 2026 (spring-forward day).
	w, err := NewWeekly(nil, []WeekOrdinal{WeekLast}, time.Sunday, 2, 30, 0, 3, 30, 0)
	if err != nil {
		t.Fatalf("NewWeekly: %v", err)
	}
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ivs, err := w.Intervals(month)
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	var found *Interval
	for i := range ivs {
		if ivs[i].Begin.In(time.UTC).Day() == 29 && ivs[i].Begin.Month() == time.March {
			found = &ivs[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a March 29 occurrence, got %+v", ivs)
	}
	wantBegin := time.Date(2026, 3, 29, 1, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 29, 1, 30, 0, 0, time.UTC)
	if !found.Begin.Equal(wantBegin) {
		t.Fatalf("expected begin promoted to %v (first instant after the gap), got %v", wantBegin, found.Begin)
	}
	if !found.End.Equal(wantEnd) {
		t.Fatalf("expected end unaffected by the gap at %v, got %v", wantEnd, found.End)
	}
}

// TestWeekly_SpringGapBothEndpointsInsideExpandsToEmpty covers the case the
// spec's general gap rule actually targets: begin and end both fall inside
// the gap, so both promote to the same post-gap instant and the occurrence
// is empty.
func TestWeekly_SpringGapBothEndpointsInsideExpandsToEmpty(t *testing.T) {
	w, err := NewWeekly(nil, []WeekOrdinal{WeekLast}, time.Sunday, 2, 10, 0, 2, 50, 0)
	if err != nil {
		t.Fatalf("NewWeekly: %v", err)
	}
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ivs, err := w.Intervals(month)
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	for _, iv := range ivs {
		if iv.Begin.Day() == 29 && iv.Begin.Month() == time.March {
			t.Fatalf("expected the gap occurrence to vanish when both endpoints fall inside the gap, got %+v", iv)
		}
	}
}

func TestMonthly_Day29SkipsNonLeapFebruary(t *testing.T) {
	m, err := NewMonthly(nil, 29, []time.Month{time.February}, 8, 0, 0, 9, 0, 0)
	if err != nil {
		t.Fatalf("NewMonthly: %v", err)
	}
	ivs, err := m.Intervals(time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(ivs) != 0 {
		t.Fatalf("expected 0 intervals for Feb 2023 (non-leap), got %d", len(ivs))
	}
}

func TestMonthly_Day29LeapFebruary(t *testing.T) {
	m, err := NewMonthly(nil, 29, []time.Month{time.February}, 8, 0, 0, 9, 0, 0)
	if err != nil {
		t.Fatalf("NewMonthly: %v", err)
	}
	ivs, err := m.Intervals(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(ivs) != 1 {
		t.Fatalf("expected 1 interval for Feb 2024 (leap), got %d", len(ivs))
	}
}

func TestSingleTime_FallOverlapUsesFirstPass(t *testing.T) {
	st, err := NewSingleTime(nil, 2016, 10, 30, 2, 15, 0, 2016, 10, 30, 2, 45, 0)
	if err != nil {
		t.Fatalf("NewSingleTime: %v", err)
	}
	ivs, err := st.Intervals(time.Date(2016, 10, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(ivs) != 1 {
		t.Fatalf("expected exactly one interval, got %d", len(ivs))
	}
	want := time.Date(2016, 10, 30, 0, 15, 0, 0, time.UTC)
	if !ivs[0].Begin.Equal(want) {
		t.Fatalf("begin = %v, want %v", ivs[0].Begin, want)
	}
}

func TestSingleTime_EndMustExceedBegin(t *testing.T) {
	if _, err := NewSingleTime(nil, 2024, 1, 1, 10, 0, 0, 2024, 1, 1, 9, 0, 0); err == nil {
		t.Fatal("expected InvalidPredicateError when end <= begin")
	}
}

func TestDefault_EnumeratesEmpty(t *testing.T) {
	d := NewDefault()
	ivs, err := d.Intervals(time.Now())
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	if len(ivs) != 0 {
		t.Fatalf("expected no intervals from Default, got %d", len(ivs))
	}
	if !d.IsDefault() {
		t.Fatal("Default.IsDefault() should be true")
	}
}

func TestPredicateEquality_DifferentVariantsNeverEqual(t *testing.T) {
	d := NewDefault()
	w, _ := NewWeekly(nil, []WeekOrdinal{Week1}, time.Monday, 8, 0, 0, 9, 0, 0)
	if d.Equal(w) || w.Equal(d) {
		t.Fatal("predicates of different variants must never be equal")
	}
}

func TestIntervals_AllIntersectRequestedMonth(t *testing.T) {
	w, err := NewWeekly(nil, []WeekOrdinal{Week1, Week2, Week3, Week4, WeekLast}, time.Friday, 23, 0, 0, 1, 0, 0)
	if err != nil {
		t.Fatalf("NewWeekly: %v", err)
	}
	month := time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)
	monthStart := month
	monthEnd := month.AddDate(0, 1, 0)
	ivs, err := w.Intervals(month)
	if err != nil {
		t.Fatalf("Intervals: %v", err)
	}
	for _, iv := range ivs {
		if iv.End.Before(monthStart) || iv.Begin.After(monthEnd) || !iv.Begin.Before(iv.End) {
			t.Errorf("interval %+v does not intersect %v..%v", iv, monthStart, monthEnd)
		}
	}
}
