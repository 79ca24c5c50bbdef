// Package routing implements the validity-to-payload mapping
// (AlarmValidities) and the code-keyed routing database
// (AlarmMessageDatabase) that answers "which payloads fire for this tone
// code at this instant?".
package routing

import (
	"sort"
	"time"

	domainerrors "alarm-gateway/pkg/errors"

	"alarm-gateway/internal/payload"
	"alarm-gateway/internal/validity"
)

// Entry is one (predicate, payload-list) pair inside an AlarmValidities.
type Entry struct {
	Predicate validity.Predicate
	Payloads  []payload.Payload
}

func (e Entry) clone() Entry {
	return Entry{Predicate: e.Predicate, Payloads: payload.ClonePayloads(e.Payloads)}
}

// AlarmValidities is an ordered list of (predicate, payload-list) pairs,
// unique on predicate identity. Insertion order is preserved and
// observable.
type AlarmValidities struct {
	entries []Entry
}

func NewAlarmValidities() *AlarmValidities {
	return &AlarmValidities{}
}

func (av *AlarmValidities) indexOf(p validity.Predicate) int {
	for i, e := range av.entries {
		if e.Predicate.Equal(p) {
			return i
		}
	}
	return -1
}

// Add appends a new (predicate, payloads) entry. Rejects a duplicate
// predicate.
func (av *AlarmValidities) Add(p validity.Predicate, payloads []payload.Payload) error {
	if av.indexOf(p) >= 0 {
		return domainerrors.NewConfigError("alarm validities already contain this predicate", nil)
	}
	av.entries = append(av.entries, Entry{Predicate: p, Payloads: payload.ClonePayloads(payloads)})
	return nil
}

// Replace overwrites the payload list of an existing predicate entry.
func (av *AlarmValidities) Replace(p validity.Predicate, payloads []payload.Payload) error {
	idx := av.indexOf(p)
	if idx < 0 {
		return domainerrors.NewConfigError("alarm validities do not contain this predicate", nil)
	}
	av.entries[idx].Payloads = payload.ClonePayloads(payloads)
	return nil
}

// Remove deletes an entry. Removing the default entry is permitted only
// when it is the last entry remaining.
func (av *AlarmValidities) Remove(p validity.Predicate) error {
	idx := av.indexOf(p)
	if idx < 0 {
		return domainerrors.NewConfigError("alarm validities do not contain this predicate", nil)
	}
	if av.entries[idx].Predicate.IsDefault() && len(av.entries) > 1 {
		return domainerrors.NewConfigError("cannot remove the default entry while other predicates remain", nil)
	}
	av.entries = append(av.entries[:idx], av.entries[idx+1:]...)
	return nil
}

// Get returns the payload list for a predicate, if present.
func (av *AlarmValidities) Get(p validity.Predicate) ([]payload.Payload, bool) {
	idx := av.indexOf(p)
	if idx < 0 {
		return nil, false
	}
	return av.entries[idx].Payloads, true
}

// Entries returns the ordered list of entries. Callers must not mutate the
// returned slice's payload elements in place; use Replace instead.
func (av *AlarmValidities) Entries() []Entry {
	out := make([]Entry, len(av.entries))
	copy(out, av.entries)
	return out
}

func (av *AlarmValidities) Size() int { return len(av.entries) }

func (av *AlarmValidities) Clear() { av.entries = nil }

func (av *AlarmValidities) hasDefault() bool {
	for _, e := range av.entries {
		if e.Predicate.IsDefault() {
			return true
		}
	}
	return false
}

func (av *AlarmValidities) clone() *AlarmValidities {
	out := &AlarmValidities{entries: make([]Entry, len(av.entries))}
	for i, e := range av.entries {
		out.entries[i] = e.clone()
	}
	return out
}

// exceptionInterval is one expanded non-default entry, valid for one
// derived-index month.
type exceptionInterval struct {
	Begin, End time.Time
	Payloads   []payload.Payload
}

// indexGroup is the derived-index state for one AlarmValidities, valid for
// one UTC (month, year).
type indexGroup struct {
	Default    []payload.Payload
	Exceptions []exceptionInterval
}

func buildIndexGroup(av *AlarmValidities, monthOf time.Time) (indexGroup, error) {
	var grp indexGroup
	if av == nil {
		return grp, nil
	}
	for _, e := range av.entries {
		if e.Predicate.IsDefault() {
			grp.Default = e.Payloads
			continue
		}
		ivs, err := e.Predicate.Intervals(monthOf)
		if err != nil {
			return indexGroup{}, err
		}
		for _, iv := range ivs {
			grp.Exceptions = append(grp.Exceptions, exceptionInterval{Begin: iv.Begin, End: iv.End, Payloads: e.Payloads})
		}
	}
	return grp, nil
}

// matchExceptions appends every exception payload-list whose interval
// contains t, returning whether any matched.
func matchExceptions(grp indexGroup, t time.Time, out *[]payload.Payload) bool {
	matched := false
	for _, ex := range grp.Exceptions {
		if !ex.Begin.After(t) && t.Before(ex.End) {
			*out = append(*out, ex.Payloads...)
			matched = true
		}
	}
	return matched
}

// AlarmMessageDatabase maps tone-code to AlarmValidities, plus the
// specially-named all-codes and fallback groups, and answers routing
// searches via a derived index memoized per UTC calendar month.
type AlarmMessageDatabase struct {
	codes    map[string]*AlarmValidities
	allCodes *AlarmValidities
	fallback *AlarmValidities

	idxValid    bool
	idxMonth    time.Month
	idxYear     int
	idxCodes    map[string]indexGroup
	idxAllCodes indexGroup
	idxFallback indexGroup
}

func NewAlarmMessageDatabase() *AlarmMessageDatabase {
	return &AlarmMessageDatabase{
		codes:    make(map[string]*AlarmValidities),
		allCodes: NewAlarmValidities(),
		fallback: NewAlarmValidities(),
	}
}

func (db *AlarmMessageDatabase) invalidate() { db.idxValid = false }

// AddCode installs validities for a code wholesale, requiring it contain a
// default entry. Replaces any prior entry for the code.
func (db *AlarmMessageDatabase) AddCode(code string, validities *AlarmValidities) error {
	if validities == nil || !validities.hasDefault() {
		return domainerrors.NewConfigError("alarm validities for a code must contain a default entry", nil)
	}
	db.codes[code] = validities.clone()
	db.invalidate()
	return nil
}

// AddEntry appends a (predicate, payloads) pair to the existing or new
// AlarmValidities for code. Requires a default to already exist for the
// code, or to be what is being added.
func (db *AlarmMessageDatabase) AddEntry(code string, p validity.Predicate, payloads []payload.Payload) error {
	av, ok := db.codes[code]
	if !ok {
		if !p.IsDefault() {
			return domainerrors.NewConfigError("a default entry must exist before adding an exception for a new code", nil)
		}
		av = NewAlarmValidities()
		db.codes[code] = av
	}
	if err := av.Add(p, payloads); err != nil {
		return err
	}
	db.invalidate()
	return nil
}

// ReplaceForAllCodes overwrites the all-codes group, requiring a default
// entry.
func (db *AlarmMessageDatabase) ReplaceForAllCodes(validities *AlarmValidities) error {
	if validities == nil || !validities.hasDefault() {
		return domainerrors.NewConfigError("all-codes validities must contain a default entry", nil)
	}
	db.allCodes = validities.clone()
	db.invalidate()
	return nil
}

// ReplaceFallback overwrites the fallback group, requiring a default entry.
func (db *AlarmMessageDatabase) ReplaceFallback(validities *AlarmValidities) error {
	if validities == nil || !validities.hasDefault() {
		return domainerrors.NewConfigError("fallback validities must contain a default entry", nil)
	}
	db.fallback = validities.clone()
	db.invalidate()
	return nil
}

// RemoveCode deletes a code's entire AlarmValidities.
func (db *AlarmMessageDatabase) RemoveCode(code string) {
	delete(db.codes, code)
	db.invalidate()
}

// RemoveEntry removes one predicate entry for a code. Refuses to remove the
// default entry while other predicates remain (delegated to
// AlarmValidities.Remove).
func (db *AlarmMessageDatabase) RemoveEntry(code string, p validity.Predicate) error {
	av, ok := db.codes[code]
	if !ok {
		return domainerrors.NewConfigError("unknown code", nil)
	}
	if err := av.Remove(p); err != nil {
		return err
	}
	db.invalidate()
	return nil
}

func (db *AlarmMessageDatabase) rebuildIndex(t time.Time) error {
	month, year := t.Month(), t.Year()
	idxCodes := make(map[string]indexGroup, len(db.codes))
	for code, av := range db.codes {
		grp, err := buildIndexGroup(av, t)
		if err != nil {
			return err
		}
		idxCodes[code] = grp
	}
	allGrp, err := buildIndexGroup(db.allCodes, t)
	if err != nil {
		return err
	}
	fbGrp, err := buildIndexGroup(db.fallback, t)
	if err != nil {
		return err
	}
	db.idxCodes = idxCodes
	db.idxAllCodes = allGrp
	db.idxFallback = fbGrp
	db.idxMonth = month
	db.idxYear = year
	db.idxValid = true
	return nil
}

// Search resolves the set of payloads to send for code at alarmTime, plus
// whether the result rests on the code's default entry (as opposed to a
// code-specific or fallback exception).
//
// Fails with a ConfigError-kind DomainError only if a malformed predicate is
// discovered while rebuilding the index; fails with a NoMatch-kind
// DomainError when every contributing group is empty after dropping empty
// payloads.
func (db *AlarmMessageDatabase) Search(code string, alarmTime time.Time) ([]payload.Payload, bool, error) {
	alarmTime = alarmTime.UTC()
	if !db.idxValid || db.idxMonth != alarmTime.Month() || db.idxYear != alarmTime.Year() {
		if err := db.rebuildIndex(alarmTime); err != nil {
			return nil, false, domainerrors.NewConfigError("rebuilding routing index", err)
		}
	}

	var s []payload.Payload
	codeDefaultUsed := true

	grp, ok := db.idxCodes[code]
	if ok {
		if matchExceptions(grp, alarmTime, &s) {
			codeDefaultUsed = false
		} else {
			s = append(s, grp.Default...)
		}
	}

	if len(s) == 0 {
		if matchExceptions(db.idxFallback, alarmTime, &s) {
			codeDefaultUsed = false
		} else {
			s = append(s, db.idxFallback.Default...)
		}
	}

	if !matchExceptions(db.idxAllCodes, alarmTime, &s) {
		s = append(s, db.idxAllCodes.Default...)
	}

	s = payload.FilterEmpty(s)
	if len(s) == 0 {
		return nil, false, domainerrors.NewNoMatch("no payloads matched for code " + code)
	}
	return payload.ClonePayloads(s), codeDefaultUsed, nil
}

// AllCodes returns every tone code present in the database, sorted.
func (db *AlarmMessageDatabase) AllCodes() []string {
	out := make([]string, 0, len(db.codes))
	for c := range db.codes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// AllGatewayKindsPresent returns the distinct gateway-kinds referenced by
// any payload across every code, the all-codes group, and the fallback
// group.
func (db *AlarmMessageDatabase) AllGatewayKindsPresent() []payload.GatewayKind {
	seen := map[payload.GatewayKind]bool{}
	collect := func(av *AlarmValidities) {
		if av == nil {
			return
		}
		for _, e := range av.entries {
			for _, p := range e.Payloads {
				seen[p.GatewayKind()] = true
			}
		}
	}
	for _, av := range db.codes {
		collect(av)
	}
	collect(db.allCodes)
	collect(db.fallback)

	out := make([]payload.GatewayKind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Size returns the number of distinct tone codes in the database.
func (db *AlarmMessageDatabase) Size() int { return len(db.codes) }

// Clear resets the database to its construction-time state.
func (db *AlarmMessageDatabase) Clear() {
	db.codes = make(map[string]*AlarmValidities)
	db.allCodes = NewAlarmValidities()
	db.fallback = NewAlarmValidities()
	db.invalidate()
}
