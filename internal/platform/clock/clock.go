// Package clock provides the time-resolution contract used by the temporal
// engines. Callers may supply an explicit date+time, a bare date (resolved to
// start of day), or the literal token "now"; every logical operation resolves
// its timestamps against a single Clock reading so close+insert pairs share
// one consistent instant.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// Keyword is the symbolic token that resolves to the current instant.
const Keyword = "now"

// Input layouts, tried in order. Timestamps are treated as UTC; the engine
// does not normalize time zones beyond what the caller supplies.
const (
	LayoutDateTime = "02/01/2006 15:04"
	LayoutDate     = "02/01/2006"
)

// Clock yields the current instant. Inject Fixed in tests so "now" is
// deterministic.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC, truncated to whole seconds.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

type fixed struct{ t time.Time }

func (f fixed) Now() time.Time { return f.t }

// Fixed returns a Clock pinned to t.
func Fixed(t time.Time) Clock { return fixed{t: t} }

// Resolve parses raw into an instant. Accepted shapes:
//
//   - the literal "now" (case-insensitive) -> the supplied now
//   - RFC 3339 ("2016-05-17T10:00:00Z")
//   - "dd/mm/yyyy hh:mm"
//   - "dd/mm/yyyy" -> start of day, 00:00
func Resolve(raw string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time input")
	}
	if strings.EqualFold(s, Keyword) {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(LayoutDateTime, s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(LayoutDate, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q: use dd/mm/yyyy[ hh:mm], RFC 3339, or %q", raw, Keyword)
}

// ResolveOptional is Resolve for inputs that may be omitted entirely.
// An empty string resolves to nil.
func ResolveOptional(raw string, now time.Time) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := Resolve(raw, now)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
