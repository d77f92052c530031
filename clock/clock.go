// Package clock mints, parses, and ages the lexicographically ordered
// generation names described in spec §3 ("Generation directory").
// The wall-clock source is an external collaborator per spec §1 —
// Clock is the interface it's specified through, with realClock the
// one concrete realization this repo ships.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dateLayout is the date-and-time part of spec's
// "YYYY-MM-DD HH:MM:SS[:MICROS]" generation name format. The microsecond suffix is appended only when nonzero so two
// generations minted within the same wall-clock second still sort
// correctly against older generations that never carried one.
const dateLayout = "2006-01-02 15:04:05"

// Clock is the external wall-clock collaborator. Callers never touch
// time.Now() directly inside engine/ so that tests can substitute a
// deterministic clock.
type Clock interface {
	Now() time.Time
}

// Real returns the Clock backed by the actual system wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Mint renders t as a generation directory name.
func Mint(t time.Time) string {
	us := t.Nanosecond() / 1000
	if us == 0 {
		return t.Format(dateLayout)
	}
	return fmt.Sprintf("%s:%06d", t.Format(dateLayout), us)
}

// Parse reverses Mint. It returns an error if name isn't a
// well-formed generation timestamp.
func Parse(name string) (time.Time, error) {
	parts := strings.SplitN(name, ":", 4)
	switch len(parts) {
	case 3:
		return time.ParseInLocation(dateLayout, name, time.Local)
	case 4:
		us, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("clock: invalid microseconds in %q: %w", name, err)
		}
		base, err := time.ParseInLocation(dateLayout, strings.Join(parts[:3], ":"), time.Local)
		if err != nil {
			return time.Time{}, fmt.Errorf("clock: invalid generation name %q: %w", name, err)
		}
		return base.Add(time.Duration(us) * time.Microsecond), nil
	default:
		return time.Time{}, fmt.Errorf("clock: malformed generation name %q", name)
	}
}

// Age returns how long ago name's timestamp was, as measured against
// now. A malformed name is reported as an error rather than silently
// treated as infinitely old or new.
func Age(name string, now time.Time) (time.Duration, error) {
	t, err := Parse(name)
	if err != nil {
		return 0, err
	}
	return now.Sub(t), nil
}
