// Package timeofday handles wall-clock "HH:MM" values as minutes after
// midnight.
package timeofday

import (
	"fmt"
	"strconv"
	"time"
)

// Minutes is a time of day in minutes after midnight. 24:00 is not
// representable; a day's last valid start is 23:59.
type Minutes int

// Parse reads a zero-padded "HH:MM" string.
func Parse(s string) (Minutes, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time format %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour out of range in %q", s)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute out of range in %q", s)
	}

	return Minutes(hour*60 + minute), nil
}

// Of returns the wall-clock time of t in its own location.
func Of(t time.Time) Minutes {
	return Minutes(t.Hour()*60 + t.Minute())
}

func (m Minutes) Hour() int { return int(m) / 60 }

func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// On returns the instant at m on the calendar day of date, in loc.
func (m Minutes) On(date time.Time, loc *time.Location) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, m.Hour(), int(m)%60, 0, 0, loc)
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching ranges and
// empty ranges never overlap.
func Overlaps(s1, e1, s2, e2 Minutes) bool {
	if s1 >= e1 || s2 >= e2 {
		return false
	}
	return s1 < e2 && s2 < e1
}

// OverlapsTime is Overlaps for instants.
func OverlapsTime(start1, end1, start2, end2 time.Time) bool {
	if !start1.Before(end1) || !start2.Before(end2) {
		return false
	}
	return start1.Before(end2) && start2.Before(end1)
}

// Range is a half-open [Start, End) interval of a single day.
type Range struct {
	Start, End Minutes
}

func (r Range) Empty() bool { return r.Start >= r.End }

// Slots cuts [start, end) into consecutive step-long ranges. A range that
// overlaps brk is skipped without shifting the grid, so slots after a break
// stay aligned to start. A zero brk means no break.
func Slots(start, end, step Minutes, brk Range) []Range {
	if step <= 0 || start >= end {
		return nil
	}
	var out []Range
	for s := start; s+step <= end; s += step {
		r := Range{Start: s, End: s + step}
		if !brk.Empty() && Overlaps(r.Start, r.End, brk.Start, brk.End) {
			continue
		}
		out = append(out, r)
	}
	return out
}
