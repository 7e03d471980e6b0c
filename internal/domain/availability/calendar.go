// Package availability answers which calendar slots are bookable: the
// per-tenant working-hours calendar and the slot finder built on it.
package availability

import (
	"time"

	"github.com/clinicsuite/agenda/internal/domain/settings"
	"github.com/clinicsuite/agenda/pkg/timeofday"
)

// Calendar evaluates a tenant's working hours and holidays. Dates are read
// as calendar days in their own location.
type Calendar struct {
	hours    settings.WorkingHours
	holidays map[string]settings.Holiday
}

func NewCalendar(s *settings.Settings) *Calendar {
	c := &Calendar{hours: s.WorkingHours, holidays: make(map[string]settings.Holiday, len(s.Holidays))}
	for _, h := range s.Holidays {
		c.holidays[h.Date] = h
	}
	return c
}

// day is a parsed DayHours.
type day struct {
	start, end           timeofday.Minutes
	breakStart, breakEnd timeofday.Minutes
	hasBreak             bool
}

// dayFor resolves the effective hours of date. A holiday overrides the
// weekday entry. ok is false for closed days and for malformed hours.
func (c *Calendar) dayFor(date time.Time) (day, bool) {
	hours, found := c.hours.For(date)
	if h, isHoliday := c.holidays[date.Format("2006-01-02")]; isHoliday {
		hours, found = h.Hours(), true
	}
	if !found || !hours.Enabled {
		return day{}, false
	}

	var d day
	var err error
	if d.start, err = timeofday.Parse(hours.Start); err != nil {
		return day{}, false
	}
	if d.end, err = timeofday.Parse(hours.End); err != nil {
		return day{}, false
	}
	if hours.HasBreak() {
		bs, err1 := timeofday.Parse(*hours.BreakStart)
		be, err2 := timeofday.Parse(*hours.BreakEnd)
		if err1 == nil && err2 == nil {
			d.breakStart, d.breakEnd, d.hasBreak = bs, be, true
		}
	}
	return d, d.start < d.end
}

// IsValidSlot reports whether clock ("HH:MM") on date falls inside working
// hours. Only the hour is compared: an hour h is valid when start_hour <= h <
// end_hour and h is not in [break_start_hour, break_end_hour).
func (c *Calendar) IsValidSlot(date time.Time, clock string) bool {
	t, err := timeofday.Parse(clock)
	if err != nil {
		return false
	}
	d, ok := c.dayFor(date)
	if !ok {
		return false
	}
	h := t.Hour()
	if h < d.start.Hour() || h >= d.end.Hour() {
		return false
	}
	if d.hasBreak && h >= d.breakStart.Hour() && h < d.breakEnd.Hour() {
		return false
	}
	return true
}

// Fits reports whether [start, end) on date lies within working hours and
// clear of the break, at minute precision.
func (c *Calendar) Fits(date time.Time, start, end timeofday.Minutes) bool {
	if start >= end {
		return false
	}
	d, ok := c.dayFor(date)
	if !ok {
		return false
	}
	if start < d.start || end > d.end {
		return false
	}
	if d.hasBreak && timeofday.Overlaps(start, end, d.breakStart, d.breakEnd) {
		return false
	}
	return true
}

// Slots returns the duration-long ranges of date's working hours, starting at
// opening time and skipping the break. Nil on closed days.
func (c *Calendar) Slots(date time.Time, duration timeofday.Minutes) []timeofday.Range {
	d, ok := c.dayFor(date)
	if !ok {
		return nil
	}
	var brk timeofday.Range
	if d.hasBreak {
		brk = timeofday.Range{Start: d.breakStart, End: d.breakEnd}
	}
	return timeofday.Slots(d.start, d.end, duration, brk)
}
