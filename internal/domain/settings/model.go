package settings

import (
	"errors"
	"fmt"
	"time"

	"github.com/clinicsuite/agenda/pkg/timeofday"
)

var (
	ErrNotFound   = errors.New("tenant settings not found")
	ErrValidation = errors.New("invalid tenant settings")
)

// DayKeys are the working-hours keys indexed by time.Weekday.
var DayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// DayKey maps a weekday to its working-hours key.
func DayKey(d time.Weekday) string { return DayKeys[d] }

// DayHours is one weekday of the clinic calendar. Times are "HH:MM".
type DayHours struct {
	Enabled    bool    `json:"enabled"`
	Start      string  `json:"start"`
	End        string  `json:"end"`
	BreakStart *string `json:"break_start,omitempty"`
	BreakEnd   *string `json:"break_end,omitempty"`
}

// HasBreak reports whether a lunch break is configured.
func (d DayHours) HasBreak() bool {
	return d.BreakStart != nil && d.BreakEnd != nil && *d.BreakStart != "" && *d.BreakEnd != ""
}

// Validate enforces start < end and a break that sits inside the day.
func (d DayHours) Validate() error {
	if !d.Enabled {
		return nil
	}
	start, err := timeofday.Parse(d.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := timeofday.Parse(d.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start %s must be before end %s", d.Start, d.End)
	}

	hasStart := d.BreakStart != nil && *d.BreakStart != ""
	hasEnd := d.BreakEnd != nil && *d.BreakEnd != ""
	if hasStart != hasEnd {
		return fmt.Errorf("break_start and break_end must be set together")
	}
	if !hasStart {
		return nil
	}
	bs, err := timeofday.Parse(*d.BreakStart)
	if err != nil {
		return fmt.Errorf("break_start: %w", err)
	}
	be, err := timeofday.Parse(*d.BreakEnd)
	if err != nil {
		return fmt.Errorf("break_end: %w", err)
	}
	if bs >= be {
		return fmt.Errorf("break_start %s must be before break_end %s", *d.BreakStart, *d.BreakEnd)
	}
	if bs < start || be > end {
		return fmt.Errorf("break %s-%s must lie within %s-%s", *d.BreakStart, *d.BreakEnd, d.Start, d.End)
	}
	return nil
}

// WorkingHours maps a day key (sunday..saturday) to its hours. A missing day
// is treated as closed.
type WorkingHours map[string]DayHours

func (w WorkingHours) Validate() error {
	valid := make(map[string]bool, len(DayKeys))
	for _, k := range DayKeys {
		valid[k] = true
	}
	for day, hours := range w {
		if !valid[day] {
			return fmt.Errorf("%w: unknown day %q", ErrValidation, day)
		}
		if err := hours.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrValidation, day, err)
		}
	}
	return nil
}

// For returns the hours configured for the weekday of date.
func (w WorkingHours) For(date time.Time) (DayHours, bool) {
	h, ok := w[DayKey(date.Weekday())]
	return h, ok
}

// Holiday closes a date or replaces its hours. An override has no break.
type Holiday struct {
	Date   string  `json:"date"` // YYYY-MM-DD
	Name   *string `json:"name,omitempty"`
	Closed bool    `json:"closed"`
	Start  *string `json:"start,omitempty"`
	End    *string `json:"end,omitempty"`
}

const dateLayout = "2006-01-02"

func (h Holiday) Validate() error {
	if _, err := time.Parse(dateLayout, h.Date); err != nil {
		return fmt.Errorf("date %q: expected YYYY-MM-DD", h.Date)
	}
	if h.Closed {
		return nil
	}
	if h.Start == nil || h.End == nil {
		return fmt.Errorf("holiday %s: start and end are required unless closed", h.Date)
	}
	return DayHours{Enabled: true, Start: *h.Start, End: *h.End}.Validate()
}

// Hours converts an override into the DayHours used for that date.
func (h Holiday) Hours() DayHours {
	if h.Closed || h.Start == nil || h.End == nil {
		return DayHours{Enabled: false}
	}
	return DayHours{Enabled: true, Start: *h.Start, End: *h.End}
}

// Settings is the per-tenant calendar configuration.
type Settings struct {
	TenantID     string       `json:"tenant_id"`
	WorkingHours WorkingHours `json:"working_hours"`
	Holidays     []Holiday    `json:"holidays"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (s *Settings) Validate() error {
	if err := s.WorkingHours.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(s.Holidays))
	for _, h := range s.Holidays {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if seen[h.Date] {
			return fmt.Errorf("%w: duplicate holiday %s", ErrValidation, h.Date)
		}
		seen[h.Date] = true
	}
	return nil
}

// HolidayOn returns the holiday matching date's calendar day, if any.
func (s *Settings) HolidayOn(date time.Time) (Holiday, bool) {
	key := date.Format(dateLayout)
	for _, h := range s.Holidays {
		if h.Date == key {
			return h, true
		}
	}
	return Holiday{}, false
}

func strPtr(s string) *string { return &s }

// DefaultWorkingHours is applied to tenants that never saved settings:
// weekdays 08:00-18:00 with a 12:00-13:00 break, Saturday mornings, Sunday
// closed.
func DefaultWorkingHours() WorkingHours {
	weekday := DayHours{Enabled: true, Start: "08:00", End: "18:00",
		BreakStart: strPtr("12:00"), BreakEnd: strPtr("13:00")}
	return WorkingHours{
		"sunday":    {Enabled: false, Start: "08:00", End: "12:00"},
		"monday":    weekday,
		"tuesday":   weekday,
		"wednesday": weekday,
		"thursday":  weekday,
		"friday":    weekday,
		"saturday":  {Enabled: true, Start: "08:00", End: "12:00"},
	}
}

func Default(tenantID string) *Settings {
	return &Settings{TenantID: tenantID, WorkingHours: DefaultWorkingHours(), Holidays: []Holiday{}}
}
