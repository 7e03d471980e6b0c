package availability

import (
	"testing"
	"time"

	"github.com/clinicsuite/agenda/internal/domain/settings"
	"github.com/clinicsuite/agenda/pkg/timeofday"
)

func strPtr(s string) *string { return &s }

// 2024-03-04 is a Monday.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func calendarWith(hours settings.WorkingHours, holidays ...settings.Holiday) *Calendar {
	return NewCalendar(&settings.Settings{TenantID: "clinic-a", WorkingHours: hours, Holidays: holidays})
}

func clock(h int) string { return timeofday.Minutes(h * 60).String() }

func TestIsValidSlot_DisabledDay(t *testing.T) {
	cal := calendarWith(settings.WorkingHours{
		"monday": {Enabled: false, Start: "08:00", End: "18:00"},
	})
	for h := 0; h < 24; h++ {
		if cal.IsValidSlot(monday, clock(h)) {
			t.Errorf("hour %d should be invalid on a disabled day", h)
		}
	}
}

func TestIsValidSlot_WorkingRange(t *testing.T) {
	cal := calendarWith(settings.WorkingHours{
		"monday": {Enabled: true, Start: "08:00", End: "18:00"},
	})
	for h := 8; h <= 17; h++ {
		if !cal.IsValidSlot(monday, clock(h)) {
			t.Errorf("hour %d should be valid", h)
		}
	}
	for _, h := range []int{7, 18} {
		if cal.IsValidSlot(monday, clock(h)) {
			t.Errorf("hour %d should be invalid", h)
		}
	}
}

func TestIsValidSlot_Break(t *testing.T) {
	cal := calendarWith(settings.WorkingHours{
		"monday": {Enabled: true, Start: "08:00", End: "18:00", BreakStart: strPtr("12:00"), BreakEnd: strPtr("13:00")},
	})
	if cal.IsValidSlot(monday, "12:00") {
		t.Error("hour 12 should be invalid during the break")
	}
	if cal.IsValidSlot(monday, "12:30") {
		t.Error("12:30 should be invalid during the break")
	}
	for _, h := range []int{8, 9, 10, 11, 13, 14, 15, 16, 17} {
		if !cal.IsValidSlot(monday, clock(h)) {
			t.Errorf("hour %d should be valid", h)
		}
	}
}

func TestIsValidSlot_HourGranularity(t *testing.T) {
	cal := calendarWith(settings.WorkingHours{
		"monday": {Enabled: true, Start: "08:30", End: "17:30"},
	})
	// Only hours are compared, so 08:00 counts as inside 08:30-17:30.
	if !cal.IsValidSlot(monday, "08:00") {
		t.Error("08:00 should be valid at hour granularity")
	}
	if cal.IsValidSlot(monday, "17:15") {
		t.Error("17:15 should be invalid: end hour is exclusive")
	}
}

func TestIsValidSlot_MissingDayAndBadClock(t *testing.T) {
	cal := calendarWith(settings.WorkingHours{})
	if cal.IsValidSlot(monday, "09:00") {
		t.Error("a day without configuration is closed")
	}
	cal = calendarWith(settings.DefaultWorkingHours())
	if cal.IsValidSlot(monday, "9am") {
		t.Error("a malformed time is never valid")
	}
}

func TestIsValidSlot_Holidays(t *testing.T) {
	closed := settings.Holiday{Date: "2024-03-04", Closed: true}
	cal := calendarWith(settings.DefaultWorkingHours(), closed)
	if cal.IsValidSlot(monday, "09:00") {
		t.Error("a closed holiday invalidates the whole day")
	}

	override := settings.Holiday{Date: "2024-03-04", Start: strPtr("10:00"), End: strPtr("14:00")}
	cal = calendarWith(settings.DefaultWorkingHours(), override)
	if cal.IsValidSlot(monday, "09:00") {
		t.Error("09:00 is before the override start")
	}
	if !cal.IsValidSlot(monday, "12:00") {
		t.Error("the override removes the break, so 12:00 is valid")
	}
	if !cal.IsValidSlot(monday.AddDate(0, 0, 1), "09:00") {
		t.Error("the following day keeps its regular hours")
	}
}

func TestFits(t *testing.T) {
	cal := calendarWith(settings.DefaultWorkingHours())
	m := func(s string) timeofday.Minutes {
		v, err := timeofday.Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"inside morning", "08:00", "09:00", true},
		{"sub-hour", "11:15", "11:45", true},
		{"touches break", "11:00", "12:00", true},
		{"overlaps break", "11:30", "12:30", false},
		{"after break", "13:00", "13:30", true},
		{"ends at close", "17:00", "18:00", true},
		{"past close", "17:30", "18:30", false},
		{"before open", "07:30", "08:30", false},
		{"empty", "09:00", "09:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.Fits(monday, m(tt.start), m(tt.end)); got != tt.want {
				t.Errorf("Fits(%s, %s) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
	sunday := monday.AddDate(0, 0, -1)
	if cal.Fits(sunday, m("09:00"), m("10:00")) {
		t.Error("sunday is disabled by default")
	}
}

func TestCalendar_Slots(t *testing.T) {
	cal := calendarWith(settings.DefaultWorkingHours())

	var got []string
	for _, r := range cal.Slots(monday, 60) {
		got = append(got, r.Start.String()+"-"+r.End.String())
	}
	want := []string{"08:00-09:00", "09:00-10:00", "10:00-11:00", "11:00-12:00",
		"13:00-14:00", "14:00-15:00", "15:00-16:00", "16:00-17:00", "17:00-18:00"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	saturday := monday.AddDate(0, 0, 5)
	if n := len(cal.Slots(saturday, 90)); n != 2 {
		t.Errorf("saturday 08:00-12:00 holds two 90 minute slots, got %d", n)
	}
	if s := cal.Slots(monday.AddDate(0, 0, -1), 30); s != nil {
		t.Errorf("closed day has no slots, got %v", s)
	}
}
