package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicsuite/agenda/pkg/timeofday"
)

// Request is the manual scheduling payload. Date and times are wall-clock
// values in the clinic timezone.
type Request struct {
	PatientID      uuid.UUID `json:"patient_id"`
	ProfessionalID uuid.UUID `json:"professional_id"`
	Date           string    `json:"date"`       // YYYY-MM-DD
	StartTime      string    `json:"start_time"` // HH:MM
	EndTime        string    `json:"end_time"`   // HH:MM
	ServiceType    *string   `json:"service_type,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
}

// Validate checks required fields and start < end, returning the resolved
// instants.
func (r Request) Validate(loc *time.Location) (time.Time, time.Time, error) {
	var missing []string
	if r.PatientID == uuid.Nil {
		missing = append(missing, "patient_id")
	}
	if r.ProfessionalID == uuid.Nil {
		missing = append(missing, "professional_id")
	}
	if r.Date == "" {
		missing = append(missing, "date")
	}
	if r.StartTime == "" {
		missing = append(missing, "start_time")
	}
	if r.EndTime == "" {
		missing = append(missing, "end_time")
	}
	if len(missing) > 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}

	date, err := time.ParseInLocation("2006-01-02", r.Date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date %q: expected YYYY-MM-DD", ErrValidation, r.Date)
	}
	start, err := timeofday.Parse(r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_time: %v", ErrValidation, err)
	}
	end, err := timeofday.Parse(r.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_time: %v", ErrValidation, err)
	}
	if start >= end {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_time %s must be before end_time %s", ErrValidation, r.StartTime, r.EndTime)
	}
	return start.On(date, loc), end.On(date, loc), nil
}

// Appointment builds the unsaved appointment described by r.
func (r Request) Appointment(start, end time.Time) *Appointment {
	return &Appointment{
		PatientID:      r.PatientID,
		ProfessionalID: r.ProfessionalID,
		StartDatetime:  start,
		EndDatetime:    end,
		Status:         StatusScheduled,
		ServiceType:    r.ServiceType,
		Notes:          r.Notes,
	}
}
