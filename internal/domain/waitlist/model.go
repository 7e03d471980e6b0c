// Package waitlist manages patients waiting for a slot: the entry lifecycle,
// contact attempts, priorities and scheduling an entry into an appointment.
package waitlist

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicsuite/agenda/pkg/timeofday"
)

var (
	ErrNotFound          = errors.New("waiting list entry not found")
	ErrValidation        = errors.New("invalid waiting list entry")
	ErrInvalidTransition = errors.New("invalid waiting list status transition")
)

const (
	StatusWaiting   = "waiting"
	StatusContacted = "contacted"
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusWaiting: true, StatusContacted: true, StatusScheduled: true, StatusCancelled: true,
}

// transitions lists the statuses reachable from each status. Scheduled and
// cancelled are terminal. Contacted may be repeated.
var transitions = map[string][]string{
	StatusWaiting:   {StatusContacted, StatusScheduled, StatusCancelled},
	StatusContacted: {StatusContacted, StatusScheduled, StatusCancelled},
}

// Terminal reports whether an entry in status can still be edited.
func Terminal(status string) bool {
	return status == StatusScheduled || status == StatusCancelled
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

const (
	MinPriority     = 1
	MaxPriority     = 5
	DefaultPriority = 3
)

// Contact methods.
const (
	ContactPhone    = "phone"
	ContactWhatsApp = "whatsapp"
	ContactEmail    = "email"
)

var contactMethods = map[string]bool{ContactPhone: true, ContactWhatsApp: true, ContactEmail: true}

type Entry struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           string     `json:"tenant_id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ProfessionalID     *uuid.UUID `json:"professional_id,omitempty"`
	ProcedureID        *uuid.UUID `json:"procedure_id,omitempty"`
	PreferredDate      *string    `json:"preferred_date,omitempty"`       // YYYY-MM-DD
	PreferredTimeStart *string    `json:"preferred_time_start,omitempty"` // HH:MM
	PreferredTimeEnd   *string    `json:"preferred_time_end,omitempty"`   // HH:MM
	Priority           int        `json:"priority"`
	Status             string     `json:"status"`
	Notes              *string    `json:"notes,omitempty"`
	AppointmentID      *uuid.UUID `json:"appointment_id,omitempty"`
	ContactAttempts    int        `json:"contact_attempts"`
	LastContactedAt    *time.Time `json:"last_contacted_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	PatientName      *string `json:"patient_name,omitempty"`
	ProfessionalName *string `json:"professional_name,omitempty"`
}

// Validate applies defaults and checks the caller supplied fields.
func (e *Entry) Validate() error {
	if e.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrValidation)
	}
	if e.Priority == 0 {
		e.Priority = DefaultPriority
	}
	if e.Priority < MinPriority || e.Priority > MaxPriority {
		return fmt.Errorf("%w: priority must be between %d and %d", ErrValidation, MinPriority, MaxPriority)
	}
	if e.Status == "" {
		e.Status = StatusWaiting
	}
	if !validStatuses[e.Status] {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, e.Status)
	}
	return validatePreferences(e.PreferredDate, e.PreferredTimeStart, e.PreferredTimeEnd)
}

func validatePreferences(date, start, end *string) error {
	if date != nil {
		if _, err := time.Parse("2006-01-02", *date); err != nil {
			return fmt.Errorf("%w: preferred_date %q: expected YYYY-MM-DD", ErrValidation, *date)
		}
	}
	var s, e timeofday.Minutes
	var err error
	if start != nil {
		if s, err = timeofday.Parse(*start); err != nil {
			return fmt.Errorf("%w: preferred_time_start: %v", ErrValidation, err)
		}
	}
	if end != nil {
		if e, err = timeofday.Parse(*end); err != nil {
			return fmt.Errorf("%w: preferred_time_end: %v", ErrValidation, err)
		}
	}
	if start != nil && end != nil && s >= e {
		return fmt.Errorf("%w: preferred_time_start must be before preferred_time_end", ErrValidation)
	}
	return nil
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	ProfessionalID     *uuid.UUID `json:"professional_id"`
	ProcedureID        *uuid.UUID `json:"procedure_id"`
	PreferredDate      *string    `json:"preferred_date"`
	PreferredTimeStart *string    `json:"preferred_time_start"`
	PreferredTimeEnd   *string    `json:"preferred_time_end"`
	Priority           *int       `json:"priority"`
	Status             *string    `json:"status"`
	Notes              *string    `json:"notes"`
}

// apply merges r into e, enforcing the status machine. Scheduling is only
// possible through ScheduleFromWaitingList, which creates the appointment.
func (r UpdateRequest) apply(e *Entry) error {
	if Terminal(e.Status) {
		return fmt.Errorf("%w: %s entries cannot be changed", ErrInvalidTransition, e.Status)
	}
	if r.Status != nil && *r.Status != e.Status {
		if !validStatuses[*r.Status] {
			return fmt.Errorf("%w: invalid status %q", ErrValidation, *r.Status)
		}
		if *r.Status == StatusScheduled {
			return fmt.Errorf("%w: use the schedule action to schedule an entry", ErrValidation)
		}
		if !CanTransition(e.Status, *r.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, *r.Status)
		}
		e.Status = *r.Status
	}
	if r.Priority != nil {
		if !ValidPriority(*r.Priority) {
			return fmt.Errorf("%w: priority must be between %d and %d", ErrValidation, MinPriority, MaxPriority)
		}
		e.Priority = *r.Priority
	}
	if r.ProfessionalID != nil {
		e.ProfessionalID = r.ProfessionalID
	}
	if r.ProcedureID != nil {
		e.ProcedureID = r.ProcedureID
	}
	if r.PreferredDate != nil {
		e.PreferredDate = r.PreferredDate
	}
	if r.PreferredTimeStart != nil {
		e.PreferredTimeStart = r.PreferredTimeStart
	}
	if r.PreferredTimeEnd != nil {
		e.PreferredTimeEnd = r.PreferredTimeEnd
	}
	if r.Notes != nil {
		e.Notes = r.Notes
	}
	return validatePreferences(e.PreferredDate, e.PreferredTimeStart, e.PreferredTimeEnd)
}

type ContactAttempt struct {
	ID            uuid.UUID `json:"id"`
	TenantID      string    `json:"tenant_id"`
	WaitingListID uuid.UUID `json:"waiting_list_id"`
	Method        string    `json:"method"`
	ContactedBy   string    `json:"contacted_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ListFilter struct {
	Status         string
	Priority       *int
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
}
