package appointment

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrValidation        = errors.New("invalid appointment")
	ErrSlotConflict      = errors.New("time slot already booked")
	ErrInvalidTransition = errors.New("invalid appointment status transition")
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to
// another. Completed and cancelled appointments are final.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Appointment is a booked, half-open [start, end) range on a professional's
// calendar.
type Appointment struct {
	ID               uuid.UUID  `json:"id"`
	TenantID         string     `json:"tenant_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	ProfessionalID   uuid.UUID  `json:"professional_id"`
	StartDatetime    time.Time  `json:"start_datetime"`
	EndDatetime      time.Time  `json:"end_datetime"`
	Status           string     `json:"status"`
	ServiceType      *string    `json:"service_type,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	WaitingListID    *uuid.UUID `json:"waiting_list_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PatientName      *string    `json:"patient_name,omitempty"`
	ProfessionalName *string    `json:"professional_name,omitempty"`
}

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	ProfessionalID *uuid.UUID
	PatientID      *uuid.UUID
	Status         string
	From, To       *time.Time
}
