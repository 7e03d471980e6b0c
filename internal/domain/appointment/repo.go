package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is tenant scoped through ctx.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error)
	// ListBooked returns non-cancelled appointments of the given
	// professionals that intersect [from, to).
	ListBooked(ctx context.Context, professionalIDs []uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// LockProfessional serialises bookings of one professional until the
	// surrounding transaction ends.
	LockProfessional(ctx context.Context, professionalID uuid.UUID) error
	HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
