package waitlist

import (
	"context"

	"github.com/google/uuid"
)

// Repository is tenant scoped through ctx.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Entry, error)
	// List orders by priority desc, created_at asc, id.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Entry, int, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddContactAttempt(ctx context.Context, a *ContactAttempt) error
	// SetPriority updates every listed entry and returns how many matched.
	SetPriority(ctx context.Context, ids []uuid.UUID, priority int) (int64, error)
}
