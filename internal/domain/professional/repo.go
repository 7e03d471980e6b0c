package professional

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Professional) error
	GetByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Professional, int, error)
	// ListActive returns every active professional ordered by name.
	ListActive(ctx context.Context) ([]*Professional, error)
}
