package professional

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

const maxNameLen = 255

func (s *Service) Create(ctx context.Context, p *Professional) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(p.Name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLen)
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Professional, int, error) {
	return s.repo.List(ctx, activeOnly, limit, offset)
}

// Active returns the professionals the slot finder searches.
func (s *Service) Active(ctx context.Context) ([]*Professional, error) {
	return s.repo.ListActive(ctx)
}
