package waitlist

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

func ValidPriority(p int) bool { return p >= MinPriority && p <= MaxPriority }

// ClampPriority bounds p to [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

func (s *Service) UpdatePriority(ctx context.Context, id uuid.UUID, priority int) (*Entry, error) {
	if !ValidPriority(priority) {
		return nil, fmt.Errorf("%w: priority must be between %d and %d", ErrValidation, MinPriority, MaxPriority)
	}
	return s.Update(ctx, id, UpdateRequest{Priority: &priority})
}

// AdjustPriority moves the priority one step up or down. The result is
// clamped, so incrementing 5 or decrementing 1 is a no-op.
func (s *Service) AdjustPriority(ctx context.Context, id uuid.UUID, delta int) (*Entry, error) {
	if delta != 1 && delta != -1 {
		return nil, fmt.Errorf("%w: priority step must be +1 or -1", ErrValidation)
	}

	var updated *Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if Terminal(e.Status) {
			return fmt.Errorf("%w: %s entries cannot be changed", ErrInvalidTransition, e.Status)
		}
		next := ClampPriority(e.Priority + delta)
		if next != e.Priority {
			e.Priority = next
			if err := s.repo.Update(ctx, e); err != nil {
				return err
			}
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// BulkPriorityChange sets priority on every id in one transaction. Nothing
// changes when any id is unknown to the tenant or already scheduled or
// cancelled.
func (s *Service) BulkPriorityChange(ctx context.Context, ids []uuid.UUID, priority int) (int, error) {
	if !ValidPriority(priority) {
		return 0, fmt.Errorf("%w: priority must be between %d and %d", ErrValidation, MinPriority, MaxPriority)
	}
	unique := dedupe(ids)
	if len(unique) == 0 {
		return 0, fmt.Errorf("%w: ids must not be empty", ErrValidation)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, id := range unique {
			e, err := s.repo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if Terminal(e.Status) {
				return fmt.Errorf("%w: entry %s is %s", ErrInvalidTransition, id, e.Status)
			}
		}
		n, err := s.repo.SetPriority(ctx, unique, priority)
		if err != nil {
			return err
		}
		if n != int64(len(unique)) {
			return fmt.Errorf("%w: %d of %d entries exist", ErrNotFound, n, len(unique))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(unique), nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// SortForDisplay orders entries by priority desc, then created_at asc, then
// id. It matches the order of Repository.List.
func SortForDisplay(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
