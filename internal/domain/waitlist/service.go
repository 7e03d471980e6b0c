package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsuite/agenda/internal/domain/appointment"
	"github.com/clinicsuite/agenda/internal/platform/auth"
	"github.com/clinicsuite/agenda/internal/platform/db"
	"github.com/clinicsuite/agenda/internal/platform/outbox"
)

// Booker books appointments, joining the caller's transaction when ctx
// carries one. *appointment.Service satisfies it.
type Booker interface {
	Book(ctx context.Context, a *appointment.Appointment) error
	Location() *time.Location
}

type Service struct {
	repo   Repository
	tx     db.TxRunner
	events outbox.Recorder
	booker Booker
	now    func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, events outbox.Recorder, booker Booker) *Service {
	return &Service{repo: repo, tx: tx, events: events, booker: booker, now: time.Now}
}

func (s *Service) Create(ctx context.Context, e *Entry) error {
	e.Status = ""
	if err := e.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, e)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Entry, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: invalid status %q", ErrValidation, f.Status)
	}
	if f.Priority != nil && !ValidPriority(*f.Priority) {
		return nil, 0, fmt.Errorf("%w: priority must be between %d and %d", ErrValidation, MinPriority, MaxPriority)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// Update applies a partial update under a row lock.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Entry, error) {
	var updated *Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := req.apply(e); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("waiting_list_id", id.String()).Msg("waiting list entry deleted")
	return nil
}

// Cancel moves a waiting or contacted entry to cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	status := StatusCancelled
	return s.Update(ctx, id, UpdateRequest{Status: &status})
}

// Contact records a contact attempt and marks the entry contacted. The
// message itself is sent by a consumer of the waitlist.contact_requested
// event.
func (s *Service) Contact(ctx context.Context, id uuid.UUID, method string) (*Entry, error) {
	if !contactMethods[method] {
		return nil, fmt.Errorf("%w: method must be one of phone, whatsapp, email", ErrValidation)
	}

	var updated *Entry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(e.Status, StatusContacted) {
			return fmt.Errorf("%w: cannot contact a %s entry", ErrInvalidTransition, e.Status)
		}

		attempt := &ContactAttempt{WaitingListID: e.ID, Method: method, ContactedBy: auth.UserIDFromContext(ctx)}
		if err := s.repo.AddContactAttempt(ctx, attempt); err != nil {
			return err
		}

		now := s.now()
		e.Status = StatusContacted
		e.ContactAttempts++
		e.LastContactedAt = &now
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		updated = e

		return s.events.Record(ctx, outbox.Event{
			TenantID:      e.TenantID,
			AggregateType: "waiting_list_entry",
			AggregateID:   e.ID.String(),
			EventType:     outbox.WaitlistContactRequested,
			Payload: map[string]interface{}{
				"waiting_list_id":  e.ID,
				"patient_id":       e.PatientID,
				"method":           method,
				"contact_attempts": e.ContactAttempts,
				"contacted_by":     attempt.ContactedBy,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("waiting_list_id", id.String()).
		Str("method", method).
		Int("attempts", updated.ContactAttempts).
		Msg("waiting list contact requested")
	return updated, nil
}
