package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicsuite/agenda/internal/domain/professional"
	"github.com/clinicsuite/agenda/internal/platform/db"
	"github.com/clinicsuite/agenda/internal/platform/outbox"
	"github.com/clinicsuite/agenda/internal/platform/telemetry"
)

// ProfessionalSource is satisfied by *professional.Service.
type ProfessionalSource interface {
	Get(ctx context.Context, id uuid.UUID) (*professional.Professional, error)
}

type Service struct {
	repo          Repository
	professionals ProfessionalSource
	tx            db.TxRunner
	events        outbox.Recorder
	loc           *time.Location
}

func NewService(repo Repository, professionals ProfessionalSource, tx db.TxRunner, events outbox.Recorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, professionals: professionals, tx: tx, events: events, loc: loc}
}

// Location is the clinic timezone used to resolve wall-clock times.
func (s *Service) Location() *time.Location { return s.loc }

// Schedule validates a manual scheduling request and books it. Validation
// happens before any store access.
func (s *Service) Schedule(ctx context.Context, req Request) (*Appointment, error) {
	start, end, err := req.Validate(s.loc)
	if err != nil {
		return nil, err
	}
	a := req.Appointment(start, end)
	if err := s.Book(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Book stores a in its own transaction, or in the caller's when ctx already
// carries one. The professional's advisory lock is held until commit, so two
// concurrent bookings of overlapping ranges cannot both succeed.
func (s *Service) Book(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil || a.ProfessionalID == uuid.Nil {
		return fmt.Errorf("%w: patient_id and professional_id are required", ErrValidation)
	}
	if !a.StartDatetime.Before(a.EndDatetime) {
		return fmt.Errorf("%w: start must be before end", ErrValidation)
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	ctx, span := telemetry.StartSpan(ctx, "appointment.Book")
	defer span.End()
	span.SetAttributes(attribute.String("professional_id", a.ProfessionalID.String()))

	if err := s.checkProfessional(ctx, a.ProfessionalID); err != nil {
		return telemetry.RecordError(span, err)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockProfessional(ctx, a.ProfessionalID); err != nil {
			return err
		}
		overlap, err := s.repo.HasOverlap(ctx, a.ProfessionalID, a.StartDatetime, a.EndDatetime)
		if err != nil {
			return err
		}
		if overlap {
			return ErrSlotConflict
		}
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		return s.events.Record(ctx, outbox.Event{
			TenantID:      a.TenantID,
			AggregateType: "appointment",
			AggregateID:   a.ID.String(),
			EventType:     outbox.AppointmentCreated,
			Payload:       a,
		})
	})
	if err != nil {
		return telemetry.RecordError(span, err)
	}
	zerolog.Ctx(ctx).Info().
		Str("appointment_id", a.ID.String()).
		Str("professional_id", a.ProfessionalID.String()).
		Time("start", a.StartDatetime).
		Msg("appointment booked")
	return nil
}

// checkProfessional rejects bookings for professionals that are unknown in
// the tenant or no longer active.
func (s *Service) checkProfessional(ctx context.Context, id uuid.UUID) error {
	p, err := s.professionals.Get(ctx, id)
	switch {
	case errors.Is(err, professional.ErrNotFound):
		return fmt.Errorf("%w: professional %s not found", ErrValidation, id)
	case err != nil:
		return err
	case !p.Active:
		return fmt.Errorf("%w: professional %s is inactive", ErrValidation, id)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !validStatuses[f.Status] {
		return nil, 0, fmt.Errorf("%w: invalid status %q", ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

// ListBooked returns the non-cancelled appointments that block the calendar
// of the given professionals within [from, to).
func (s *Service) ListBooked(ctx context.Context, professionalIDs []uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	return s.repo.ListBooked(ctx, professionalIDs, from, to)
}

// UpdateStatus moves an appointment along its lifecycle. Cancelling frees the
// slot for new bookings.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	var updated *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(a.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, status)
		}
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		previous := a.Status
		a.Status = status
		updated = a
		return s.events.Record(ctx, outbox.Event{
			TenantID:      a.TenantID,
			AggregateType: "appointment",
			AggregateID:   a.ID.String(),
			EventType:     outbox.AppointmentStatusChanged,
			Payload: map[string]interface{}{
				"appointment_id":  a.ID,
				"previous_status": previous,
				"status":          status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
