package waitlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicsuite/agenda/internal/domain/appointment"
	"github.com/clinicsuite/agenda/internal/platform/outbox"
	"github.com/clinicsuite/agenda/internal/platform/telemetry"
)

// AppointmentData describes the appointment to create for an entry. A nil
// ProfessionalID falls back to the entry's professional.
type AppointmentData struct {
	ProfessionalID *uuid.UUID `json:"professional_id"`
	Date           string     `json:"date"`       // YYYY-MM-DD
	StartTime      string     `json:"start_time"` // HH:MM
	EndTime        string     `json:"end_time"`   // HH:MM
	ServiceType    *string    `json:"service_type,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
}

// ScheduleFromWaitingList turns an entry into an appointment in a single
// transaction: lock the entry, book the slot under the professional's lock,
// mark the entry scheduled and record the events. Any failure rolls back
// every step.
func (s *Service) ScheduleFromWaitingList(ctx context.Context, id uuid.UUID, data AppointmentData) (*Entry, *appointment.Appointment, error) {
	ctx, span := telemetry.StartSpan(ctx, "waitlist.ScheduleFromWaitingList")
	defer span.End()
	span.SetAttributes(attribute.String("waiting_list_id", id.String()))

	var (
		entry *Entry
		appt  *appointment.Appointment
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(e.Status, StatusScheduled) {
			return fmt.Errorf("%w: cannot schedule a %s entry", ErrInvalidTransition, e.Status)
		}

		req := appointment.Request{
			PatientID:   e.PatientID,
			Date:        data.Date,
			StartTime:   data.StartTime,
			EndTime:     data.EndTime,
			ServiceType: data.ServiceType,
			Notes:       data.Notes,
		}
		switch {
		case data.ProfessionalID != nil:
			req.ProfessionalID = *data.ProfessionalID
		case e.ProfessionalID != nil:
			req.ProfessionalID = *e.ProfessionalID
		}
		start, end, err := req.Validate(s.booker.Location())
		if err != nil {
			return err
		}

		a := req.Appointment(start, end)
		a.WaitingListID = &e.ID
		if err := s.booker.Book(ctx, a); err != nil {
			return err
		}

		e.Status = StatusScheduled
		e.AppointmentID = &a.ID
		if err := s.repo.Update(ctx, e); err != nil {
			return err
		}
		entry, appt = e, a

		return s.events.Record(ctx, outbox.Event{
			TenantID:      e.TenantID,
			AggregateType: "waiting_list_entry",
			AggregateID:   e.ID.String(),
			EventType:     outbox.WaitlistScheduled,
			Payload: map[string]interface{}{
				"waiting_list_id": e.ID,
				"appointment_id":  a.ID,
				"patient_id":      e.PatientID,
				"professional_id": a.ProfessionalID,
				"start_datetime":  a.StartDatetime,
				"end_datetime":    a.EndDatetime,
			},
		})
	})
	if err != nil {
		return nil, nil, telemetry.RecordError(span, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("waiting_list_id", entry.ID.String()).
		Str("appointment_id", appt.ID.String()).
		Msg("waiting list entry scheduled")
	return entry, appt, nil
}
