// Package outbox implements the transactional outbox: domain events are
// written in the same transaction as the state change and relayed to Kafka
// by a background publisher.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsuite/agenda/internal/platform/db"
	"github.com/clinicsuite/agenda/internal/platform/telemetry"
)

// Event types emitted by the scheduling domain. The Kafka topic equals the
// event type.
const (
	AppointmentCreated       = "appointment.created"
	AppointmentStatusChanged = "appointment.status_changed"
	WaitlistScheduled        = "waitlist.scheduled"
	WaitlistContactRequested = "waitlist.contact_requested"
)

// Event is the envelope handed to Recorder. Payload is marshalled to JSON.
type Event struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       interface{}
}

// Record is a stored outbox row.
type Record struct {
	ID            int64
	EventID       uuid.UUID
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// Recorder persists events. Callers invoke it inside db.TxRunner.WithinTx so
// the row commits or rolls back with the state change.
type Recorder interface {
	Record(ctx context.Context, evt Event) error
}

type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) Record(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", evt.EventType, err)
	}
	if db.TxFromContext(ctx) == nil {
		return fmt.Errorf("outbox event %s recorded outside a transaction", evt.EventType)
	}
	traceparent, tracestate := telemetry.TraceContextStrings(ctx)
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO outbox_event (event_id, tenant_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), evt.TenantID, evt.AggregateType, evt.AggregateID, evt.EventType, payload,
		nullIfEmpty(traceparent), nullIfEmpty(tracestate))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
