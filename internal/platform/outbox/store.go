package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsuite/agenda/internal/platform/db"
)

// Store reads and acknowledges pending outbox rows. Both calls run inside the
// publisher's transaction.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// FetchUnpublished locks up to limit rows; SKIP LOCKED lets several server
// replicas relay concurrently without duplicating work.
func (s *PGStore) FetchUnpublished(ctx context.Context, limit int) ([]Record, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, event_id, tenant_id, aggregate_type, aggregate_id, event_type, payload,
		       COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_event
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EventID, &r.TenantID, &r.AggregateType, &r.AggregateID, &r.EventType,
			&r.Payload, &r.Traceparent, &r.Tracestate, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *PGStore) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE outbox_event SET published_at = NOW() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
