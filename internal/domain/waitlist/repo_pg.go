package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsuite/agenda/internal/platform/db"
)

type waitlistRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &waitlistRepoPG{pool: pool} }

const entryCols = `w.id, w.tenant_id, w.patient_id, w.professional_id, w.procedure_id,
	to_char(w.preferred_date, 'YYYY-MM-DD'), w.preferred_time_start, w.preferred_time_end,
	w.priority, w.status, w.notes, w.appointment_id, w.contact_attempts, w.last_contacted_at,
	w.created_at, w.updated_at, pt.name, pr.name`

const entryFrom = `FROM waiting_list_entry w
	LEFT JOIN patient pt ON pt.id = w.patient_id AND pt.tenant_id = w.tenant_id
	LEFT JOIN professional pr ON pr.id = w.professional_id AND pr.tenant_id = w.tenant_id`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.TenantID, &e.PatientID, &e.ProfessionalID, &e.ProcedureID,
		&e.PreferredDate, &e.PreferredTimeStart, &e.PreferredTimeEnd,
		&e.Priority, &e.Status, &e.Notes, &e.AppointmentID, &e.ContactAttempts, &e.LastContactedAt,
		&e.CreatedAt, &e.UpdatedAt, &e.PatientName, &e.ProfessionalName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &e, err
}

func (r *waitlistRepoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	e.TenantID = db.TenantFromContext(ctx)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO waiting_list_entry (id, tenant_id, patient_id, professional_id, procedure_id,
			preferred_date, preferred_time_start, preferred_time_end, priority, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6::date,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		e.ID, e.TenantID, e.PatientID, e.ProfessionalID, e.ProcedureID,
		e.PreferredDate, e.PreferredTimeStart, e.PreferredTimeEnd, e.Priority, e.Status, e.Notes,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert waiting list entry: %w", err)
	}
	return nil
}

func (r *waitlistRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+entryCols+` `+entryFrom+` WHERE w.tenant_id = $1 AND w.id = $2`,
		db.TenantFromContext(ctx), id))
}

func (r *waitlistRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Entry, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock waiting list entry %s: no transaction in context", id)
	}
	return scanEntry(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+entryCols+` `+entryFrom+` WHERE w.tenant_id = $1 AND w.id = $2 FOR UPDATE OF w`,
		db.TenantFromContext(ctx), id))
}

func (r *waitlistRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Entry, int, error) {
	conn := db.Conn(ctx, r.pool)
	where := []string{"w.tenant_id = $1"}
	args := []interface{}{db.TenantFromContext(ctx)}
	idx := 2

	if f.Status != "" {
		where = append(where, fmt.Sprintf("w.status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.Priority != nil {
		where = append(where, fmt.Sprintf("w.priority = $%d", idx))
		args = append(args, *f.Priority)
		idx++
	}
	if f.ProfessionalID != nil {
		where = append(where, fmt.Sprintf("w.professional_id = $%d", idx))
		args = append(args, *f.ProfessionalID)
		idx++
	}
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("w.patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM waiting_list_entry w WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+entryCols+` `+entryFrom+` WHERE %s
		ORDER BY w.priority DESC, w.created_at ASC, w.id ASC LIMIT $%d OFFSET $%d`, clause, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *waitlistRepoPG) Update(ctx context.Context, e *Entry) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE waiting_list_entry SET professional_id = $3, procedure_id = $4, preferred_date = $5::date,
			preferred_time_start = $6, preferred_time_end = $7, priority = $8, status = $9, notes = $10,
			appointment_id = $11, contact_attempts = $12, last_contacted_at = $13, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`,
		db.TenantFromContext(ctx), e.ID, e.ProfessionalID, e.ProcedureID, e.PreferredDate,
		e.PreferredTimeStart, e.PreferredTimeEnd, e.Priority, e.Status, e.Notes,
		e.AppointmentID, e.ContactAttempts, e.LastContactedAt).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update waiting list entry: %w", err)
	}
	return nil
}

func (r *waitlistRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM waiting_list_entry WHERE tenant_id = $1 AND id = $2`, db.TenantFromContext(ctx), id)
	if err != nil {
		return fmt.Errorf("delete waiting list entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *waitlistRepoPG) AddContactAttempt(ctx context.Context, a *ContactAttempt) error {
	a.ID = uuid.New()
	a.TenantID = db.TenantFromContext(ctx)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO waiting_list_contact (id, tenant_id, waiting_list_id, method, contacted_by)
		VALUES ($1,$2,$3,$4,NULLIF($5, ''))
		RETURNING created_at`,
		a.ID, a.TenantID, a.WaitingListID, a.Method, a.ContactedBy).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contact attempt: %w", err)
	}
	return nil
}

func (r *waitlistRepoPG) SetPriority(ctx context.Context, ids []uuid.UUID, priority int) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE waiting_list_entry SET priority = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = ANY($2)`, db.TenantFromContext(ctx), ids, priority)
	if err != nil {
		return 0, fmt.Errorf("update priorities: %w", err)
	}
	return tag.RowsAffected(), nil
}
