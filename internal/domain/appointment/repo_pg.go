package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsuite/agenda/internal/platform/db"
)

// exclusionViolation is raised by the appointment_no_overlap constraint.
const exclusionViolation = "23P01"

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

const apptCols = `a.id, a.tenant_id, a.patient_id, a.professional_id, a.start_datetime, a.end_datetime,
	a.status, a.service_type, a.notes, a.waiting_list_id, a.created_at, a.updated_at,
	pt.name, pr.name`

const apptFrom = `FROM appointment a
	LEFT JOIN patient pt ON pt.id = a.patient_id AND pt.tenant_id = a.tenant_id
	LEFT JOIN professional pr ON pr.id = a.professional_id AND pr.tenant_id = a.tenant_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.TenantID, &a.PatientID, &a.ProfessionalID, &a.StartDatetime, &a.EndDatetime,
		&a.Status, &a.ServiceType, &a.Notes, &a.WaitingListID, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientName, &a.ProfessionalName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.TenantID = db.TenantFromContext(ctx)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, tenant_id, patient_id, professional_id, start_datetime, end_datetime,
			status, service_type, notes, waiting_list_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.TenantID, a.PatientID, a.ProfessionalID, a.StartDatetime, a.EndDatetime,
		a.Status, a.ServiceType, a.Notes, a.WaitingListID).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return ErrSlotConflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+apptCols+` `+apptFrom+` WHERE a.tenant_id = $1 AND a.id = $2`,
		db.TenantFromContext(ctx), id))
}

func (r *appointmentRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	conn := db.Conn(ctx, r.pool)
	where := []string{"a.tenant_id = $1"}
	args := []interface{}{db.TenantFromContext(ctx)}
	idx := 2

	if f.ProfessionalID != nil {
		where = append(where, fmt.Sprintf("a.professional_id = $%d", idx))
		args = append(args, *f.ProfessionalID)
		idx++
	}
	if f.PatientID != nil {
		where = append(where, fmt.Sprintf("a.patient_id = $%d", idx))
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("a.end_datetime > $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("a.start_datetime < $%d", idx))
		args = append(args, *f.To)
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointment a WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+apptCols+` `+apptFrom+` WHERE %s ORDER BY a.start_datetime, a.id LIMIT $%d OFFSET $%d`,
		clause, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) ListBooked(ctx context.Context, professionalIDs []uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	if len(professionalIDs) == 0 {
		return nil, nil
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+apptCols+` `+apptFrom+`
		WHERE a.tenant_id = $1 AND a.professional_id = ANY($2)
		  AND a.status <> 'cancelled'
		  AND a.start_datetime < $4 AND a.end_datetime > $3
		ORDER BY a.start_datetime, a.id`,
		db.TenantFromContext(ctx), professionalIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) LockProfessional(ctx context.Context, professionalID uuid.UUID) error {
	return db.LockKey(ctx, "appointment:"+db.TenantFromContext(ctx)+":"+professionalID.String())
}

func (r *appointmentRepoPG) HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE tenant_id = $1 AND professional_id = $2 AND status <> 'cancelled'
			  AND start_datetime < $4 AND end_datetime > $3
		)`, db.TenantFromContext(ctx), professionalID, start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment overlap: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointment SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`, db.TenantFromContext(ctx), id, status)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
