package professional

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsuite/agenda/internal/platform/db"
)

type professionalRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &professionalRepoPG{pool: pool} }

const profCols = `id, tenant_id, name, active, created_at, updated_at`

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *professionalRepoPG) Create(ctx context.Context, p *Professional) error {
	p.ID = uuid.New()
	p.TenantID = db.TenantFromContext(ctx)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO professional (id, tenant_id, name, active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		p.ID, p.TenantID, p.Name, p.Active).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert professional: %w", err)
	}
	return nil
}

func (r *professionalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return scanProfessional(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profCols+` FROM professional WHERE tenant_id = $1 AND id = $2`,
		db.TenantFromContext(ctx), id))
}

func (r *professionalRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Professional, int, error) {
	conn := db.Conn(ctx, r.pool)
	tenant := db.TenantFromContext(ctx)

	var total int
	if err := conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM professional
		WHERE tenant_id = $1 AND ($2 = FALSE OR active)`, tenant, activeOnly).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT `+profCols+` FROM professional
		WHERE tenant_id = $1 AND ($2 = FALSE OR active)
		ORDER BY name, id
		LIMIT $3 OFFSET $4`, tenant, activeOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *professionalRepoPG) ListActive(ctx context.Context) ([]*Professional, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+profCols+` FROM professional
		WHERE tenant_id = $1 AND active
		ORDER BY name, id`, db.TenantFromContext(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
