package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsuite/agenda/internal/platform/db"
)

type settingsRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &settingsRepoPG{pool: pool} }

func (r *settingsRepoPG) Get(ctx context.Context) (*Settings, error) {
	var (
		s        Settings
		hours    []byte
		holidays []byte
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT tenant_id, working_hours, holidays, updated_at
		FROM tenant_settings WHERE tenant_id = $1`, db.TenantFromContext(ctx)).
		Scan(&s.TenantID, &hours, &holidays, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select tenant settings: %w", err)
	}
	if err := json.Unmarshal(hours, &s.WorkingHours); err != nil {
		return nil, fmt.Errorf("decode working_hours: %w", err)
	}
	if err := json.Unmarshal(holidays, &s.Holidays); err != nil {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}
	return &s, nil
}

func encode(s *Settings) ([]byte, []byte, error) {
	hours, err := json.Marshal(s.WorkingHours)
	if err != nil {
		return nil, nil, err
	}
	if s.Holidays == nil {
		s.Holidays = []Holiday{}
	}
	holidays, err := json.Marshal(s.Holidays)
	if err != nil {
		return nil, nil, err
	}
	return hours, holidays, nil
}

func (r *settingsRepoPG) Upsert(ctx context.Context, s *Settings) error {
	hours, holidays, err := encode(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	s.TenantID = db.TenantFromContext(ctx)
	err = db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO tenant_settings (tenant_id, working_hours, holidays)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
			SET working_hours = EXCLUDED.working_hours, holidays = EXCLUDED.holidays, updated_at = NOW()
		RETURNING updated_at`, s.TenantID, hours, holidays).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert tenant settings: %w", err)
	}
	return nil
}

func (r *settingsRepoPG) CreateIfMissing(ctx context.Context, s *Settings) (bool, error) {
	hours, holidays, err := encode(s)
	if err != nil {
		return false, fmt.Errorf("encode settings: %w", err)
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO tenant_settings (tenant_id, working_hours, holidays)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO NOTHING`, db.TenantFromContext(ctx), hours, holidays)
	if err != nil {
		return false, fmt.Errorf("insert tenant settings: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
