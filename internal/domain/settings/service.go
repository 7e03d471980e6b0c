package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicsuite/agenda/internal/platform/cache"
	"github.com/clinicsuite/agenda/internal/platform/db"
)

type Service struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
}

// NewService wires the repository behind an optional read-through cache.
// A nil cache disables caching.
func NewService(repo Repository, c cache.Cache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl}
}

func cacheKey(tenantID string) string { return "settings:" + tenantID }

// Get returns the caller tenant's settings. Tenants that never saved settings
// get the defaults. Cache failures are logged and fall through to Postgres.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	tenantID := db.TenantFromContext(ctx)
	log := zerolog.Ctx(ctx)

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, cacheKey(tenantID))
		if err != nil {
			log.Warn().Err(err).Msg("settings cache read failed")
		} else if ok {
			var cached Settings
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
			log.Warn().Msg("discarding undecodable settings cache entry")
		}
	}

	st, err := s.repo.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		st = Default(tenantID)
	} else if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(st); err == nil {
			if err := s.cache.Set(ctx, cacheKey(tenantID), raw, s.ttl); err != nil {
				log.Warn().Err(err).Msg("settings cache write failed")
			}
		}
	}
	return st, nil
}

// Update validates and stores st, then drops the cached copy.
func (s *Service) Update(ctx context.Context, st *Settings) error {
	if st.WorkingHours == nil {
		st.WorkingHours = WorkingHours{}
	}
	if err := st.Validate(); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, st); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKey(db.TenantFromContext(ctx))); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("settings cache invalidation failed")
		}
	}
	return nil
}

// Provision writes default settings for a new tenant. Existing rows are left
// untouched.
func (s *Service) Provision(ctx context.Context) (bool, error) {
	return s.repo.CreateIfMissing(ctx, Default(db.TenantFromContext(ctx)))
}
