package settings

import "context"

// Repository persists one settings row per tenant. The tenant comes from ctx.
type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
	// CreateIfMissing inserts s unless the tenant already has a row. It
	// reports whether a row was written.
	CreateIfMissing(ctx context.Context, s *Settings) (bool, error)
}
