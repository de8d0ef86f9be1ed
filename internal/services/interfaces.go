package services

import (
	"context"

	"card-order-service/internal/domain"
)

// OrderCache is an optional read-through cache for order details. Readers
// take Version before loading from the store and pass it to Set; an
// Invalidate in between makes that Set a no-op.
type OrderCache interface {
	Get(ctx context.Context, id uint64) (*domain.OrderDetails, bool)
	Version(ctx context.Context, id uint64) (int64, bool)
	Set(ctx context.Context, d *domain.OrderDetails, version int64)
	Invalidate(ctx context.Context, id uint64)
}

// EventMarker remembers gateway notifications that were fully applied.
type EventMarker interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type SignatureVerifier interface {
	Verify(body []byte, signature string) bool
}

type nopCache struct{}

func (nopCache) Get(context.Context, uint64) (*domain.OrderDetails, bool) { return nil, false }
func (nopCache) Version(context.Context, uint64) (int64, bool)           { return 0, false }
func (nopCache) Set(context.Context, *domain.OrderDetails, int64)        {}
func (nopCache) Invalidate(context.Context, uint64)                      {}
