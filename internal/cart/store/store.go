package store

import (
	"context"
	"errors"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/domain"
)

// CartStore persists one serialized cart per user.
type CartStore interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, userID string) (bool, error)
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("cart not stored")
