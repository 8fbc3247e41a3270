package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/domain"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/cart/store"
	"github.com/fatiha-mvv/microservice-panier-railway/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const ServiceName = "cart-service"

const defaultLoadTimeout = 5 * time.Second

type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// CartService applies cart mutations on top of a CartStore.
//
// Mutations are plain load/modify/save sequences without any compare-and-swap, so two
// concurrent writes for the same user can overwrite each other.
type CartService struct {
	store store.CartStore
	log   *slog.Logger
	sfg   singleflight.Group // coalesces concurrent loads of the same cart
	now   func() time.Time
	newID func() string

	loadTimeout time.Duration
}

type Option func(*CartService)

func WithClock(now func() time.Time) Option {
	return func(s *CartService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *CartService) { s.newID = newID }
}

// WithLoadTimeout bounds a coalesced load, which runs detached from any single caller.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *CartService) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

func NewCartService(st store.CartStore, log *slog.Logger, opts ...Option) *CartService {
	s := &CartService{
		store: st,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,

		loadTimeout: defaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCart returns the stored cart. Concurrent reads of one user share a single store
// round trip; that round trip is not tied to any caller, so one caller giving up does
// not fail the others.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.load(loadCtx, userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Cart), nil
	}
}

func (s *CartService) load(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.store.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", userID, err)
	}
	return cart, nil
}

// AddArticle merges article into the user's cart, creating the cart on first use.
// An article whose name already exists only increases that entry's quantity.
func (s *CartService) AddArticle(ctx context.Context, userID string, article domain.Article) (*domain.Cart, error) {
	if err := article.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	cart, err := s.load(ctx, userID)
	if errors.Is(err, domain.ErrCartNotFound) {
		cart = domain.NewCart(userID, now)
	} else if err != nil {
		return nil, err
	}

	article.ID = s.newID()
	article.AddedAt = now
	appended, err := cart.Merge(article)
	if err != nil {
		return nil, err
	}
	if !appended {
		logger.With(ctx, s.log).Debug("merged article into existing entry",
			slog.String("user_id", userID), slog.String("name", article.Name))
	}

	if err := s.save(ctx, cart, now); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveArticle drops the article with articleID. A missing article is not an error;
// the cart is saved either way, which restarts its expiry window.
func (s *CartService) RemoveArticle(ctx context.Context, userID, articleID string) (*domain.Cart, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	cart.RemoveByID(articleID)
	if err := s.save(ctx, cart, now); err != nil {
		return nil, err
	}
	return cart, nil
}

// ClearCart deletes the cart and reports whether there was one.
func (s *CartService) ClearCart(ctx context.Context, userID string) (bool, error) {
	existed, err := s.store.Delete(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("delete cart %s: %w", userID, err)
	}
	return existed, nil
}

func (s *CartService) HealthCheck() Health {
	return Health{Status: "healthy", Service: ServiceName}
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart, now time.Time) error {
	cart.LastModified = now
	if err := s.store.Set(ctx, cart); err != nil {
		return fmt.Errorf("save cart %s: %w", cart.UserID, err)
	}
	return nil
}
