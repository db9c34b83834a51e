package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/commerce-service/internal/cache"
	"github.com/fjod/go_cart/commerce-service/internal/catalog"
	"github.com/fjod/go_cart/commerce-service/internal/domain"
	"github.com/fjod/go_cart/commerce-service/internal/logger"
	"github.com/fjod/go_cart/commerce-service/internal/repository"
	"github.com/fjod/go_cart/commerce-service/internal/stock"
	"github.com/fjod/go_cart/commerce-service/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const loadTimeout = 5 * time.Second

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Reader
	stock   *stock.Validator
	logger  *zap.Logger
	opts    options
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	reader catalog.Reader,
	logger *zap.Logger,
	opts ...Option,
) *CartService {
	o := buildOptions(opts)
	stockReader := o.stock
	if stockReader == nil {
		stockReader = reader
	}
	return &CartService{
		repo:    repo,
		cache:   cartCache,
		catalog: reader,
		stock:   stock.NewValidator(stockReader),
		logger:  logger,
		opts:    o,
	}
}

// GetCart returns the user's cart with catalog data joined in. A cart with no
// lines is reported as domain.ErrCartNotFound, the same as a missing one.
func (s *CartService) GetCart(ctx context.Context, userID string) (view *domain.CartView, err error) {
	ctx, span := s.opts.tracer.Start(ctx, "CartService.GetCart",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(ctx, span, s.logger, "get cart", err, zap.String("user_id", userID)) }()

	if err := validation.UserID(userID); err != nil {
		return nil, err
	}

	// Use singleflight to prevent multiple concurrent cache misses for same key.
	// The shared load outlives a cancelled leader so followers still get a result.
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.loadCart(loadCtx, userID)
	})
	if err != nil {
		return nil, err
	}

	cart := v.(*domain.Cart)
	if cart.IsEmpty() {
		return nil, domain.ErrCartNotFound
	}
	return s.enrich(ctx, cart), nil
}

func (s *CartService) loadCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn(ctx, s.logger, "cache get error", zap.String("user_id", userID), zap.Error(err))
	}

	cart, err = s.repo.GetCart(ctx, userID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, domain.Internal(err, "load cart")
	}

	// rejected by the cache when a mutation already stored a newer version
	if errSet := s.cache.Set(ctx, userID, cart); errSet != nil {
		logger.Warn(ctx, s.logger, "cache set error", zap.String("user_id", userID), zap.Error(errSet))
	}

	return cart, nil
}

// enrich never fails: products the catalog cannot resolve are kept and
// flagged Unavailable.
func (s *CartService) enrich(ctx context.Context, cart *domain.Cart) *domain.CartView {
	ids := make([]string, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.ProductID
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		logger.Warn(ctx, s.logger, "cart enrichment failed", zap.String("user_id", cart.UserID), zap.Error(err))
	}

	view := &domain.CartView{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Lines:     make([]domain.CartLine, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		line := domain.CartLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		}
		if p, ok := products[item.ProductID]; ok {
			line.Product = &p
		} else {
			line.Unavailable = true
		}
		view.Lines = append(view.Lines, line)
	}
	return view
}

// AddItem creates the cart on first use and merges quantity into an existing
// line. Only the requested quantity is checked against stock, not the merged
// total. Repeating the call adds the quantity again.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (cart *domain.Cart, err error) {
	ctx, span := s.startMutation(ctx, "CartService.AddItem", userID, productID)
	defer func() { s.finishMutation(ctx, span, "add_item", userID, productID, err) }()

	input := validation.AddItemInput{UserID: userID, ProductID: productID, Quantity: quantity}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	if err := s.checkStock(ctx, productID, quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, true, func(cart *domain.Cart) error {
		return cart.AddItem(productID, quantity, s.opts.now())
	})
}

// UpdateItem overwrites a line's quantity. Zero removes the line; a positive
// quantity is checked in full against current stock.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (cart *domain.Cart, err error) {
	ctx, span := s.startMutation(ctx, "CartService.UpdateItem", userID, productID)
	defer func() { s.finishMutation(ctx, span, "update_item", userID, productID, err) }()

	input := validation.UpdateItemInput{UserID: userID, ProductID: productID, Quantity: quantity}
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, false, func(cart *domain.Cart) error {
		if cart.IndexOf(productID) < 0 {
			return domain.ErrItemNotFound
		}
		if quantity > 0 {
			if err := s.checkStock(ctx, productID, quantity); err != nil {
				return err
			}
		}
		return cart.SetQuantity(productID, quantity, s.opts.now())
	})
}

// RemoveItem deletes a line. The cart is kept even when it becomes empty.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (cart *domain.Cart, err error) {
	ctx, span := s.startMutation(ctx, "CartService.RemoveItem", userID, productID)
	defer func() { s.finishMutation(ctx, span, "remove_item", userID, productID, err) }()

	if err := validation.Struct(validation.CartItemRef{UserID: userID, ProductID: productID}); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, false, func(cart *domain.Cart) error {
		return cart.RemoveItem(productID, s.opts.now())
	})
}

func (s *CartService) checkStock(ctx context.Context, productID string, quantity int) error {
	availability, err := s.stock.CheckAvailability(ctx, productID, quantity)
	if err != nil {
		return domain.Internal(err, "check stock")
	}
	return availability.Err()
}

// mutate is the atomic read-modify-write on one user's cart: load, apply fn,
// save with a version check, and start over on conflict. fn must be safe to
// run more than once.
func (s *CartService) mutate(ctx context.Context, userID string, create bool, fn func(*domain.Cart) error) (*domain.Cart, error) {
	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		cart, err := s.repo.GetCart(ctx, userID)
		switch {
		case errors.Is(err, repository.ErrCartNotFound):
			if !create {
				return nil, domain.ErrCartNotFound
			}
			cart = domain.NewCart(userID, s.opts.now())
		case err != nil:
			return nil, domain.Internal(err, "load cart")
		}

		if err := fn(cart); err != nil {
			return nil, err
		}

		err = s.repo.SaveCart(ctx, cart)
		if err == nil {
			s.storeSaved(ctx, cart)
			return cart, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, domain.Internal(err, "save cart")
		}

		s.opts.metrics.VersionConflict("cart")
		logger.Debug(ctx, s.logger, "cart version conflict, retrying",
			zap.String("user_id", userID), zap.Int("attempt", attempt))
	}

	return nil, domain.Internal(
		errors.Wrapf(domain.ErrConcurrentUpdate, "cart of user %s after %d attempts", userID, s.opts.maxAttempts),
		"save cart")
}

// storeSaved writes the saved cart through to the cache and detaches later
// GetCart calls from any load that started before the save.
func (s *CartService) storeSaved(ctx context.Context, cart *domain.Cart) {
	s.sfg.Forget(cart.UserID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	err := s.cache.Set(ctx, cart.UserID, cart)
	if err == nil {
		return
	}
	logger.Warn(ctx, s.logger, "cache write-through error", zap.String("user_id", cart.UserID), zap.Error(err))
	if err := s.cache.Delete(ctx, cart.UserID); err != nil {
		logger.Warn(ctx, s.logger, "cache invalidate error", zap.String("user_id", cart.UserID), zap.Error(err))
	}
}

func (s *CartService) startMutation(ctx context.Context, name, userID, productID string) (context.Context, trace.Span) {
	return s.opts.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("product.id", productID),
	))
}

func (s *CartService) finishMutation(ctx context.Context, span trace.Span, op, userID, productID string, err error) {
	s.opts.metrics.CartMutation(op, err)
	endSpan(ctx, span, s.logger, op, err, zap.String("user_id", userID), zap.String("product_id", productID))
}
