package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const defaultSweepBatchSize = 100

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart backend cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartProductNotAvailable indicates the product is reserved or sold and
// cannot be added to a cart.
var ErrCartProductNotAvailable = errors.New("cart service: product not available")

// ErrCartProductNotInCart indicates the product is not part of the user's cart.
var ErrCartProductNotInCart = errors.New("cart service: product not in cart")

// CartServiceDeps wires the repository dependencies for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	// Intents lets the sweep recognise carts with a conversion in flight.
	Intents repositories.CheckoutIntentRepository
	Clock   func() time.Time
	Logger  func(context.Context, string, map[string]any)
	// ReservationTTL is the idle age after which the sweep releases cart contents.
	ReservationTTL time.Duration
	SweepBatchSize int
}

type cartService struct {
	repo           repositories.CartRepository
	intents        repositories.CheckoutIntentRepository
	now            func() time.Time
	logger         func(context.Context, string, map[string]any)
	reservationTTL time.Duration
	sweepBatchSize int
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.ReservationTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	batch := deps.SweepBatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}

	return &cartService{
		repo:           deps.Repository,
		intents:        deps.Intents,
		now:            func() time.Time { return deps.Clock().UTC() },
		logger:         logger,
		reservationTTL: ttl,
		sweepBatchSize: batch,
	}, nil
}

// GetOrCreateCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.GetCart(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !isCartNotFound(err) {
		return Cart{}, s.translateRepoError(err)
	}

	now := s.now()
	created, err := s.repo.UpsertCart(ctx, Cart{
		ID:        userID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return created, nil
}

// AddProduct reserves the product and appends it to the cart. Exactly one of
// two concurrent calls for the same product succeeds; the loser observes the
// product already reserved.
func (s *cartService) AddProduct(ctx context.Context, cmd CartProductCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	if _, err := s.GetOrCreateCart(ctx, userID); err != nil {
		return Cart{}, err
	}

	cart, err := s.repo.AddProduct(ctx, userID, productID, s.now())
	if err != nil {
		return Cart{}, s.translateProductError(err)
	}

	s.logger(ctx, "cart.product.added", map[string]any{
		"user":    userID,
		"product": productID,
	})
	return cart, nil
}

// RemoveProduct releases the product back to available and drops it from the cart.
func (s *cartService) RemoveProduct(ctx context.Context, cmd CartProductCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.RemoveProduct(ctx, userID, productID, s.now())
	if err != nil {
		return Cart{}, s.translateProductError(err)
	}

	s.logger(ctx, "cart.product.removed", map[string]any{
		"user":    userID,
		"product": productID,
	})
	return cart, nil
}

// ClearCart releases every contained product and empties the cart.
func (s *cartService) ClearCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.Clear(ctx, userID, true, s.now())
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.cleared", map[string]any{"user": userID})
	return cart, nil
}

// ReleaseExpired releases reservations held by carts idle longer than the
// configured TTL. It is driven by an external scheduler through an internal
// endpoint; nothing runs in the background.
func (s *cartService) ReleaseExpired(ctx context.Context, cmd ReleaseExpiredCommand) (ReleaseExpiredResult, error) {
	idleFor := cmd.IdleFor
	if idleFor <= 0 {
		idleFor = s.reservationTTL
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = s.sweepBatchSize
	}

	now := s.now()
	cutoff := now.Add(-idleFor)

	page, err := s.repo.ListIdle(ctx, cutoff, Pagination{PageSize: limit})
	if err != nil {
		return ReleaseExpiredResult{}, s.translateRepoError(err)
	}

	result := ReleaseExpiredResult{}
	for _, cart := range page.Items {
		held := len(cart.ProductIDs)
		if held == 0 {
			continue
		}
		if s.conversionInFlight(ctx, cart) {
			// Releasing these reservations would strand the pending intent:
			// Reconcile needs the products reserved to finish the sale.
			s.logger(ctx, "cart.sweep.pending_intent", map[string]any{"user": cart.UserID})
			continue
		}
		if _, err := s.repo.Clear(ctx, cart.UserID, true, now); err != nil {
			// A conversion may have claimed the cart between listing and
			// clearing; skip it and keep sweeping.
			s.logger(ctx, "cart.sweep.skip", map[string]any{
				"user":  cart.UserID,
				"error": err.Error(),
			})
			continue
		}
		result.CartsSwept++
		result.ProductsReleased += held
	}

	s.logger(ctx, "cart.sweep.completed", map[string]any{
		"carts":    result.CartsSwept,
		"products": result.ProductsReleased,
	})
	return result, nil
}

// conversionInFlight reports whether a pending checkout intent exists for the
// cart. Lookup failures err on the side of skipping: a cart kept one more
// sweep cycle is cheaper than breaking a conversion.
func (s *cartService) conversionInFlight(ctx context.Context, cart Cart) bool {
	if s.intents == nil {
		return false
	}
	cartID := cart.ID
	if cartID == "" {
		cartID = cart.UserID
	}
	intent, err := s.intents.FindByCart(ctx, cartID)
	if err != nil {
		if isCartNotFound(err) {
			return false
		}
		s.logger(ctx, "cart.sweep.intent_lookup_failed", map[string]any{
			"user":  cart.UserID,
			"error": err.Error(),
		})
		return true
	}
	return intent.Status == domain.CheckoutIntentStatusPending
}

func (s *cartService) translateProductError(err error) error {
	if err == nil {
		return nil
	}

	var cartErr *repositories.CartError
	if errors.As(err, &cartErr) {
		switch cartErr.Code {
		case repositories.CartErrorNotFound:
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repositories.CartErrorProductNotInCart:
			return fmt.Errorf("%w: %v", ErrCartProductNotInCart, err)
		}
	}

	var productErr *repositories.ProductError
	if errors.As(err, &productErr) {
		switch productErr.Code {
		case repositories.ProductErrorNotFound:
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repositories.ProductErrorInvalidState:
			return fmt.Errorf("%w: %v", ErrCartProductNotAvailable, err)
		case repositories.ProductErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
		}
	}
	return s.translateRepoError(err)
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func isCartNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
