package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
)

var (
	errCheckoutCartsRequired    = errors.New("checkout service: cart repository is required")
	errCheckoutProductsRequired = errors.New("checkout service: product repository is required")
	errCheckoutOrdersRequired   = errors.New("checkout service: order repository is required")
	errCheckoutIntentsRequired  = errors.New("checkout service: intent repository is required")
	errCheckoutCountersRequired = errors.New("checkout service: counter repository is required")
	errCheckoutClockRequired    = errors.New("checkout service: clock is required")
)

const (
	orderIDPrefix       = "ord_"
	orderNumberCounter  = "orders"
	defaultReconcileMax = 50
	orderCreatedEvent   = "order.created"
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutCartNotFound indicates the referenced cart does not exist.
var ErrCheckoutCartNotFound = errors.New("checkout service: cart not found")

// ErrCheckoutEmptyCart indicates the cart holds no products.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutProductNotReserved indicates a cart product is no longer in the
// reserved state; the conversion aborts with no changes.
var ErrCheckoutProductNotReserved = errors.New("checkout service: product no longer reserved")

// ErrCheckoutConflict indicates another conversion for the cart is in flight
// or awaiting reconciliation.
var ErrCheckoutConflict = errors.New("checkout service: conversion already in progress")

// ErrCheckoutUnavailable indicates the checkout backend cannot fulfil the request.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// CheckoutServiceDeps wires the repositories and collaborators for cart-to-order conversion.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Intents     repositories.CheckoutIntentRepository
	Counters    repositories.CounterRepository
	Events      OrderEventPublisher
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
	// ReconcileGrace is how old a pending intent must be before Reconcile
	// treats it as abandoned.
	ReconcileGrace time.Duration
}

type checkoutService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	intents  repositories.CheckoutIntentRepository
	counters repositories.CounterRepository
	events   OrderEventPublisher
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	grace    time.Duration
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Products == nil {
		return nil, errCheckoutProductsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Intents == nil {
		return nil, errCheckoutIntentsRequired
	}
	if deps.Counters == nil {
		return nil, errCheckoutCountersRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	grace := deps.ReconcileGrace
	if grace <= 0 {
		grace = time.Minute
	}

	return &checkoutService{
		carts:    deps.Carts,
		products: deps.Products,
		orders:   deps.Orders,
		intents:  deps.Intents,
		counters: deps.Counters,
		events:   deps.Events,
		now:      func() time.Time { return deps.Clock().UTC() },
		newID:    idGen,
		logger:   logger,
		grace:    grace,
	}, nil
}

// CreateOrder converts a cart into an order. Validation and the reservation
// re-check abort with no side effects; once the order document is written the
// sale is committed, and any failure in the remaining steps is flagged and
// left to Reconcile instead of being rolled back.
func (s *checkoutService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	cartID := strings.TrimSpace(cmd.CartID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if cartID == "" {
		cartID = userID
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if isNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrCheckoutCartNotFound, cartID)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	if cart.UserID != userID {
		return Order{}, fmt.Errorf("%w: cart %s does not belong to caller", ErrCheckoutCartNotFound, cartID)
	}
	if len(cart.ProductIDs) == 0 {
		return Order{}, fmt.Errorf("%w: %s", ErrCheckoutEmptyCart, cartID)
	}

	products, err := s.products.FindMany(ctx, cart.ProductIDs)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	byID := make(map[string]Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	lines := make([]OrderLine, 0, len(cart.ProductIDs))
	var total int64
	for _, productID := range cart.ProductIDs {
		product, ok := byID[productID]
		if !ok {
			return Order{}, fmt.Errorf("%w: product %s missing", ErrCheckoutProductNotReserved, productID)
		}
		if product.State != domain.ProductStateReserved {
			return Order{}, fmt.Errorf("%w: product %s is %s", ErrCheckoutProductNotReserved, productID, product.State)
		}
		lines = append(lines, OrderLine{
			ProductRef: product.ID,
			Name:       product.Name,
			Team:       product.Team,
			Size:       product.Size,
			ImagePath:  product.ImagePath,
			PricePaid:  product.Price,
		})
		total += product.Price
	}

	now := s.now()
	orderID := orderIDPrefix + s.newID()

	intent := CheckoutIntent{
		ID:         cart.ID,
		CartID:     cart.ID,
		UserID:     userID,
		OrderID:    orderID,
		ProductIDs: append([]string(nil), cart.ProductIDs...),
		Status:     domain.CheckoutIntentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		if isConflict(err) {
			return Order{}, fmt.Errorf("%w: cart %s", ErrCheckoutConflict, cart.ID)
		}
		return Order{}, s.mapRepositoryError(err)
	}

	// The sequence number is allocated only after the intent is held, so a
	// conversion that loses the conflict never burns an order number.
	orderNumber, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		s.dropIntent(ctx, cart.ID)
		return Order{}, s.mapRepositoryError(err)
	}

	cartRef := cart.ID
	order := Order{
		ID:              orderID,
		OrderNumber:     orderNumber,
		UserID:          userID,
		CartRef:         &cartRef,
		Status:          domain.OrderStatusPendingPayment,
		ShippingAddress: cmd.ShippingAddress,
		Total:           total,
		Lines:           lines,
		CreatedAt:       now,
		UpdatedAt:       now,
		PlacedAt:        &now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		// Nothing durable happened for the caller yet; drop the intent so the
		// cart is not locked out of future conversions.
		s.dropIntent(ctx, cart.ID)
		if isConflict(err) {
			return Order{}, fmt.Errorf("%w: order %s", ErrCheckoutConflict, orderID)
		}
		return Order{}, s.mapRepositoryError(err)
	}

	// The sale is committed now. Later failures never undo the order; the
	// pending intent keeps the conversion visible to Reconcile.
	if err := s.finishConversion(ctx, intent); err != nil {
		s.logger(ctx, "checkout.partial_completion", map[string]any{
			"cart":  cart.ID,
			"order": orderID,
			"error": err.Error(),
		})
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderCreatedEvent,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Total:       order.Total,
		OccurredAt:  now,
	})
	return order, nil
}

// Reconcile finishes conversions whose intent stayed pending past the grace
// period. An intent whose order was never written is dropped; one whose order
// exists gets the remaining steps replayed idempotently.
func (s *checkoutService) Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error) {
	olderThan := cmd.OlderThan
	if olderThan <= 0 {
		olderThan = s.grace
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultReconcileMax
	}

	cutoff := s.now().Add(-olderThan)
	page, err := s.intents.ListPending(ctx, cutoff, Pagination{PageSize: limit})
	if err != nil {
		return ReconcileResult{}, s.mapRepositoryError(err)
	}

	result := ReconcileResult{IntentsExamined: len(page.Items)}
	for _, intent := range page.Items {
		if _, err := s.orders.FindByID(ctx, intent.OrderID); err != nil {
			if isNotFound(err) {
				// Crashed before the order write: nothing was committed, the
				// products are still reserved in the cart. Unlock the cart.
				if dropErr := s.intents.Delete(ctx, intent.CartID); dropErr != nil {
					result.IntentsFailed++
					s.logger(ctx, "checkout.reconcile.drop.failed", map[string]any{
						"cart":  intent.CartID,
						"error": dropErr.Error(),
					})
					continue
				}
				result.IntentsDropped++
				continue
			}
			result.IntentsFailed++
			s.logger(ctx, "checkout.reconcile.lookup.failed", map[string]any{
				"cart":  intent.CartID,
				"order": intent.OrderID,
				"error": err.Error(),
			})
			continue
		}

		if err := s.finishConversion(ctx, intent); err != nil {
			result.IntentsFailed++
			s.logger(ctx, "checkout.reconcile.finish.failed", map[string]any{
				"cart":  intent.CartID,
				"order": intent.OrderID,
				"error": err.Error(),
			})
			continue
		}
		result.IntentsCompleted++
	}

	s.logger(ctx, "checkout.reconcile.completed", map[string]any{
		"examined":  result.IntentsExamined,
		"completed": result.IntentsCompleted,
		"dropped":   result.IntentsDropped,
		"failed":    result.IntentsFailed,
	})
	return result, nil
}

// finishConversion applies the post-order steps of a conversion: products to
// sold, cart emptied without release, intent completed. Every step tolerates
// having already run.
func (s *checkoutService) finishConversion(ctx context.Context, intent CheckoutIntent) error {
	now := s.now()
	if err := s.products.MarkSold(ctx, intent.ProductIDs, now); err != nil {
		return fmt.Errorf("mark products sold: %w", err)
	}
	if _, err := s.carts.Clear(ctx, intent.CartID, false, now); err != nil && !isNotFound(err) {
		return fmt.Errorf("clear cart: %w", err)
	}
	if err := s.intents.Complete(ctx, intent.CartID, now); err != nil {
		return fmt.Errorf("complete intent: %w", err)
	}
	return nil
}

func (s *checkoutService) dropIntent(ctx context.Context, cartID string) {
	if err := s.intents.Delete(ctx, cartID); err != nil {
		s.logger(ctx, "checkout.intent.cleanup.failed", map[string]any{
			"cart":  cartID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderNumberCounter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CA-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func validateShippingAddress(addr Address) error {
	if strings.TrimSpace(addr.Recipient) == "" {
		return fmt.Errorf("%w: shipping recipient is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: shipping line1 is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: shipping city is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return fmt.Errorf("%w: shipping postal code is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: shipping country is required", ErrCheckoutInvalidInput)
	}
	return nil
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var productErr *repositories.ProductError
	if errors.As(err, &productErr) {
		switch productErr.Code {
		case repositories.ProductErrorNotFound:
			return fmt.Errorf("%w: %v", ErrCheckoutProductNotReserved, err)
		case repositories.ProductErrorInvalidState:
			return fmt.Errorf("%w: %v", ErrCheckoutProductNotReserved, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCheckoutCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
