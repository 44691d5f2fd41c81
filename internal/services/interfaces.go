package services

import (
	"context"
	"time"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Product              = domain.Product
	ProductState         = domain.ProductState
	ProductListFilter    = domain.ProductListFilter
	Cart                 = domain.Cart
	Address              = domain.Address
	Order                = domain.Order
	OrderLine            = domain.OrderLine
	OrderStatus          = domain.OrderStatus
	OrderListFilter      = domain.OrderListFilter
	CheckoutIntent       = domain.CheckoutIntent
	CheckoutIntentStatus = domain.CheckoutIntentStatus
)

// CatalogService manages product reads plus the single-unit state machine:
// available -> reserved -> sold, with reserved -> available on release.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	SaveProduct(ctx context.Context, cmd SaveProductCommand) (Product, error)
	Reserve(ctx context.Context, productID string) (Product, error)
	Release(ctx context.Context, productID string) (Product, error)
	MarkSold(ctx context.Context, productID string) (Product, error)
}

// CartService owns the per-user cart and keeps cart membership synchronised
// with product reservations.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddProduct(ctx context.Context, cmd CartProductCommand) (Cart, error)
	RemoveProduct(ctx context.Context, cmd CartProductCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) (Cart, error)
	ReleaseExpired(ctx context.Context, cmd ReleaseExpiredCommand) (ReleaseExpiredResult, error)
}

// CheckoutService converts carts into orders and repairs conversions that
// stopped part way through.
type CheckoutService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Reconcile(ctx context.Context, cmd ReconcileCommand) (ReconcileResult, error)
}

// OrderService exposes order reads and the strictly forward fulfillment
// transitions.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
}

// OrderEventPublisher delivers lifecycle events to the messaging backend.
// Implementations may block; services publish fire-and-forget.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// OrderEvent is the JSON message body published on order lifecycle changes.
type OrderEvent struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	Total       int64     `json:"total,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// SaveProductCommand carries a catalog upsert.
type SaveProductCommand struct {
	ProductID   string
	Name        string
	Team        string
	Size        string
	Description string
	Price       int64
	ImagePath   string
}

// CartProductCommand identifies a cart mutation for one product.
type CartProductCommand struct {
	UserID    string
	ProductID string
}

// ReleaseExpiredCommand bounds a reservation sweep run.
type ReleaseExpiredCommand struct {
	// IdleFor overrides the configured reservation TTL when positive.
	IdleFor time.Duration
	// Limit caps the number of carts examined; zero uses the configured batch size.
	Limit int
}

// ReleaseExpiredResult summarises a sweep run.
type ReleaseExpiredResult struct {
	CartsSwept       int
	ProductsReleased int
}

// CreateOrderCommand carries the cart-to-order conversion request.
type CreateOrderCommand struct {
	UserID          string
	CartID          string
	ShippingAddress Address
}

// ReconcileCommand bounds a reconciliation run.
type ReconcileCommand struct {
	// OlderThan overrides the configured grace period when positive.
	OlderThan time.Duration
	// Limit caps the number of intents processed; zero uses a default batch.
	Limit int
}

// ReconcileResult summarises a reconciliation run.
type ReconcileResult struct {
	IntentsExamined  int
	IntentsCompleted int
	IntentsDropped   int
	IntentsFailed    int
}

// OrderStatusTransitionCommand moves an order to the next fulfillment status.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
}
