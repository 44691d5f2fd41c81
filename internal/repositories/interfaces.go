package repositories

import (
	"context"
	"time"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	CheckoutIntents() CheckoutIntentRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products and performs compare-and-set
// state transitions. Each product is a single physical unit; its state field
// is the only inventory signal.
type ProductRepository interface {
	Save(ctx context.Context, product domain.Product) (domain.Product, error)
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindMany(ctx context.Context, productIDs []string) ([]domain.Product, error)
	List(ctx context.Context, filter domain.ProductListFilter) (domain.CursorPage[domain.Product], error)
	// Transition performs a transactional compare-and-set from one state to
	// another. It fails with a conflict error when the stored state differs
	// from `from`, so exactly one of two concurrent callers wins.
	Transition(ctx context.Context, productID string, from, to domain.ProductState, now time.Time) (domain.Product, error)
	// MarkSold moves every listed product from reserved to sold inside one
	// transaction. Products already sold are skipped so the call is safe to
	// retry; any other state fails the whole batch with a conflict error.
	MarkSold(ctx context.Context, productIDs []string, now time.Time) error
}

// CartRepository owns cart persistence plus the transactional cart/product
// pair mutations: adding a product reserves it, removing releases it, both in
// a single transaction so no observer sees a half-applied change.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// AddProduct reserves an available product and appends its reference.
	// A product in any other state fails with a conflict error.
	AddProduct(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error)
	// RemoveProduct releases the product back to available and removes its
	// reference in one transaction.
	RemoveProduct(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error)
	// Clear empties the cart. With release set, contained products move from
	// reserved back to available in the same transaction; without it product
	// states are left untouched, which the checkout coordinator relies on to
	// empty a converted cart whose products are already sold.
	Clear(ctx context.Context, userID string, release bool, now time.Time) (domain.Cart, error)
	// ListIdle returns carts holding at least one product whose last update is
	// older than the cutoff. Used by the reservation sweep.
	ListIdle(ctx context.Context, updatedBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.Cart], error)
}

// OrderRepository persists order documents.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CheckoutIntentRepository persists conversion intents. Create must fail with
// a conflict while a pending intent for the same cart exists; a completed
// intent left by an earlier conversion is replaced, so a cart can be converted
// again after it has been refilled.
type CheckoutIntentRepository interface {
	Create(ctx context.Context, intent domain.CheckoutIntent) error
	FindByCart(ctx context.Context, cartID string) (domain.CheckoutIntent, error)
	Complete(ctx context.Context, cartID string, now time.Time) error
	Delete(ctx context.Context, cartID string) error
	ListPending(ctx context.Context, createdBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.CheckoutIntent], error)
}

// CounterRepository issues monotonically increasing sequence numbers used for
// human-readable order numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// HealthRepository reports on persistence connectivity for readiness checks.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
