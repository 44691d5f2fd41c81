package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ProductState enumerates the lifecycle states a catalog product moves through.
// Every product represents exactly one physical unit, so the state is the
// whole inventory story: a reserved or sold product cannot be claimed again.
type ProductState string

const (
	// ProductStateAvailable indicates the product can be added to a cart.
	ProductStateAvailable ProductState = "available"
	// ProductStateReserved indicates the product is held inside some cart.
	ProductStateReserved ProductState = "reserved"
	// ProductStateSold indicates the product belongs to a created order. Terminal.
	ProductStateSold ProductState = "sold"
)

// Product describes a unique single-unit apparel item in the catalog.
type Product struct {
	ID          string
	Name        string
	Team        string
	Size        string
	Description string
	// Price is stored in the smallest currency unit and must be positive.
	Price     int64
	ImagePath string
	State     ProductState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	State      *ProductState
	Team       *string
	Pagination Pagination
}

// Cart aggregates the mutable shopping cart state for a user. The document ID
// equals the user ID, which enforces the one-cart-per-user rule at the store.
type Cart struct {
	ID         string
	UserID     string
	ProductIDs []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Contains reports whether the cart references the given product.
func (c Cart) Contains(productID string) bool {
	for _, id := range c.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// Address represents the postal address attached to an order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// OrderStatus enumerates valid lifecycle states for orders. Transitions only
// move forward one step at a time; there is no cancellation state.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits payment confirmation.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid indicates payment has been confirmed.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
)

// Order captures an order header with its immutable line snapshots.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	CartRef         *string
	Status          OrderStatus
	ShippingAddress Address
	// Total is the sum of the line snapshot prices in the smallest currency unit.
	Total       int64
	Lines       []OrderLine
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PlacedAt    *time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// OrderLine snapshots a product at conversion time. Later edits to the catalog
// entry never alter an existing order line.
type OrderLine struct {
	ProductRef string
	Name       string
	Team       string
	Size       string
	ImagePath  string
	PricePaid  int64
}

// OrderListFilter narrows order listings by owner and/or status.
type OrderListFilter struct {
	UserID     *string
	Status     *OrderStatus
	Pagination Pagination
}

// CheckoutIntentStatus tracks the progress of a cart-to-order conversion.
type CheckoutIntentStatus string

const (
	// CheckoutIntentStatusPending marks a conversion that has not finished all
	// of its storage steps yet.
	CheckoutIntentStatusPending CheckoutIntentStatus = "pending"
	// CheckoutIntentStatusCompleted marks a fully applied conversion.
	CheckoutIntentStatusCompleted CheckoutIntentStatus = "completed"
)

// CheckoutIntent records a cart-to-order conversion before any store is
// mutated. The document ID equals the cart ID, so at most one conversion per
// cart can be in flight, and a pending intent left behind by a crash is the
// signal reconciliation looks for.
type CheckoutIntent struct {
	ID         string
	CartID     string
	UserID     string
	OrderID    string
	ProductIDs []string
	Status     CheckoutIntentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
