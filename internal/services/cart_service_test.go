package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
)

func TestCartServiceGetOrCreateCartReturnsExisting(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			if userID != "user-123" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.Cart{
				ID:         "user-123",
				UserID:     "user-123",
				ProductIDs: []string{"prod_1"},
				UpdatedAt:  now.Add(-time.Hour),
			}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.GetOrCreateCart(context.Background(), " user-123 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.ID != "user-123" {
		t.Fatalf("expected cart id user-123, got %q", cart.ID)
	}
	if len(cart.ProductIDs) != 1 {
		t.Fatalf("expected 1 product, got %d", len(cart.ProductIDs))
	}
}

func TestCartServiceGetOrCreateCartLazyCreates(t *testing.T) {
	now := time.Date(2026, 5, 11, 9, 30, 0, 0, time.UTC)
	var upserted domain.Cart

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			upserted = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.GetOrCreateCart(context.Background(), "guest-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserted.ID != "guest-5" || upserted.UserID != "guest-5" {
		t.Fatalf("expected upserted cart keyed by user, got id %q user %q", upserted.ID, upserted.UserID)
	}
	if !upserted.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt %v, got %v", now, upserted.CreatedAt)
	}
	if len(cart.ProductIDs) != 0 {
		t.Fatalf("expected empty cart")
	}
}

func TestCartServiceAddProductReservesIntoCart(t *testing.T) {
	now := time.Date(2026, 5, 12, 15, 0, 0, 0, time.UTC)
	var addedUser, addedProduct string

	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID}, nil
		},
		addFunc: func(ctx context.Context, userID string, productID string, at time.Time) (domain.Cart, error) {
			addedUser, addedProduct = userID, productID
			return domain.Cart{ID: userID, UserID: userID, ProductIDs: []string{productID}, UpdatedAt: at}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.AddProduct(context.Background(), CartProductCommand{UserID: "user-1", ProductID: "prod_9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addedUser != "user-1" || addedProduct != "prod_9" {
		t.Fatalf("unexpected add call user=%q product=%q", addedUser, addedProduct)
	}
	if !cart.Contains("prod_9") {
		t.Fatalf("expected product in cart")
	}
}

func TestCartServiceAddProductNotAvailable(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID}, nil
		},
		addFunc: func(ctx context.Context, userID string, productID string, at time.Time) (domain.Cart, error) {
			return domain.Cart{}, repositories.NewProductError(repositories.ProductErrorInvalidState, "product prod_9 is reserved, expected available", nil)
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddProduct(context.Background(), CartProductCommand{UserID: "user-1", ProductID: "prod_9"})
	if !errors.Is(err, ErrCartProductNotAvailable) {
		t.Fatalf("expected ErrCartProductNotAvailable, got %v", err)
	}
}

func TestCartServiceAddProductMissingProduct(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID}, nil
		},
		addFunc: func(ctx context.Context, userID string, productID string, at time.Time) (domain.Cart, error) {
			return domain.Cart{}, repositories.NewProductError(repositories.ProductErrorNotFound, "product prod_9 not found", nil)
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddProduct(context.Background(), CartProductCommand{UserID: "user-1", ProductID: "prod_9"})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCartServiceRemoveProductNotInCart(t *testing.T) {
	repo := &stubCartRepository{
		removeFunc: func(ctx context.Context, userID string, productID string, at time.Time) (domain.Cart, error) {
			return domain.Cart{}, repositories.NewCartError(repositories.CartErrorProductNotInCart, "product prod_9 is not in the cart", nil)
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.RemoveProduct(context.Background(), CartProductCommand{UserID: "user-1", ProductID: "prod_9"})
	if !errors.Is(err, ErrCartProductNotInCart) {
		t.Fatalf("expected ErrCartProductNotInCart, got %v", err)
	}
}

func TestCartServiceClearCartReleasesProducts(t *testing.T) {
	now := time.Date(2026, 5, 13, 8, 0, 0, 0, time.UTC)
	var clearedUser string
	var clearedRelease bool

	repo := &stubCartRepository{
		clearFunc: func(ctx context.Context, userID string, release bool, at time.Time) (domain.Cart, error) {
			clearedUser, clearedRelease = userID, release
			return domain.Cart{ID: userID, UserID: userID, ProductIDs: []string{}, UpdatedAt: at}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.ClearCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clearedUser != "user-1" {
		t.Fatalf("unexpected user %q", clearedUser)
	}
	if !clearedRelease {
		t.Fatalf("expected clear to release reservations")
	}
	if len(cart.ProductIDs) != 0 {
		t.Fatalf("expected empty cart")
	}
}

func TestCartServiceReleaseExpiredSweepsIdleCarts(t *testing.T) {
	now := time.Date(2026, 5, 14, 3, 0, 0, 0, time.UTC)
	ttl := 24 * time.Hour

	var gotCutoff time.Time
	cleared := map[string]bool{}

	repo := &stubCartRepository{
		listIdleFunc: func(ctx context.Context, updatedBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.Cart], error) {
			gotCutoff = updatedBefore
			return domain.CursorPage[domain.Cart]{Items: []domain.Cart{
				{ID: "user-a", UserID: "user-a", ProductIDs: []string{"prod_1", "prod_2"}},
				{ID: "user-b", UserID: "user-b", ProductIDs: []string{"prod_3"}},
			}}, nil
		},
		clearFunc: func(ctx context.Context, userID string, release bool, at time.Time) (domain.Cart, error) {
			if !release {
				t.Fatalf("sweep must release reservations")
			}
			if userID == "user-b" {
				return domain.Cart{}, &repositoryErrorStub{conflict: true}
			}
			cleared[userID] = true
			return domain.Cart{ID: userID, UserID: userID, ProductIDs: []string{}}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository:     repo,
		Clock:          func() time.Time { return now },
		ReservationTTL: ttl,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	result, err := service.ReleaseExpired(context.Background(), ReleaseExpiredCommand{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := now.Add(-ttl); !gotCutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, gotCutoff)
	}
	if !cleared["user-a"] {
		t.Fatalf("expected user-a cart cleared")
	}
	if result.CartsSwept != 1 {
		t.Fatalf("expected 1 cart swept, got %d", result.CartsSwept)
	}
	if result.ProductsReleased != 2 {
		t.Fatalf("expected 2 products released, got %d", result.ProductsReleased)
	}
}

func TestCartServiceReleaseExpiredSkipsPendingConversions(t *testing.T) {
	now := time.Date(2026, 5, 14, 3, 0, 0, 0, time.UTC)

	cleared := map[string]bool{}
	repo := &stubCartRepository{
		listIdleFunc: func(ctx context.Context, updatedBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.Cart], error) {
			return domain.CursorPage[domain.Cart]{Items: []domain.Cart{
				{ID: "user-a", UserID: "user-a", ProductIDs: []string{"prod_1"}},
				{ID: "user-b", UserID: "user-b", ProductIDs: []string{"prod_2"}},
				{ID: "user-c", UserID: "user-c", ProductIDs: []string{"prod_3"}},
			}}, nil
		},
		clearFunc: func(ctx context.Context, userID string, release bool, at time.Time) (domain.Cart, error) {
			if userID == "user-a" {
				t.Fatalf("cart with a pending conversion must not be swept")
			}
			cleared[userID] = true
			return domain.Cart{ID: userID, UserID: userID, ProductIDs: []string{}}, nil
		},
	}
	intents := &stubIntentRepository{
		findFunc: func(ctx context.Context, cartID string) (domain.CheckoutIntent, error) {
			switch cartID {
			case "user-a":
				return domain.CheckoutIntent{ID: cartID, CartID: cartID, Status: domain.CheckoutIntentStatusPending}, nil
			case "user-b":
				return domain.CheckoutIntent{ID: cartID, CartID: cartID, Status: domain.CheckoutIntentStatusCompleted}, nil
			default:
				return domain.CheckoutIntent{}, &repositoryErrorStub{notFound: true}
			}
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Intents:    intents,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	result, err := service.ReleaseExpired(context.Background(), ReleaseExpiredCommand{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cleared["user-b"] || !cleared["user-c"] {
		t.Fatalf("expected carts without a pending conversion swept, got %v", cleared)
	}
	if result.CartsSwept != 2 {
		t.Fatalf("expected 2 carts swept, got %d", result.CartsSwept)
	}
	if result.ProductsReleased != 2 {
		t.Fatalf("expected 2 products released, got %d", result.ProductsReleased)
	}
}

type stubCartRepository struct {
	getFunc      func(ctx context.Context, userID string) (domain.Cart, error)
	upsertFunc   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	addFunc      func(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error)
	removeFunc   func(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error)
	clearFunc    func(ctx context.Context, userID string, release bool, now time.Time) (domain.Cart, error)
	listIdleFunc func(ctx context.Context, updatedBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.Cart], error)
}

func (s *stubCartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{}, &repositoryErrorStub{notFound: true}
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) AddProduct(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, userID, productID, now)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) RemoveProduct(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, userID, productID, now)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) Clear(ctx context.Context, userID string, release bool, now time.Time) (domain.Cart, error) {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID, release, now)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) ListIdle(ctx context.Context, updatedBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.Cart], error) {
	if s.listIdleFunc != nil {
		return s.listIdleFunc(ctx, updatedBefore, pager)
	}
	return domain.CursorPage[domain.Cart]{}, nil
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}
