package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SrAngelDev/CamisApi-sub000/internal/platform/requestctx"
	"github.com/SrAngelDev/CamisApi-sub000/internal/services"
)

func withCaller(req *http.Request, userID string) *http.Request {
	return req.WithContext(requestctx.WithUserID(req.Context(), userID))
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)

	service := &stubCartService{
		getOrCreateFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.Cart{
				ID:         "user-7",
				UserID:     "user-7",
				ProductIDs: []string{"prod_a", "prod_b"},
				CreatedAt:  now,
				UpdatedAt:  now.Add(time.Minute),
			}, nil
		},
	}

	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := withCaller(httptest.NewRequest(http.MethodGet, "/cart", nil), "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.ID != "user-7" {
		t.Fatalf("expected cart id user-7, got %q", resp.Cart.ID)
	}
	if resp.Cart.ItemsCount != 2 || len(resp.Cart.ProductIDs) != 2 {
		t.Fatalf("expected 2 products, got %+v", resp.Cart)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	handler := NewCartHandlers(&stubCartService{})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersGetCartServiceUnavailable(t *testing.T) {
	handler := NewCartHandlers(nil)
	req := withCaller(httptest.NewRequest(http.MethodGet, "/cart", nil), "user-1")
	rr := httptest.NewRecorder()
	handler.getCart(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemSuccess(t *testing.T) {
	var captured services.CartProductCommand
	service := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{ID: cmd.UserID, UserID: cmd.UserID, ProductIDs: []string{cmd.ProductID}}, nil
		},
	}

	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := withCaller(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"prod_9"}`)), "user-1")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.UserID != "user-1" || captured.ProductID != "prod_9" {
		t.Fatalf("unexpected command captured %#v", captured)
	}
}

func TestCartHandlersAddItemMissingProductID(t *testing.T) {
	handler := NewCartHandlers(&stubCartService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := withCaller(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"  "}`)), "user-1")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemNotAvailable(t *testing.T) {
	service := &stubCartService{
		addFunc: func(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartProductNotAvailable
		},
	}

	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := withCaller(httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"productId":"prod_1"}`)), "user-1")
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "product_not_available") {
		t.Fatalf("expected product_not_available code, got %s", rr.Body.String())
	}
}

func TestCartHandlersRemoveItemNotInCart(t *testing.T) {
	service := &stubCartService{
		removeFunc: func(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartProductNotInCart
		},
	}

	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := withCaller(httptest.NewRequest(http.MethodDelete, "/cart/items/prod_5", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "product_not_in_cart") {
		t.Fatalf("expected product_not_in_cart code, got %s", rr.Body.String())
	}
}

func TestCartHandlersClearCartSuccess(t *testing.T) {
	service := &stubCartService{
		clearFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			return services.Cart{ID: userID, UserID: userID, ProductIDs: []string{}}, nil
		},
	}

	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := withCaller(httptest.NewRequest(http.MethodDelete, "/cart", nil), "user-4")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.ItemsCount != 0 {
		t.Fatalf("expected empty cart, got %+v", resp.Cart)
	}
}

type stubCartService struct {
	getOrCreateFunc    func(ctx context.Context, userID string) (services.Cart, error)
	addFunc            func(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error)
	removeFunc         func(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error)
	clearFunc          func(ctx context.Context, userID string) (services.Cart, error)
	releaseExpiredFunc func(ctx context.Context, cmd services.ReleaseExpiredCommand) (services.ReleaseExpiredResult, error)
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getOrCreateFunc != nil {
		return s.getOrCreateFunc(ctx, userID)
	}
	return services.Cart{}, services.ErrCartUnavailable
}

func (s *stubCartService) AddProduct(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveProduct(ctx context.Context, cmd services.CartProductCommand) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ReleaseExpired(ctx context.Context, cmd services.ReleaseExpiredCommand) (services.ReleaseExpiredResult, error) {
	if s.releaseExpiredFunc != nil {
		return s.releaseExpiredFunc(ctx, cmd)
	}
	return services.ReleaseExpiredResult{}, errors.New("not implemented")
}
