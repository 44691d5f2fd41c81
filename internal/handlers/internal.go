package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
	"github.com/SrAngelDev/CamisApi-sub000/internal/platform/httpx"
	"github.com/SrAngelDev/CamisApi-sub000/internal/services"
)

const maxInternalBodySize = 8 * 1024

// InternalHandlers exposes operator endpoints: scheduler-driven maintenance
// (checkout reconciler, reservation sweep) and the cross-user order listing
// fulfillment staff use to find orders in a given status.
type InternalHandlers struct {
	checkout services.CheckoutService
	carts    services.CartService
	orders   services.OrderService
}

// InternalHandlersOption customises the internal handlers.
type InternalHandlersOption func(*InternalHandlers)

// WithOperatorOrderListing enables the cross-user order listing backed by the
// provided order service.
func WithOperatorOrderListing(orders services.OrderService) InternalHandlersOption {
	return func(h *InternalHandlers) {
		h.orders = orders
	}
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(checkout services.CheckoutService, carts services.CartService, opts ...InternalHandlersOption) *InternalHandlers {
	h := &InternalHandlers{checkout: checkout, carts: carts}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout:reconcile", h.reconcile)
	r.Post("/reservations:sweep", h.sweep)
	r.Get("/orders", h.listOrders)
}

type reconcileRequest struct {
	OlderThan string `json:"olderThan"`
	Limit     int    `json:"limit"`
}

type reconcileResponse struct {
	IntentsExamined  int `json:"intentsExamined"`
	IntentsCompleted int `json:"intentsCompleted"`
	IntentsDropped   int `json:"intentsDropped"`
	IntentsFailed    int `json:"intentsFailed"`
}

type sweepRequest struct {
	IdleFor string `json:"idleFor"`
	Limit   int    `json:"limit"`
}

type sweepResponse struct {
	CartsSwept       int `json:"cartsSwept"`
	ProductsReleased int `json:"productsReleased"`
}

func (h *InternalHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var cmd services.ReconcileCommand
	req, ok := decodeOptionalBody[reconcileRequest](ctx, w, r)
	if !ok {
		return
	}
	if req != nil {
		olderThan, err := parseOptionalDuration(req.OlderThan)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "olderThan must be a duration", http.StatusBadRequest))
			return
		}
		cmd.OlderThan = olderThan
		cmd.Limit = req.Limit
	}

	result, err := h.checkout.Reconcile(ctx, cmd)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconcile_failed", "reconciliation run failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, reconcileResponse{
		IntentsExamined:  result.IntentsExamined,
		IntentsCompleted: result.IntentsCompleted,
		IntentsDropped:   result.IntentsDropped,
		IntentsFailed:    result.IntentsFailed,
	})
}

func (h *InternalHandlers) sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var cmd services.ReleaseExpiredCommand
	req, ok := decodeOptionalBody[sweepRequest](ctx, w, r)
	if !ok {
		return
	}
	if req != nil {
		idleFor, err := parseOptionalDuration(req.IdleFor)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "idleFor must be a duration", http.StatusBadRequest))
			return
		}
		cmd.IdleFor = idleFor
		cmd.Limit = req.Limit
	}

	result, err := h.carts.ReleaseExpired(ctx, cmd)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("sweep_failed", "reservation sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, sweepResponse{
		CartsSwept:       result.CartsSwept,
		ProductsReleased: result.ProductsReleased,
	})
}

// listOrders serves the operator view across all users, typically filtered by
// status (for example every paid order awaiting shipment). Unlike the public
// listing it never pins the filter to a caller.
func (h *InternalHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{Pagination: pager}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		switch status {
		case domain.OrderStatusPendingPayment, domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered:
			filter.Status = &status
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status", http.StatusBadRequest))
			return
		}
	}
	if userID := strings.TrimSpace(r.URL.Query().Get("userId")); userID != "" {
		filter.UserID = &userID
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrOrderUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("order_error", "order listing failed", http.StatusInternalServerError))
		}
		return
	}

	payload := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// decodeOptionalBody parses the request body when present. A missing body is
// fine for these endpoints; a malformed one is rejected.
func decodeOptionalBody[T any](ctx context.Context, w http.ResponseWriter, r *http.Request) (*T, bool) {
	body, err := readLimitedBody(r, maxInternalBodySize)
	if err != nil {
		if errors.Is(err, errEmptyBody) {
			return nil, true
		}
		writeBodyError(ctx, w, err)
		return nil, false
	}
	var req T
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return nil, false
	}
	return &req, true
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
