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
	errOrderRepositoryRequired = errors.New("order service: repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderConflict indicates the order could not be updated due to concurrent modifications.
var ErrOrderConflict = errors.New("order service: conflict")

// ErrOrderIllegalTransition indicates the requested status is not the
// immediate successor of the current status.
var ErrOrderIllegalTransition = errors.New("order service: illegal status transition")

// ErrOrderUnavailable indicates the order backend cannot fulfil the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// orderStatusSuccessor encodes the strictly forward fulfillment chain. Each
// status has at most one legal next status and there is no cancellation.
var orderStatusSuccessor = map[domain.OrderStatus]domain.OrderStatus{
	domain.OrderStatusPendingPayment: domain.OrderStatusPaid,
	domain.OrderStatusPaid:           domain.OrderStatusShipped,
	domain.OrderStatusShipped:        domain.OrderStatusDelivered,
}

// OrderServiceDeps wires the repositories and collaborators for order operations.
type OrderServiceDeps struct {
	Repository repositories.OrderRepository
	Events     OrderEventPublisher
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type orderService struct {
	repo   repositories.OrderRepository
	events OrderEventPublisher
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		repo:   deps.Repository,
		events: deps.Events,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

// GetOrder loads a single order by ID.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// ListOrders returns a filtered order page, newest first.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if filter.Status != nil && !isKnownOrderStatus(*filter.Status) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, *filter.Status)
	}
	if filter.Pagination.PageSize < 0 {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: page size must not be negative", ErrOrderInvalidInput)
	}

	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// TransitionStatus advances the order by exactly one fulfillment step. The
// target must be the immediate successor of the stored status; repeating the
// current status is rejected like any other illegal transition. Lifecycle
// timestamps are written on first entry into a status and never overwritten.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !isKnownOrderStatus(cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	successor, ok := orderStatusSuccessor[order.Status]
	if !ok || successor != cmd.TargetStatus {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, order.Status, cmd.TargetStatus)
	}

	now := s.now()
	expectedUpdatedAt := order.UpdatedAt
	order.Status = cmd.TargetStatus
	applyStatusTimestamp(&order, cmd.TargetStatus, now)
	order.UpdatedAt = now

	updated, err := s.repo.Update(ctx, order, expectedUpdatedAt)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"order":  updated.ID,
		"status": string(updated.Status),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:        "order.status.changed",
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		UserID:      updated.UserID,
		Status:      string(updated.Status),
		OccurredAt:  now,
	})
	return updated, nil
}

// applyStatusTimestamp records the first entry into a fulfillment status.
func applyStatusTimestamp(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &now
		}
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &now
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	}
}

func isKnownOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPendingPayment, domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusDelivered:
		return true
	default:
		return false
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}
