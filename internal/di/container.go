package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SrAngelDev/CamisApi-sub000/internal/platform/config"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
	"github.com/SrAngelDev/CamisApi-sub000/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled via dependency injection in
// NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Cart     services.CartService
	Orders   services.OrderService
	Checkout services.CheckoutService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerDeps carries the externally constructed dependencies.
type ContainerDeps struct {
	Registry repositories.Registry
	// Events may be nil when lifecycle publishing is disabled.
	Events services.OrderEventPublisher
	Logger *zap.Logger
}

// NewContainer constructs the runtime dependencies. Production wiring
// provides the Firestore registry; tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(deps.Registry, cfg, deps.Events, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, events services.OrderEventPublisher, logger *zap.Logger) (Services, error) {
	var svc Services

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: reg.Products(),
		Clock:      time.Now,
		Logger:     serviceLogger(logger, "catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	cart, err := services.NewCartService(services.CartServiceDeps{
		Repository:     reg.Carts(),
		Intents:        reg.CheckoutIntents(),
		Clock:          time.Now,
		Logger:         serviceLogger(logger, "cart"),
		ReservationTTL: cfg.Checkout.ReservationTTL,
		SweepBatchSize: cfg.Checkout.SweepBatchSize,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Repository: reg.Orders(),
		Events:     events,
		Clock:      time.Now,
		Logger:     serviceLogger(logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:          reg.Carts(),
		Products:       reg.Products(),
		Orders:         reg.Orders(),
		Intents:        reg.CheckoutIntents(),
		Counters:       reg.Counters(),
		Events:         events,
		Clock:          time.Now,
		Logger:         serviceLogger(logger, "checkout"),
		ReconcileGrace: cfg.Checkout.ReconcileGrace,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	return svc, nil
}

func serviceLogger(logger *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	named := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		named.Info("service event", zFields...)
	}
}
