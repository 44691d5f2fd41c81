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
	errCatalogRepositoryRequired = errors.New("catalog service: repository is required")
	errCatalogClockRequired      = errors.New("catalog service: clock is required")
)

const productIDPrefix = "prod_"

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("catalog service: product not found")

// ErrProductInvalidState indicates the stored product state forbids the requested transition.
var ErrProductInvalidState = errors.New("catalog service: invalid product state")

// CatalogServiceDeps wires the repository dependencies for catalog operations.
type CatalogServiceDeps struct {
	Repository  repositories.ProductRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type catalogService struct {
	repo   repositories.ProductRepository
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCatalogClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &catalogService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// GetProduct loads a single product by ID.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

// ListProducts returns a filtered catalog page.
func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	if filter.State != nil {
		switch *filter.State {
		case domain.ProductStateAvailable, domain.ProductStateReserved, domain.ProductStateSold:
		default:
			return domain.CursorPage[Product]{}, fmt.Errorf("%w: unknown product state %q", ErrCatalogInvalidInput, *filter.State)
		}
	}
	if filter.Pagination.PageSize < 0 {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: page size must not be negative", ErrCatalogInvalidInput)
	}

	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// SaveProduct creates or updates a catalog entry. New products start available;
// updating never touches the state machine.
func (s *catalogService) SaveProduct(ctx context.Context, cmd SaveProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	team := strings.TrimSpace(cmd.Team)
	size := strings.TrimSpace(cmd.Size)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if team == "" {
		return Product{}, fmt.Errorf("%w: team is required", ErrCatalogInvalidInput)
	}
	if size == "" {
		return Product{}, fmt.Errorf("%w: size is required", ErrCatalogInvalidInput)
	}
	if cmd.Price <= 0 {
		return Product{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}

	now := s.now()
	product := Product{
		ID:          strings.TrimSpace(cmd.ProductID),
		Name:        name,
		Team:        team,
		Size:        size,
		Description: strings.TrimSpace(cmd.Description),
		Price:       cmd.Price,
		ImagePath:   strings.TrimSpace(cmd.ImagePath),
		UpdatedAt:   now,
	}

	if product.ID == "" {
		product.ID = productIDPrefix + s.newID()
		product.State = domain.ProductStateAvailable
		product.CreatedAt = now
	} else {
		existing, err := s.repo.FindByID(ctx, product.ID)
		switch {
		case err == nil:
			product.State = existing.State
			product.CreatedAt = existing.CreatedAt
		case isRepoNotFound(err):
			product.State = domain.ProductStateAvailable
			product.CreatedAt = now
		default:
			return Product{}, s.mapRepositoryError(err)
		}
	}

	saved, err := s.repo.Save(ctx, product)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.saved", map[string]any{
		"product": saved.ID,
		"state":   string(saved.State),
	})
	return saved, nil
}

// Reserve moves an available product to reserved.
func (s *catalogService) Reserve(ctx context.Context, productID string) (Product, error) {
	return s.transition(ctx, productID, domain.ProductStateAvailable, domain.ProductStateReserved)
}

// Release moves a reserved product back to available.
func (s *catalogService) Release(ctx context.Context, productID string) (Product, error) {
	return s.transition(ctx, productID, domain.ProductStateReserved, domain.ProductStateAvailable)
}

// MarkSold moves a reserved product to its terminal sold state.
func (s *catalogService) MarkSold(ctx context.Context, productID string) (Product, error) {
	return s.transition(ctx, productID, domain.ProductStateReserved, domain.ProductStateSold)
}

func (s *catalogService) transition(ctx context.Context, productID string, from, to domain.ProductState) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.repo.Transition(ctx, productID, from, to, s.now())
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "catalog.product.transitioned", map[string]any{
		"product": product.ID,
		"from":    string(from),
		"to":      string(to),
	})
	return product, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var productErr *repositories.ProductError
	if errors.As(err, &productErr) {
		switch productErr.Code {
		case repositories.ProductErrorNotFound:
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repositories.ProductErrorInvalidState:
			return fmt.Errorf("%w: %v", ErrProductInvalidState, err)
		case repositories.ProductErrorInvalidInput:
			return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrProductInvalidState, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}

func isRepoNotFound(err error) bool {
	var productErr *repositories.ProductError
	if errors.As(err, &productErr) && productErr.Code == repositories.ProductErrorNotFound {
		return true
	}
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
