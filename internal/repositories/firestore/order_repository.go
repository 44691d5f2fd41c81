package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/SrAngelDev/CamisApi-sub000/internal/domain"
	pfirestore "github.com/SrAngelDev/CamisApi-sub000/internal/platform/firestore"
)

const ordersCollection = "orders"

type orderAddressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Phone      *string `firestore:"phone,omitempty"`
}

type orderLineDocument struct {
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	Team       string `firestore:"team"`
	Size       string `firestore:"size"`
	ImagePath  string `firestore:"imagePath,omitempty"`
	PricePaid  int64  `firestore:"pricePaid"`
}

type orderDocument struct {
	OrderNumber     string               `firestore:"orderNumber"`
	UserID          string               `firestore:"userId"`
	CartRef         *string              `firestore:"cartRef,omitempty"`
	Status          string               `firestore:"status"`
	ShippingAddress orderAddressDocument `firestore:"shippingAddress"`
	Total           int64                `firestore:"total"`
	Lines           []orderLineDocument  `firestore:"lines"`
	CreatedAt       time.Time            `firestore:"createdAt"`
	UpdatedAt       time.Time            `firestore:"updatedAt"`
	PlacedAt        *time.Time           `firestore:"placedAt,omitempty"`
	PaidAt          *time.Time           `firestore:"paidAt,omitempty"`
	ShippedAt       *time.Time           `firestore:"shippedAt,omitempty"`
	DeliveredAt     *time.Time           `firestore:"deliveredAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductRef: line.ProductRef,
			Name:       line.Name,
			Team:       line.Team,
			Size:       line.Size,
			ImagePath:  line.ImagePath,
			PricePaid:  line.PricePaid,
		})
	}
	return orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		CartRef:     order.CartRef,
		Status:      string(order.Status),
		ShippingAddress: orderAddressDocument{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      order.ShippingAddress.Phone,
		},
		Total:       order.Total,
		Lines:       lines,
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		PlacedAt:    order.PlacedAt,
		PaidAt:      order.PaidAt,
		ShippedAt:   order.ShippedAt,
		DeliveredAt: order.DeliveredAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.OrderLine{
			ProductRef: line.ProductRef,
			Name:       line.Name,
			Team:       line.Team,
			Size:       line.Size,
			ImagePath:  line.ImagePath,
			PricePaid:  line.PricePaid,
		})
	}
	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		CartRef:     d.CartRef,
		Status:      domain.OrderStatus(d.Status),
		ShippingAddress: domain.Address{
			Recipient:  d.ShippingAddress.Recipient,
			Line1:      d.ShippingAddress.Line1,
			Line2:      d.ShippingAddress.Line2,
			City:       d.ShippingAddress.City,
			State:      d.ShippingAddress.State,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
			Phone:      d.ShippingAddress.Phone,
		},
		Total:       d.Total,
		Lines:       lines,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		PlacedAt:    d.PlacedAt,
		PaidAt:      d.PaidAt,
		ShippedAt:   d.ShippedAt,
		DeliveredAt: d.DeliveredAt,
	}
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document, failing with a conflict when the ID is
// already taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return pfirestore.NewConflict("order.insert", errors.New("order id is required"))
	}
	return r.orders.Create(ctx, id, newOrderDocument(order))
}

// Update rewrites the order document inside a transaction, failing with a
// conflict when the stored updatedAt no longer matches the expected one.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedUpdatedAt time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return domain.Order{}, pfirestore.NewNotFound("order.update", errors.New("order id is required"))
	}

	var result domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.NewNotFound("order.update", fmt.Errorf("order %s not found", id))
			}
			return err
		}
		doc, err := r.orders.Decode(snap)
		if err != nil {
			return err
		}
		if !doc.Data.UpdatedAt.Equal(expectedUpdatedAt.UTC()) {
			return pfirestore.NewConflict("order.update", fmt.Errorf("order %s changed concurrently", id))
		}
		if err := tx.Set(ref, newOrderDocument(order)); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return result, nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, pfirestore.NewNotFound("order.get", errors.New("order id is required"))
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns an order page, newest first, optionally filtered by owner and
// status.
func (r *OrderRepository) List(ctx context.Context, filter domain.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.orders == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != nil {
			if userID := strings.TrimSpace(*filter.UserID); userID != "" {
				q = q.Where("userId", "==", userID)
			}
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Order]{Items: items, NextPageToken: nextToken}, nil
}
