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

const checkoutIntentsCollection = "checkoutIntents"

type checkoutIntentDocument struct {
	CartID     string    `firestore:"cartId"`
	UserID     string    `firestore:"userId"`
	OrderID    string    `firestore:"orderId"`
	ProductIDs []string  `firestore:"productIds"`
	Status     string    `firestore:"status"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newCheckoutIntentDocument(intent domain.CheckoutIntent) checkoutIntentDocument {
	ids := intent.ProductIDs
	if ids == nil {
		ids = []string{}
	}
	return checkoutIntentDocument{
		CartID:     intent.CartID,
		UserID:     intent.UserID,
		OrderID:    intent.OrderID,
		ProductIDs: ids,
		Status:     string(intent.Status),
		CreatedAt:  intent.CreatedAt.UTC(),
		UpdatedAt:  intent.UpdatedAt.UTC(),
	}
}

func (d checkoutIntentDocument) toDomain(id string) domain.CheckoutIntent {
	ids := d.ProductIDs
	if ids == nil {
		ids = []string{}
	}
	return domain.CheckoutIntent{
		ID:         id,
		CartID:     d.CartID,
		UserID:     d.UserID,
		OrderID:    d.OrderID,
		ProductIDs: ids,
		Status:     domain.CheckoutIntentStatus(d.Status),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// CheckoutIntentRepository implements repositories.CheckoutIntentRepository
// backed by Firestore. Intents are keyed by cart ID, so the create
// precondition serialises conversions per cart.
type CheckoutIntentRepository struct {
	provider *pfirestore.Provider
	intents  *pfirestore.BaseRepository[checkoutIntentDocument]
}

// NewCheckoutIntentRepository constructs a Firestore-backed intent repository.
func NewCheckoutIntentRepository(provider *pfirestore.Provider) (*CheckoutIntentRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout intent repository requires firestore provider")
	}
	return &CheckoutIntentRepository{
		provider: provider,
		intents:  pfirestore.NewBaseRepository[checkoutIntentDocument](provider, checkoutIntentsCollection),
	}, nil
}

// Create writes a new intent. A pending intent for the cart means a
// conversion is in flight or unreconciled and fails with a conflict; a
// completed intent from an earlier conversion is replaced so the cart can be
// converted again.
func (r *CheckoutIntentRepository) Create(ctx context.Context, intent domain.CheckoutIntent) error {
	if r == nil || r.intents == nil {
		return errors.New("checkout intent repository not initialised")
	}
	id := strings.TrimSpace(intent.ID)
	if id == "" {
		id = strings.TrimSpace(intent.CartID)
	}
	if id == "" {
		return pfirestore.NewConflict("intent.create", errors.New("cart id is required"))
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.intents.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			return tx.Create(ref, newCheckoutIntentDocument(intent))
		}
		doc, err := r.intents.Decode(snap)
		if err != nil {
			return err
		}
		if doc.Data.Status == string(domain.CheckoutIntentStatusPending) {
			return pfirestore.NewConflict("intent.create",
				fmt.Errorf("conversion pending for cart %s", id))
		}
		return tx.Set(ref, newCheckoutIntentDocument(intent))
	})
}

// FindByCart fetches the intent for a cart, if any.
func (r *CheckoutIntentRepository) FindByCart(ctx context.Context, cartID string) (domain.CheckoutIntent, error) {
	if r == nil || r.intents == nil {
		return domain.CheckoutIntent{}, errors.New("checkout intent repository not initialised")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return domain.CheckoutIntent{}, pfirestore.NewNotFound("intent.get", errors.New("cart id is required"))
	}
	doc, err := r.intents.Get(ctx, cartID)
	if err != nil {
		return domain.CheckoutIntent{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Complete marks the intent as completed.
func (r *CheckoutIntentRepository) Complete(ctx context.Context, cartID string, now time.Time) error {
	if r == nil || r.intents == nil {
		return errors.New("checkout intent repository not initialised")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return pfirestore.NewNotFound("intent.complete", errors.New("cart id is required"))
	}
	return r.intents.Update(ctx, cartID, []firestore.Update{
		{Path: "status", Value: string(domain.CheckoutIntentStatusCompleted)},
		{Path: "updatedAt", Value: now.UTC()},
	})
}

// Delete removes the intent. Deleting a missing intent is not an error.
func (r *CheckoutIntentRepository) Delete(ctx context.Context, cartID string) error {
	if r == nil || r.intents == nil {
		return errors.New("checkout intent repository not initialised")
	}
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil
	}
	return r.intents.Delete(ctx, cartID)
}

// ListPending pages through pending intents created before the cutoff, oldest
// first. These are the reconciliation targets.
func (r *CheckoutIntentRepository) ListPending(ctx context.Context, createdBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.CheckoutIntent], error) {
	if r == nil || r.intents == nil {
		return domain.CursorPage[domain.CheckoutIntent]{}, errors.New("checkout intent repository not initialised")
	}

	limit := pager.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.CheckoutIntent]{}, fmt.Errorf("checkout intent repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.intents.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.CheckoutIntentStatusPending)).
			Where("createdAt", "<", createdBefore.UTC()).
			OrderBy("createdAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.CheckoutIntent]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.CheckoutIntent, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.CheckoutIntent]{Items: items, NextPageToken: nextToken}, nil
}
