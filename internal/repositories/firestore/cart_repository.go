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
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
)

const cartsCollection = "carts"

type cartDocument struct {
	UserID     string    `firestore:"userId"`
	ProductIDs []string  `firestore:"productIds"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	ids := cart.ProductIDs
	if ids == nil {
		ids = []string{}
	}
	return cartDocument{
		UserID:     cart.UserID,
		ProductIDs: ids,
		CreatedAt:  cart.CreatedAt.UTC(),
		UpdatedAt:  cart.UpdatedAt.UTC(),
	}
}

func (d cartDocument) toDomain(id string) domain.Cart {
	ids := d.ProductIDs
	if ids == nil {
		ids = []string{}
	}
	return domain.Cart{
		ID:         id,
		UserID:     d.UserID,
		ProductIDs: ids,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// CartRepository implements repositories.CartRepository backed by Firestore.
// It owns the transactional cart/product pair mutations so a reservation and
// its cart reference always change together.
type CartRepository struct {
	provider *pfirestore.Provider
	carts    *pfirestore.BaseRepository[cartDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// GetCart fetches a user's cart document.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, repositories.NewCartError(repositories.CartErrorUnknown, "user id is required", nil)
	}
	doc, err := r.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpsertCart writes the cart document keyed by user ID.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		id = strings.TrimSpace(cart.UserID)
	}
	if id == "" {
		return domain.Cart{}, repositories.NewCartError(repositories.CartErrorUnknown, "cart id is required", nil)
	}
	cart.ID = id
	if err := r.carts.Set(ctx, id, newCartDocument(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// AddProduct reserves an available product and appends it to the cart in one
// transaction. Re-adding a product the cart already holds is a no-op. The
// cart document is created on first use.
func (r *CartRepository) AddProduct(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return domain.Cart{}, repositories.NewCartError(repositories.CartErrorUnknown, "user id and product id are required", nil)
	}

	now = now.UTC()
	var result domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, err := r.carts.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		cart, cartExists, err := r.readCart(tx, cartRef, userID, now)
		if err != nil {
			return err
		}

		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		product, err := r.readProduct(tx, productRef, productID)
		if err != nil {
			return err
		}

		if containsString(cart.ProductIDs, productID) {
			result = cart.toDomain(userID)
			return nil
		}
		if product.State != string(domain.ProductStateAvailable) {
			return repositories.NewProductError(repositories.ProductErrorInvalidState,
				fmt.Sprintf("product %s is %s, expected %s", productID, product.State, domain.ProductStateAvailable), nil)
		}

		product.State = string(domain.ProductStateReserved)
		product.UpdatedAt = now
		if err := tx.Set(productRef, product); err != nil {
			return err
		}

		cart.ProductIDs = append(cart.ProductIDs, productID)
		cart.UpdatedAt = now
		if !cartExists {
			cart.CreatedAt = now
		}
		if err := tx.Set(cartRef, cart); err != nil {
			return err
		}
		result = cart.toDomain(userID)
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return result, nil
}

// RemoveProduct releases the product back to available and drops its cart
// reference in one transaction.
func (r *CartRepository) RemoveProduct(ctx context.Context, userID string, productID string, now time.Time) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	productID = strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return domain.Cart{}, repositories.NewCartError(repositories.CartErrorUnknown, "user id and product id are required", nil)
	}

	now = now.UTC()
	var result domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, err := r.carts.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		cart, cartExists, err := r.readCart(tx, cartRef, userID, now)
		if err != nil {
			return err
		}
		if !cartExists {
			return repositories.NewCartError(repositories.CartErrorNotFound,
				fmt.Sprintf("cart for user %s not found", userID), nil)
		}
		if !containsString(cart.ProductIDs, productID) {
			return repositories.NewCartError(repositories.CartErrorProductNotInCart,
				fmt.Sprintf("product %s is not in the cart", productID), nil)
		}

		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		product, err := r.readProduct(tx, productRef, productID)
		if err != nil {
			return err
		}
		if product.State == string(domain.ProductStateReserved) {
			product.State = string(domain.ProductStateAvailable)
			product.UpdatedAt = now
			if err := tx.Set(productRef, product); err != nil {
				return err
			}
		}

		cart.ProductIDs = removeString(cart.ProductIDs, productID)
		cart.UpdatedAt = now
		if err := tx.Set(cartRef, cart); err != nil {
			return err
		}
		result = cart.toDomain(userID)
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return result, nil
}

// Clear empties the cart. With release set, each reserved product moves back
// to available in the same transaction; without it product states stay
// untouched, which the checkout coordinator relies on after a sale.
func (r *CartRepository) Clear(ctx context.Context, userID string, release bool, now time.Time) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, repositories.NewCartError(repositories.CartErrorUnknown, "user id is required", nil)
	}

	now = now.UTC()
	var result domain.Cart
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cartRef, err := r.carts.DocumentRef(ctx, userID)
		if err != nil {
			return err
		}
		cart, cartExists, err := r.readCart(tx, cartRef, userID, now)
		if err != nil {
			return err
		}
		if !cartExists {
			return repositories.NewCartError(repositories.CartErrorNotFound,
				fmt.Sprintf("cart for user %s not found", userID), nil)
		}

		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		var writes []pendingWrite
		if release {
			for _, productID := range cart.ProductIDs {
				productRef, err := r.products.DocumentRef(ctx, productID)
				if err != nil {
					return err
				}
				product, err := r.readProduct(tx, productRef, productID)
				if err != nil {
					var productErr *repositories.ProductError
					if errors.As(err, &productErr) && productErr.Code == repositories.ProductErrorNotFound {
						continue
					}
					return err
				}
				if product.State != string(domain.ProductStateReserved) {
					continue
				}
				product.State = string(domain.ProductStateAvailable)
				product.UpdatedAt = now
				writes = append(writes, pendingWrite{ref: productRef, doc: product})
			}
		}

		for _, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		cart.ProductIDs = []string{}
		cart.UpdatedAt = now
		if err := tx.Set(cartRef, cart); err != nil {
			return err
		}
		result = cart.toDomain(userID)
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return result, nil
}

// ListIdle pages through carts last touched before the cutoff. Empty carts
// are filtered out since they hold nothing to release.
func (r *CartRepository) ListIdle(ctx context.Context, updatedBefore time.Time, pager domain.Pagination) (domain.CursorPage[domain.Cart], error) {
	if r == nil || r.carts == nil {
		return domain.CursorPage[domain.Cart]{}, errors.New("cart repository not initialised")
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
			return domain.CursorPage[domain.Cart]{}, repositories.NewCartError(repositories.CartErrorUnknown, "invalid page token", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("updatedAt", "<", updatedBefore.UTC()).
			OrderBy("updatedAt", firestore.Asc).
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
		return domain.CursorPage[domain.Cart]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.UpdatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Data.ProductIDs) == 0 {
			continue
		}
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Cart]{Items: items, NextPageToken: nextToken}, nil
}

func (r *CartRepository) readCart(tx *firestore.Transaction, ref *firestore.DocumentRef, userID string, now time.Time) (cartDocument, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return cartDocument{
				UserID:     userID,
				ProductIDs: []string{},
				CreatedAt:  now,
				UpdatedAt:  now,
			}, false, nil
		}
		return cartDocument{}, false, err
	}
	doc, err := r.carts.Decode(snap)
	if err != nil {
		return cartDocument{}, false, err
	}
	if doc.Data.ProductIDs == nil {
		doc.Data.ProductIDs = []string{}
	}
	return doc.Data, true, nil
}

func (r *CartRepository) readProduct(tx *firestore.Transaction, ref *firestore.DocumentRef, productID string) (productDocument, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return productDocument{}, repositories.NewProductError(repositories.ProductErrorNotFound,
				fmt.Sprintf("product %s not found", productID), err)
		}
		return productDocument{}, err
	}
	doc, err := r.products.Decode(snap)
	if err != nil {
		return productDocument{}, err
	}
	return doc.Data, nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func removeString(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
