package firestore

import (
	"context"
	"encoding/base64"
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

const productsCollection = "products"

type productDocument struct {
	Name        string    `firestore:"name"`
	Team        string    `firestore:"team"`
	Size        string    `firestore:"size"`
	Description string    `firestore:"description,omitempty"`
	Price       int64     `firestore:"price"`
	ImagePath   string    `firestore:"imagePath,omitempty"`
	State       string    `firestore:"state"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		Name:        product.Name,
		Team:        product.Team,
		Size:        product.Size,
		Description: product.Description,
		Price:       product.Price,
		ImagePath:   product.ImagePath,
		State:       string(product.State),
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        d.Name,
		Team:        d.Team,
		Size:        d.Size,
		Description: d.Description,
		Price:       d.Price,
		ImagePath:   d.ImagePath,
		State:       domain.ProductState(d.State),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ProductRepository implements repositories.ProductRepository backed by Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// Save upserts a product document.
func (r *ProductRepository) Save(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, repositories.NewProductError(repositories.ProductErrorInvalidInput, "product id is required", nil)
	}
	if err := r.products.Set(ctx, id, newProductDocument(product)); err != nil {
		return domain.Product{}, err
	}
	product.ID = id
	return product, nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, repositories.NewProductError(repositories.ProductErrorInvalidInput, "product id is required", nil)
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindMany fetches the listed products, failing when any is missing.
func (r *ProductRepository) FindMany(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, err := r.FindByID(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, repositories.NewProductError(repositories.ProductErrorNotFound, fmt.Sprintf("product %s not found", id), err)
			}
			return nil, err
		}
		out = append(out, product)
	}
	return out, nil
}

// List returns a catalog page ordered by creation time, newest first.
func (r *ProductRepository) List(ctx context.Context, filter domain.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
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
			return domain.CursorPage[domain.Product]{}, repositories.NewProductError(repositories.ProductErrorInvalidInput, "invalid page token", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.State != nil {
			q = q.Where("state", "==", string(*filter.State))
		}
		if filter.Team != nil {
			if team := strings.TrimSpace(*filter.Team); team != "" {
				q = q.Where("team", "==", team)
			}
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
		return domain.CursorPage[domain.Product]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// Transition performs a compare-and-set state change inside a transaction.
// The stored state must equal `from`; exactly one of two concurrent callers
// observes it and wins.
func (r *ProductRepository) Transition(ctx context.Context, productID string, from, to domain.ProductState, now time.Time) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, repositories.NewProductError(repositories.ProductErrorInvalidInput, "product id is required", nil)
	}

	now = now.UTC()
	var result domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := r.getForUpdate(ctx, tx, productID)
		if err != nil {
			return err
		}
		if doc.Data.State != string(from) {
			return repositories.NewProductError(repositories.ProductErrorInvalidState,
				fmt.Sprintf("product %s is %s, expected %s", productID, doc.Data.State, from), nil)
		}

		doc.Data.State = string(to)
		doc.Data.UpdatedAt = now
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, doc.Data); err != nil {
			return err
		}
		result = doc.Data.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return result, nil
}

// MarkSold moves every listed product from reserved to sold in one
// transaction. Already-sold products are skipped so replays are harmless; any
// other state fails the batch.
func (r *ProductRepository) MarkSold(ctx context.Context, productIDs []string, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	if len(productIDs) == 0 {
		return nil
	}

	now = now.UTC()
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc productDocument
		}
		writes := make([]pendingWrite, 0, len(productIDs))

		// All reads precede all writes inside a Firestore transaction.
		for _, id := range productIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				return repositories.NewProductError(repositories.ProductErrorInvalidInput, "product id is required", nil)
			}
			doc, err := r.getForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			switch doc.Data.State {
			case string(domain.ProductStateSold):
				continue
			case string(domain.ProductStateReserved):
				ref, err := r.products.DocumentRef(ctx, id)
				if err != nil {
					return err
				}
				doc.Data.State = string(domain.ProductStateSold)
				doc.Data.UpdatedAt = now
				writes = append(writes, pendingWrite{ref: ref, doc: doc.Data})
			default:
				return repositories.NewProductError(repositories.ProductErrorInvalidState,
					fmt.Sprintf("product %s is %s, expected %s", id, doc.Data.State, domain.ProductStateReserved), nil)
			}
		}

		for _, write := range writes {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ProductRepository) getForUpdate(ctx context.Context, tx *firestore.Transaction, productID string) (pfirestore.Document[productDocument], error) {
	ref, err := r.products.DocumentRef(ctx, productID)
	if err != nil {
		return pfirestore.Document[productDocument]{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return pfirestore.Document[productDocument]{}, repositories.NewProductError(repositories.ProductErrorNotFound,
				fmt.Sprintf("product %s not found", productID), err)
		}
		return pfirestore.Document[productDocument]{}, err
	}
	return r.products.Decode(snap)
}

func encodeListToken(ts time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", ts.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}
