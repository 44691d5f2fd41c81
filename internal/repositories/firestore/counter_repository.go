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

	pfirestore "github.com/SrAngelDev/CamisApi-sub000/internal/platform/firestore"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository issues monotonically increasing sequences from Firestore
// counter documents. The first Next call for a name creates the document.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		clock:    time.Now,
	}, nil
}

// Next increments the named counter transactionally and returns the new value.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter name is required", nil)
	}

	var value int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, name)
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			doc := counterDocument{
				CurrentValue: 1,
				Step:         1,
				UpdatedAt:    r.now(),
			}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			value = doc.CurrentValue
			return nil
		}

		doc, err := r.counters.Decode(snap)
		if err != nil {
			return err
		}
		step := doc.Data.Step
		if step <= 0 {
			step = 1
		}
		doc.Data.CurrentValue += step
		doc.Data.Step = step
		doc.Data.UpdatedAt = r.now()
		if err := tx.Set(ref, doc.Data); err != nil {
			return err
		}
		value = doc.Data.CurrentValue
		return nil
	})
	if err != nil {
		return 0, repositories.NewCounterError(repositories.CounterErrorUnknown,
			fmt.Sprintf("increment counter %s", name), err)
	}
	return value, nil
}

func (r *CounterRepository) now() time.Time {
	if r != nil && r.clock != nil {
		return r.clock().UTC()
	}
	return time.Now().UTC()
}
