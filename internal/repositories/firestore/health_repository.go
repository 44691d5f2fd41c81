package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/SrAngelDev/CamisApi-sub000/internal/platform/firestore"
	"github.com/SrAngelDev/CamisApi-sub000/internal/repositories"
)

// HealthRepository reports Firestore connectivity for readiness probes.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// NewHealthRepository constructs a Firestore-backed health repository.
func NewHealthRepository(provider *pfirestore.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("health repository requires firestore provider")
	}
	return &HealthRepository{provider: provider}, nil
}

// Ping issues a cheap read against the backend. A missing probe document is
// healthy; only transport failures count.
func (r *HealthRepository) Ping(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return errors.New("health repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection("health").Doc("ping").Get(ctx)
	if err == nil {
		return nil
	}
	wrapped := pfirestore.WrapError("health.ping", err)
	var repoErr repositories.RepositoryError
	if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
		return nil
	}
	return wrapped
}
