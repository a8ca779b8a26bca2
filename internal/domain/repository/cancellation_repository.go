package repository

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// CancellationRepository persistencia de eventos de cancelamento.
type CancellationRepository interface {
	Create(ctx context.Context, c *entity.Cancellation) error
	Update(ctx context.Context, c *entity.Cancellation) error
	// GetRegisteredByDocument devuelve ErrNotFound si el documento no tiene cancelación registrada.
	GetRegisteredByDocument(ctx context.Context, documentID string) (*entity.Cancellation, error)
}
