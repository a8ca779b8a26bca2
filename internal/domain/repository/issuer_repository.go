package repository

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// IssuerRepository persistencia del emisor (uno por proceso).
type IssuerRepository interface {
	// Get devuelve el emisor configurado o ErrNotFound.
	Get(ctx context.Context) (*entity.Issuer, error)
	// Save crea o reemplaza la configuración del emisor.
	Save(ctx context.Context, issuer *entity.Issuer) error
}
