package repository

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// InutilizationRepository persistencia de fajas inutilizadas.
type InutilizationRepository interface {
	Create(ctx context.Context, inut *entity.Inutilization) error
	Update(ctx context.Context, inut *entity.Inutilization) error
	GetByID(ctx context.Context, id string) (*entity.Inutilization, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Inutilization, error)
}
