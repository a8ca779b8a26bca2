package repository

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// RenderRequestRepository pedidos de DANFE/DANFCE para el renderizador externo.
type RenderRequestRepository interface {
	Create(ctx context.Context, req *entity.RenderRequest) error
}
