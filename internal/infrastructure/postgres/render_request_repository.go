package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.RenderRequestRepository = (*RenderRequestRepo)(nil)

// RenderRequestRepo pedidos de DANFE/DANFCE que consume el renderizador externo.
type RenderRequestRepo struct {
	q Querier
}

// NewRenderRequestRepository construye el adaptador.
func NewRenderRequestRepository(q Querier) *RenderRequestRepo {
	return &RenderRequestRepo{q: q}
}

// Create registra el pedido.
func (r *RenderRequestRepo) Create(ctx context.Context, req *entity.RenderRequest) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO render_requests (id, document_id, access_key, model, contingency, qr_code_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.DocumentID, req.AccessKey, req.Model, req.Contingency, req.QRCodeURL, req.Status, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert render request: %w", err)
	}
	return nil
}
