package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.CancellationRepository = (*CancellationRepo)(nil)

// CancellationRepo eventos de cancelamento. Un índice único parcial impide
// dos cancelamentos REGISTERED para el mismo documento.
type CancellationRepo struct {
	q Querier
}

// NewCancellationRepository construye el adaptador.
func NewCancellationRepository(q Querier) *CancellationRepo {
	return &CancellationRepo{q: q}
}

// Create persiste el pedido de cancelamento.
func (r *CancellationRepo) Create(ctx context.Context, c *entity.Cancellation) error {
	const query = `
		INSERT INTO cancellations (id, document_id, access_key, original_protocol, justification, sequence,
		                           status, status_code, status_reason, event_protocol, event_xml, response_xml,
		                           requested_at, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.DocumentID, c.AccessKey, c.OriginalProtocol, c.Justification, c.Sequence,
		string(c.Status), c.StatusCode, c.StatusReason, c.EventProtocol, c.EventXML, c.ResponseXML,
		c.RequestedAt, c.RegisteredAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cancellation: %w", err)
	}
	return nil
}

// Update guarda el resultado del evento.
func (r *CancellationRepo) Update(ctx context.Context, c *entity.Cancellation) error {
	const query = `
		UPDATE cancellations
		SET status = $2, status_code = $3, status_reason = $4, event_protocol = $5,
		    event_xml = $6, response_xml = $7, registered_at = $8, updated_at = $9
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		c.ID, string(c.Status), c.StatusCode, c.StatusReason, c.EventProtocol,
		c.EventXML, c.ResponseXML, c.RegisteredAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("cancelamento de %s: %w", c.AccessKey, domain.ErrConflict)
	}
	return mustAffect(tag, err, "update cancellation")
}

// GetRegisteredByDocument devuelve el cancelamento registrado del documento.
func (r *CancellationRepo) GetRegisteredByDocument(ctx context.Context, documentID string) (*entity.Cancellation, error) {
	const query = `
		SELECT id, document_id, access_key, original_protocol, justification, sequence,
		       status, status_code, status_reason, event_protocol, event_xml, response_xml,
		       requested_at, registered_at, updated_at
		FROM cancellations WHERE document_id = $1 AND status = 'REGISTERED'`
	var (
		c      entity.Cancellation
		status string
	)
	err := r.q.QueryRow(ctx, query, documentID).Scan(
		&c.ID, &c.DocumentID, &c.AccessKey, &c.OriginalProtocol, &c.Justification, &c.Sequence,
		&status, &c.StatusCode, &c.StatusReason, &c.EventProtocol, &c.EventXML, &c.ResponseXML,
		&c.RequestedAt, &c.RegisteredAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound("get cancellation", err)
	}
	c.Status = entity.EventStatus(status)
	return &c, nil
}
