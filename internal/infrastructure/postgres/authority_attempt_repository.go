package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.AuthorityAttemptRepository = (*AuthorityAttemptRepo)(nil)

// AuthorityAttemptRepo registro de auditoría de las llamadas a la SEFAZ.
type AuthorityAttemptRepo struct {
	q Querier
}

// NewAuthorityAttemptRepository construye el adaptador.
func NewAuthorityAttemptRepository(q Querier) *AuthorityAttemptRepo {
	return &AuthorityAttemptRepo{q: q}
}

// Record agrega un intento; el registro es solo de inserción.
func (r *AuthorityAttemptRepo) Record(ctx context.Context, a *entity.AuthorityAttempt) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO authority_attempts (id, operation, endpoint, access_key, request_xml, response_xml,
		                                http_status, status_code, status_reason, outcome, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.Operation, a.Endpoint, a.AccessKey, a.RequestXML, a.ResponseXML,
		a.HTTPStatus, a.StatusCode, a.StatusReason, a.Outcome, a.Error, a.StartedAt, a.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert authority attempt: %w", err)
	}
	return nil
}

// ListByAccessKey intentos de un documento en orden cronológico.
func (r *AuthorityAttemptRepo) ListByAccessKey(ctx context.Context, key string) ([]*entity.AuthorityAttempt, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, operation, endpoint, access_key, request_xml, response_xml,
		       http_status, status_code, status_reason, outcome, error, started_at, duration_ms
		FROM authority_attempts WHERE access_key = $1 ORDER BY started_at`, key)
	if err != nil {
		return nil, fmt.Errorf("list authority attempts: %w", err)
	}
	defer rows.Close()
	var list []*entity.AuthorityAttempt
	for rows.Next() {
		var (
			a  entity.AuthorityAttempt
			ms int64
		)
		if err := rows.Scan(&a.ID, &a.Operation, &a.Endpoint, &a.AccessKey, &a.RequestXML, &a.ResponseXML,
			&a.HTTPStatus, &a.StatusCode, &a.StatusReason, &a.Outcome, &a.Error, &a.StartedAt, &ms); err != nil {
			return nil, fmt.Errorf("scan authority attempt: %w", err)
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		list = append(list, &a)
	}
	return list, rows.Err()
}
