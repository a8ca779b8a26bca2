package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.InutilizationRepository = (*InutilizationRepo)(nil)

// InutilizationRepo pedidos de inutilização de numeración.
type InutilizationRepo struct {
	q Querier
}

// NewInutilizationRepository construye el adaptador.
func NewInutilizationRepository(q Querier) *InutilizationRepo {
	return &InutilizationRepo{q: q}
}

const inutilizationColumns = `
	id, issuer_id, model, series, year, start_number, end_number, justification,
	status, status_code, status_reason, protocol, request_xml, response_xml, created_at, updated_at`

// Create persiste el pedido.
func (r *InutilizationRepo) Create(ctx context.Context, i *entity.Inutilization) error {
	_, err := r.q.Exec(ctx, `INSERT INTO inutilizations (`+inutilizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		i.ID, i.IssuerID, i.Model, i.Series, i.Year, i.Start, i.End, i.Justification,
		string(i.Status), i.StatusCode, i.StatusReason, i.Protocol, i.RequestXML, i.ResponseXML, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inutilization: %w", err)
	}
	return nil
}

// Update guarda la respuesta de la SEFAZ.
func (r *InutilizationRepo) Update(ctx context.Context, i *entity.Inutilization) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE inutilizations
		SET status = $2, status_code = $3, status_reason = $4, protocol = $5,
		    request_xml = $6, response_xml = $7, updated_at = $8
		WHERE id = $1`,
		i.ID, string(i.Status), i.StatusCode, i.StatusReason, i.Protocol, i.RequestXML, i.ResponseXML, i.UpdatedAt,
	)
	return mustAffect(tag, err, "update inutilization")
}

// GetByID obtiene un pedido por ID.
func (r *InutilizationRepo) GetByID(ctx context.Context, id string) (*entity.Inutilization, error) {
	row := r.q.QueryRow(ctx, `SELECT `+inutilizationColumns+` FROM inutilizations WHERE id = $1`, id)
	return scanInutilization(row, "get inutilization")
}

// List pedidos del más reciente al más antiguo.
func (r *InutilizationRepo) List(ctx context.Context, limit, offset int) ([]*entity.Inutilization, error) {
	rows, err := r.q.Query(ctx, `SELECT `+inutilizationColumns+`
		FROM inutilizations ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inutilizations: %w", err)
	}
	defer rows.Close()
	var list []*entity.Inutilization
	for rows.Next() {
		i, err := scanInutilization(rows, "scan inutilization")
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}

func scanInutilization(row pgx.Row, op string) (*entity.Inutilization, error) {
	var (
		i      entity.Inutilization
		status string
	)
	err := row.Scan(
		&i.ID, &i.IssuerID, &i.Model, &i.Series, &i.Year, &i.Start, &i.End, &i.Justification,
		&status, &i.StatusCode, &i.StatusReason, &i.Protocol, &i.RequestXML, &i.ResponseXML, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(op, err)
	}
	i.Status = entity.EventStatus(status)
	return &i, nil
}
