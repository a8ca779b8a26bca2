package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

// FiscalDocumentRepo documentos fiscales. Ítems, pagos, destinatario y
// totales se guardan como JSONB; el total va además en NUMERIC para consultas.
type FiscalDocumentRepo struct {
	q Querier
}

// NewFiscalDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalDocumentRepository(q Querier) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{q: q}
}

const documentColumns = `
	id, issuer_id, sale_id, model, series, number, access_key, seed, issued_at,
	emission_mode, environment, operation, buyer, items, payments, totals, additional_info,
	status, status_code, status_reason, protocol, authorized_at,
	contingency_reason, contingency_at,
	outgoing_xml, signed_xml, response_xml, authorized_xml, qr_code_url,
	created_at, updated_at`

type documentJSON struct {
	buyer, items, payments, totals []byte
}

func marshalDocument(doc *entity.FiscalDocument) (documentJSON, error) {
	var out documentJSON
	var err error
	if doc.Buyer != nil {
		if out.buyer, err = json.Marshal(doc.Buyer); err != nil {
			return out, err
		}
	}
	if out.items, err = json.Marshal(doc.Items); err != nil {
		return out, err
	}
	if out.payments, err = json.Marshal(doc.Payments); err != nil {
		return out, err
	}
	out.totals, err = json.Marshal(doc.Totals)
	return out, err
}

// Create persiste el documento; una chave o número repetido es ErrConflict.
func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	j, err := marshalDocument(doc)
	if err != nil {
		return fmt.Errorf("serializar documento: %w", err)
	}
	query := `INSERT INTO fiscal_documents (` + documentColumns + `, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32)`
	_, err = r.q.Exec(ctx, query,
		doc.ID, doc.IssuerID, doc.SaleID, doc.Model, doc.Series, doc.Number, doc.AccessKey, doc.Seed, doc.IssuedAt,
		string(doc.EmissionMode), doc.Environment, doc.Operation, j.buyer, j.items, j.payments, j.totals, doc.AdditionalInfo,
		string(doc.Status), doc.StatusCode, doc.StatusReason, doc.Protocol, doc.AuthorizedAt,
		doc.ContingencyReason, doc.ContingencyAt,
		doc.OutgoingXML, doc.SignedXML, doc.ResponseXML, doc.AuthorizedXML, doc.QRCodeURL,
		doc.CreatedAt, doc.UpdatedAt, doc.Totals.Total,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento %s: %w", doc.AccessKey, domain.ErrConflict)
		}
		return fmt.Errorf("insert fiscal document: %w", err)
	}
	return nil
}

// Update reescribe el estado mutable del documento (estado, respuesta, XMLs).
func (r *FiscalDocumentRepo) Update(ctx context.Context, doc *entity.FiscalDocument) error {
	query := `
		UPDATE fiscal_documents
		SET status             = $2,
		    status_code        = $3,
		    status_reason      = $4,
		    protocol           = $5,
		    authorized_at      = $6,
		    contingency_reason = $7,
		    contingency_at     = $8,
		    outgoing_xml       = $9,
		    signed_xml         = $10,
		    response_xml       = $11,
		    authorized_xml     = $12,
		    qr_code_url        = $13,
		    updated_at         = $14
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, string(doc.Status), doc.StatusCode, doc.StatusReason, doc.Protocol, doc.AuthorizedAt,
		doc.ContingencyReason, doc.ContingencyAt,
		doc.OutgoingXML, doc.SignedXML, doc.ResponseXML, doc.AuthorizedXML, doc.QRCodeURL,
		doc.UpdatedAt,
	)
	return mustAffect(tag, err, "update fiscal document")
}

// GetByID obtiene un documento por ID.
func (r *FiscalDocumentRepo) GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	row := r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM fiscal_documents WHERE id = $1`, id)
	return scanDocument(row, "get fiscal document")
}

// GetByAccessKey obtiene un documento por chave de acesso.
func (r *FiscalDocumentRepo) GetByAccessKey(ctx context.Context, key string) (*entity.FiscalDocument, error) {
	row := r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM fiscal_documents WHERE access_key = $1`, key)
	return scanDocument(row, "get fiscal document by key")
}

// ListByStatus documentos en un estado, del más antiguo al más nuevo.
func (r *FiscalDocumentRepo) ListByStatus(ctx context.Context, status entity.DocumentStatus, limit int) ([]*entity.FiscalDocument, error) {
	rows, err := r.q.Query(ctx, `SELECT `+documentColumns+`
		FROM fiscal_documents WHERE status = $1 ORDER BY created_at LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list fiscal documents: %w", err)
	}
	defer rows.Close()
	var list []*entity.FiscalDocument
	for rows.Next() {
		doc, err := scanDocument(rows, "scan fiscal document")
		if err != nil {
			return nil, err
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

func scanDocument(row pgx.Row, op string) (*entity.FiscalDocument, error) {
	var (
		doc                          entity.FiscalDocument
		mode, status                 string
		buyer, items, payments, tots []byte
	)
	err := row.Scan(
		&doc.ID, &doc.IssuerID, &doc.SaleID, &doc.Model, &doc.Series, &doc.Number, &doc.AccessKey, &doc.Seed, &doc.IssuedAt,
		&mode, &doc.Environment, &doc.Operation, &buyer, &items, &payments, &tots, &doc.AdditionalInfo,
		&status, &doc.StatusCode, &doc.StatusReason, &doc.Protocol, &doc.AuthorizedAt,
		&doc.ContingencyReason, &doc.ContingencyAt,
		&doc.OutgoingXML, &doc.SignedXML, &doc.ResponseXML, &doc.AuthorizedXML, &doc.QRCodeURL,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(op, err)
	}
	doc.EmissionMode = entity.EmissionMode(mode)
	doc.Status = entity.DocumentStatus(status)
	if len(buyer) > 0 && string(buyer) != "null" {
		doc.Buyer = &entity.Buyer{}
		if err := json.Unmarshal(buyer, doc.Buyer); err != nil {
			return nil, fmt.Errorf("%s: buyer: %w", op, err)
		}
	}
	if err := json.Unmarshal(items, &doc.Items); err != nil {
		return nil, fmt.Errorf("%s: items: %w", op, err)
	}
	if err := json.Unmarshal(payments, &doc.Payments); err != nil {
		return nil, fmt.Errorf("%s: payments: %w", op, err)
	}
	if err := json.Unmarshal(tots, &doc.Totals); err != nil {
		return nil, fmt.Errorf("%s: totals: %w", op, err)
	}
	return &doc, nil
}
