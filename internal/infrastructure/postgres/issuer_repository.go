package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.IssuerRepository = (*IssuerRepo)(nil)

// IssuerRepo emisor único del proceso.
type IssuerRepo struct {
	q Querier
}

// NewIssuerRepository construye el adaptador.
func NewIssuerRepository(q Querier) *IssuerRepo {
	return &IssuerRepo{q: q}
}

// Get devuelve el emisor configurado (el más antiguo si hubiera varios).
func (r *IssuerRepo) Get(ctx context.Context) (*entity.Issuer, error) {
	const query = `
		SELECT id, cnpj, legal_name, trade_name, state_registration, tax_regime,
		       street, number, complement, district, city_code, city_name, uf, zip_code, phone,
		       active, csc_id, csc_token, created_at, updated_at
		FROM issuers ORDER BY created_at LIMIT 1`
	var i entity.Issuer
	a := &i.Address
	err := r.q.QueryRow(ctx, query).Scan(
		&i.ID, &i.CNPJ, &i.LegalName, &i.TradeName, &i.StateRegistration, &i.TaxRegime,
		&a.Street, &a.Number, &a.Complement, &a.District, &a.CityCode, &a.CityName, &a.UF, &a.ZipCode, &a.Phone,
		&i.Active, &i.CSCID, &i.CSCToken, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, notFound("get issuer", err)
	}
	return &i, nil
}

// Save crea o reemplaza el emisor por ID.
func (r *IssuerRepo) Save(ctx context.Context, i *entity.Issuer) error {
	const query = `
		INSERT INTO issuers (id, cnpj, legal_name, trade_name, state_registration, tax_regime,
		                     street, number, complement, district, city_code, city_name, uf, zip_code, phone,
		                     active, csc_id, csc_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
		    cnpj = EXCLUDED.cnpj, legal_name = EXCLUDED.legal_name, trade_name = EXCLUDED.trade_name,
		    state_registration = EXCLUDED.state_registration, tax_regime = EXCLUDED.tax_regime,
		    street = EXCLUDED.street, number = EXCLUDED.number, complement = EXCLUDED.complement,
		    district = EXCLUDED.district, city_code = EXCLUDED.city_code, city_name = EXCLUDED.city_name,
		    uf = EXCLUDED.uf, zip_code = EXCLUDED.zip_code, phone = EXCLUDED.phone,
		    active = EXCLUDED.active, csc_id = EXCLUDED.csc_id, csc_token = EXCLUDED.csc_token,
		    updated_at = EXCLUDED.updated_at`
	a := i.Address
	_, err := r.q.Exec(ctx, query,
		i.ID, i.CNPJ, i.LegalName, i.TradeName, i.StateRegistration, i.TaxRegime,
		a.Street, a.Number, a.Complement, a.District, a.CityCode, a.CityName, a.UF, a.ZipCode, a.Phone,
		i.Active, i.CSCID, i.CSCToken, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save issuer: %w", err)
	}
	return nil
}
