package fiscal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/nfe"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// IssuerUseCase configuración del emisor y de sus series.
type IssuerUseCase struct {
	issuers  repository.IssuerRepository
	counters repository.SeriesCounterRepository
}

// NewIssuerUseCase construye el caso de uso.
func NewIssuerUseCase(issuers repository.IssuerRepository, counters repository.SeriesCounterRepository) *IssuerUseCase {
	return &IssuerUseCase{issuers: issuers, counters: counters}
}

// Configure crea o reemplaza el emisor. El CNPJ se valida con sus dígitos verificadores.
func (uc *IssuerUseCase) Configure(ctx context.Context, in dto.IssuerRequest) (*dto.IssuerResponse, error) {
	now := time.Now()
	issuer := &entity.Issuer{
		ID:                uuid.New().String(),
		CNPJ:              pkgnfe.OnlyDigits(in.CNPJ),
		LegalName:         strings.TrimSpace(in.LegalName),
		TradeName:         strings.TrimSpace(in.TradeName),
		StateRegistration: pkgnfe.OnlyDigits(in.StateRegistration),
		TaxRegime:         in.TaxRegime,
		Address:           addressFromDTO(in.Address),
		Active:            true,
		CSCID:             strings.TrimSpace(in.CSCID),
		CSCToken:          strings.TrimSpace(in.CSCToken),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	existing, err := uc.issuers.Get(ctx)
	switch {
	case err == nil:
		issuer.ID = existing.ID
		issuer.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	if err := nfe.ValidateIssuer(issuer); err != nil {
		return nil, err
	}
	if err := uc.issuers.Save(ctx, issuer); err != nil {
		return nil, err
	}
	return IssuerToResponse(issuer), nil
}

// Get devuelve el emisor configurado.
func (uc *IssuerUseCase) Get(ctx context.Context) (*dto.IssuerResponse, error) {
	issuer, err := uc.issuers.Get(ctx)
	if err != nil {
		return nil, err
	}
	return IssuerToResponse(issuer), nil
}

// SeedSeries fija el próximo número de una serie si el contador aún no existe
// (migración desde otro emisor). Devuelve el próximo número vigente.
func (uc *IssuerUseCase) SeedSeries(ctx context.Context, in dto.SeedSeriesRequest) (*dto.SeriesResponse, error) {
	var errs []error
	if in.Model != pkgnfe.ModelNFe && in.Model != pkgnfe.ModelNFCe {
		errs = append(errs, domain.NewValidationError("model", "debe ser 55 o 65"))
	}
	if in.Series < 0 || in.Series > 999 {
		errs = append(errs, domain.NewValidationError("series", "fuera de rango 0..999"))
	}
	if in.NextNumber < 1 || in.NextNumber > 999999999 {
		errs = append(errs, domain.NewValidationError("next_number", "fuera de rango 1..999999999"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	issuer, err := uc.issuers.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := uc.counters.Ensure(ctx, issuer.ID, in.Model, in.Series, in.NextNumber); err != nil {
		return nil, err
	}
	next, err := uc.counters.Peek(ctx, issuer.ID, in.Model, in.Series)
	if err != nil {
		return nil, err
	}
	return &dto.SeriesResponse{Model: in.Model, Series: in.Series, NextNumber: next}, nil
}

// IssuerToResponse convierte el emisor a DTO sin exponer el token CSC.
func IssuerToResponse(i *entity.Issuer) *dto.IssuerResponse {
	if i == nil {
		return nil
	}
	return &dto.IssuerResponse{
		ID:                i.ID,
		CNPJ:              i.CNPJ,
		LegalName:         i.LegalName,
		TradeName:         i.TradeName,
		StateRegistration: i.StateRegistration,
		TaxRegime:         i.TaxRegime,
		Address:           addressToDTO(i.Address),
		Active:            i.Active,
		HasCSC:            i.CSCID != "" && i.CSCToken != "",
		UpdatedAt:         i.UpdatedAt,
	}
}
