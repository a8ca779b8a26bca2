package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// expiryWarningDays días de anticipación del aviso de vencimiento.
const expiryWarningDays = 30

// CredentialLoader carga un certificado A1 (PKCS#12) reemplazando el vigente.
type CredentialLoader interface {
	Credentials
	Load(bundle []byte, password string) (*entity.CertificateIdentity, error)
}

// CertificateUseCase carga y consulta del certificado digital.
type CertificateUseCase struct {
	store   CredentialLoader
	issuers repository.IssuerRepository
	log     zerolog.Logger
}

// NewCertificateUseCase construye el caso de uso.
func NewCertificateUseCase(store CredentialLoader, issuers repository.IssuerRepository, log zerolog.Logger) *CertificateUseCase {
	return &CertificateUseCase{store: store, issuers: issuers, log: log.With().Str("component", "certificate").Logger()}
}

// Upload carga un nuevo certificado. Si el CNPJ del certificado no coincide
// con el del emisor la carga se acepta con un aviso.
func (uc *CertificateUseCase) Upload(ctx context.Context, bundle []byte, password string) (*dto.CertificateResponse, error) {
	if len(bundle) == 0 {
		return nil, domain.NewValidationError("certificate", "archivo vacío")
	}
	identity, err := uc.store.Load(bundle, password)
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("subject", identity.Subject).Time("not_after", identity.NotAfter).Msg("certificado reemplazado")
	return uc.Status(ctx)
}

// Status identidad, vigencia y avisos del certificado cargado.
func (uc *CertificateUseCase) Status(ctx context.Context) (*dto.CertificateResponse, error) {
	validity := uc.store.Validity()
	out := &dto.CertificateResponse{
		Loaded:        validity.Loaded,
		Valid:         validity.Valid,
		DaysRemaining: validity.DaysRemaining,
	}
	identity, ok := uc.store.Identity()
	if !ok {
		out.Warnings = append(out.Warnings, "no hay certificado cargado")
		return out, nil
	}
	notBefore, notAfter := identity.NotBefore, identity.NotAfter
	out.Subject = identity.Subject
	out.TaxID = identity.TaxID
	out.SerialNumber = identity.SerialNumber
	out.Issuer = identity.Issuer
	out.NotBefore = &notBefore
	out.NotAfter = &notAfter

	switch {
	case !validity.Valid:
		out.Warnings = append(out.Warnings, "certificado vencido")
	case validity.DaysRemaining <= expiryWarningDays:
		out.Warnings = append(out.Warnings, fmt.Sprintf("el certificado vence en %d días", validity.DaysRemaining))
	}

	issuer, err := uc.issuers.Get(ctx)
	switch {
	case err == nil:
		if identity.TaxID != "" && identity.TaxID != pkgnfe.OnlyDigits(issuer.CNPJ) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("el CNPJ del certificado (%s) no coincide con el del emisor (%s)", identity.TaxID, issuer.CNPJ))
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return out, nil
}
