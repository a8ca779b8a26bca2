// Package fiscal orquesta la emisión, cancelación e inutilização de NF-e/NFC-e
// y la contingencia frente a la SEFAZ.
package fiscal

import (
	"context"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// AuthorityClient puerto hacia los web services de la SEFAZ.
// Los errores de transporte llegan como *domain.CommunicationError.
type AuthorityClient interface {
	Submit(ctx context.Context, mode entity.EmissionMode, signedNFe []byte, key string) (*entity.AuthorityResult, error)
	Cancel(ctx context.Context, signedEvent []byte, key string) (*entity.AuthorityResult, error)
	Void(ctx context.Context, signedInut []byte, model string) (*entity.AuthorityResult, error)
	QueryStatus(ctx context.Context, mode entity.EmissionMode) (*entity.AuthorityResult, error)
	QueryDocument(ctx context.Context, key string) (*entity.AuthorityResult, error)
}

// Credentials certificado digital cargado: firma y estado.
type Credentials interface {
	pkgnfe.Signer
	// Check devuelve *domain.CredentialError si no hay certificado o está vencido.
	Check() error
	Identity() (*entity.CertificateIdentity, bool)
	Validity() entity.CertificateValidity
}

// DocumentSettler lado del orquestador que usa el coordinador durante el drenaje.
// El orquestador sigue siendo el único que modifica documentos fiscales.
type DocumentSettler interface {
	QueuedDocument(ctx context.Context, documentID string) (*entity.FiscalDocument, error)
	SettleQueued(ctx context.Context, documentID string, res *entity.AuthorityResult) error
}

// Repositories repositorios que usa el orquestador.
type Repositories struct {
	Documents      repository.FiscalDocumentRepository
	Counters       repository.SeriesCounterRepository
	Cancellations  repository.CancellationRepository
	Inutilizations repository.InutilizationRepository
	Issuers        repository.IssuerRepository
	RenderRequests repository.RenderRequestRepository
}

// Config parámetros de emisión.
type Config struct {
	Environment   string // tpAmb: 1 producción, 2 homologación
	DefaultModel  string // 55 o 65
	DefaultSeries int

	// NFC-e
	CSCID      string
	CSCToken   string
	QRCodeURL  string // vacío usa la URL publicada para la UF
	ConsultURL string
}
