package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/nfe"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// EmitRequest venta a documentar.
type EmitRequest struct {
	SaleID         string
	Model          string // vacío usa el modelo por defecto
	Series         *int   // nil usa la serie por defecto
	Operation      string
	Buyer          *entity.Buyer
	Items          []entity.FiscalItem
	Payments       []entity.Payment
	AdditionalInfo string
}

// EmissionResult resultado de Emit.
type EmissionResult struct {
	Document     *entity.FiscalDocument
	Contingency  bool
	QueueEntryID string
}

// VoidRequest pedido de inutilização de una faja.
type VoidRequest struct {
	Model         string
	Series        int
	Start         int64
	End           int64
	Justification string
}

// FiscalOrchestrator orquesta el ciclo de vida del documento fiscal:
//
//	validación → numeración → chave → XML → firma → QR → SEFAZ | cola de contingencia
//
// Es el único que modifica documentos fiscales; el coordinador le delega el
// asentamiento de los documentos transmitidos desde la cola.
type FiscalOrchestrator struct {
	repos       Repositories
	builder     *sefaz.XMLBuilderService
	codec       *nfe.AccessKeyCodec
	credentials Credentials
	authority   AuthorityClient
	coordinator *ContingencyCoordinator
	cfg         Config
	log         zerolog.Logger
	now         func() time.Time
}

// NewFiscalOrchestrator construye el orquestador y lo enlaza al coordinador.
func NewFiscalOrchestrator(
	repos Repositories,
	builder *sefaz.XMLBuilderService,
	credentials Credentials,
	authority AuthorityClient,
	coordinator *ContingencyCoordinator,
	cfg Config,
	log zerolog.Logger,
) *FiscalOrchestrator {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = pkgnfe.ModelNFCe
	}
	if cfg.Environment == "" {
		cfg.Environment = pkgnfe.EnvironmentHomologation
	}
	o := &FiscalOrchestrator{
		repos:       repos,
		builder:     builder,
		codec:       nfe.NewAccessKeyCodec(),
		credentials: credentials,
		authority:   authority,
		coordinator: coordinator,
		cfg:         cfg,
		log:         log.With().Str("component", "fiscal").Logger(),
		now:         time.Now,
	}
	coordinator.bind(o, o.contingencyMode)
	return o
}

// WithClock reemplaza el reloj (tests).
func (o *FiscalOrchestrator) WithClock(now func() time.Time) *FiscalOrchestrator {
	o.now = now
	return o
}

// ═══════════════════════════════════════════════════════════════════════════════
// Emisión
// ═══════════════════════════════════════════════════════════════════════════════

// Emit documenta una venta. Una falla de comunicación no es un error: el
// documento queda PENDING en la cola de contingencia y Contingency es true.
// En un rechazo devuelve el documento REJECTED junto con *domain.AuthorityRejection;
// si falla la generación local del XML, el documento REJECTED y el error.
func (o *FiscalOrchestrator) Emit(ctx context.Context, req EmitRequest) (*EmissionResult, error) {
	issuer, err := o.activeIssuer(ctx)
	if err != nil {
		return nil, err
	}

	doc := o.newDocument(issuer, req)
	nfe.CalculateTotals(doc, issuer.TaxRegime)
	if err := nfe.ValidateDocument(doc, issuer); err != nil {
		return nil, err
	}
	if err := o.credentials.Check(); err != nil {
		return nil, err
	}
	if id, token := o.cscFor(issuer); doc.Model == pkgnfe.ModelNFCe && (id == "" || token == "") {
		return nil, domain.NewPreconditionError("la NFC-e requiere CSC configurado")
	}

	if state := o.coordinator.State(); state.Active {
		at := state.EnteredAt
		doc.EmissionMode = sefaz.ContingencyModeFor(issuer.Address.UF, doc.Model)
		doc.ContingencyAt = &at
		doc.ContingencyReason = state.Reason
	}

	// ═══ 1. Numeración y chave ═══
	number, err := o.repos.Counters.NextNumber(ctx, issuer.ID, doc.Model, doc.Series)
	if err != nil {
		return nil, fmt.Errorf("fiscal: reservar número: %w", err)
	}
	doc.Number = number
	if doc.Seed, err = nfe.RandomSeed(number); err != nil {
		return nil, err
	}
	ufCode, _ := pkgnfe.UFCode(issuer.Address.UF)
	doc.AccessKey, err = o.codec.Build(nfe.AccessKeyParams{
		RegionCode:   ufCode,
		IssuedAt:     doc.IssuedAt.In(sefaz.BrazilTime),
		IssuerCNPJ:   pkgnfe.OnlyDigits(issuer.CNPJ),
		Model:        doc.Model,
		Series:       doc.Series,
		Number:       number,
		EmissionCode: doc.EmissionMode.Code(),
		Seed:         doc.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("fiscal: construir chave: %w", err)
	}
	if err := o.repos.Documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("fiscal: persistir documento: %w", err)
	}
	log := o.log.With().Str("access_key", doc.AccessKey).Int64("number", number).Logger()

	// ═══ 2. XML, firma y QR-Code ═══
	signed, err := o.prepare(doc, issuer)
	if err != nil {
		// El número ya está reservado: el documento queda REJECTED para que la
		// faja pueda inutilizarse.
		doc.Status = entity.DocumentRejected
		doc.StatusReason = "falla local al generar el XML firmado: " + err.Error()
		o.persist(ctx, doc)
		log.Error().Err(err).
			Str("model", doc.Model).
			Int("series", doc.Series).
			Msg("no se pudo generar el XML firmado; número a inutilizar")
		return &EmissionResult{Document: doc}, err
	}
	o.persist(ctx, doc)

	// ═══ 3. Transmisión o cola ═══
	if doc.EmissionMode.IsContingency() {
		entry, err := o.coordinator.Enqueue(ctx, doc, doc.ContingencyReason)
		if err != nil {
			return nil, err
		}
		o.requestRender(ctx, doc)
		log.Info().Str("mode", string(doc.EmissionMode)).Msg("documento emitido en contingencia")
		return &EmissionResult{Document: doc, Contingency: true, QueueEntryID: entry.ID}, nil
	}

	res, err := o.authority.Submit(ctx, doc.EmissionMode, signed, doc.AccessKey)
	if err != nil {
		if !domain.IsCommunication(err) {
			doc.StatusReason = err.Error()
			o.persist(ctx, doc)
			return nil, err
		}
		reason := "SEFAZ sin respuesta: " + err.Error()
		doc.StatusReason = reason
		o.persist(ctx, doc)
		entry, qErr := o.coordinator.Enqueue(ctx, doc, reason)
		if qErr != nil {
			return nil, qErr
		}
		log.Warn().Err(err).Msg("falla de comunicación, documento en cola de contingencia")
		return &EmissionResult{Document: doc, Contingency: true, QueueEntryID: entry.ID}, nil
	}

	if err := o.apply(ctx, doc, res); err != nil {
		return &EmissionResult{Document: doc}, err
	}
	log.Info().Str("status", string(doc.Status)).Str("cstat", res.Code).Msg("documento procesado")
	return &EmissionResult{Document: doc}, nil
}

// contingencyMode modo de contingencia del emisor para el modelo por defecto.
func (o *FiscalOrchestrator) contingencyMode(ctx context.Context) entity.EmissionMode {
	issuer, err := o.repos.Issuers.Get(ctx)
	if err != nil {
		return ""
	}
	return sefaz.ContingencyModeFor(issuer.Address.UF, o.cfg.DefaultModel)
}

func (o *FiscalOrchestrator) activeIssuer(ctx context.Context) (*entity.Issuer, error) {
	issuer, err := o.repos.Issuers.Get(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NewPreconditionError("emisor no configurado")
	}
	if err != nil {
		return nil, err
	}
	if !issuer.Active {
		return nil, domain.NewPreconditionError("el emisor está inactivo")
	}
	if err := nfe.ValidateIssuer(issuer); err != nil {
		return nil, err
	}
	return issuer, nil
}

func (o *FiscalOrchestrator) newDocument(issuer *entity.Issuer, req EmitRequest) *entity.FiscalDocument {
	now := o.now()
	model := req.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}
	series := o.cfg.DefaultSeries
	if req.Series != nil {
		series = *req.Series
	}
	items := make([]entity.FiscalItem, len(req.Items))
	copy(items, req.Items)
	for i := range items {
		if items[i].TaxSituation == "" {
			items[i].TaxSituation = nfe.DefaultTaxSituation(issuer.TaxRegime, items[i].ICMSRate)
		}
	}
	return &entity.FiscalDocument{
		ID:             uuid.New().String(),
		IssuerID:       issuer.ID,
		SaleID:         req.SaleID,
		Model:          model,
		Series:         series,
		IssuedAt:       now,
		EmissionMode:   entity.EmissionNormal,
		Environment:    o.cfg.Environment,
		Operation:      req.Operation,
		Buyer:          req.Buyer,
		Items:          items,
		Payments:       append([]entity.Payment(nil), req.Payments...),
		AdditionalInfo: req.AdditionalInfo,
		Status:         entity.DocumentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// prepare genera el XML, lo firma y, en la NFC-e, agrega el QR-Code.
func (o *FiscalOrchestrator) prepare(doc *entity.FiscalDocument, issuer *entity.Issuer) ([]byte, error) {
	unsigned, err := o.builder.BuildInvoice(&sefaz.InvoiceBuildContext{
		Document:    doc,
		Issuer:      issuer,
		Environment: o.cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("fiscal: generar XML: %w", err)
	}
	doc.OutgoingXML = string(unsigned)

	signed, err := o.credentials.Sign(unsigned, sefaz.InvoiceElementID(doc.AccessKey))
	if err != nil {
		return nil, err
	}

	if doc.Model == pkgnfe.ModelNFCe {
		qrBase, consult := o.nfceURLs(issuer.Address.UF)
		cscID, cscToken := o.cscFor(issuer)
		params := sefaz.QRCodeParams{
			BaseURL:     qrBase,
			AccessKey:   doc.AccessKey,
			Environment: o.cfg.Environment,
			CSCID:       cscID,
			CSCToken:    cscToken,
		}
		if doc.EmissionMode == entity.EmissionOffline {
			digest, err := sefaz.DigestValueOf(signed)
			if err != nil {
				return nil, err
			}
			params.Offline, params.Document, params.DigestValue = true, doc, digest
		}
		qr, err := sefaz.BuildQRCodeURL(params)
		if err != nil {
			return nil, err
		}
		if signed, err = sefaz.AttachQRCode(signed, qr, consult); err != nil {
			return nil, err
		}
		doc.QRCodeURL = qr
	}
	doc.SignedXML = string(signed)
	return signed, nil
}

// cscFor CSC del emisor; si no lo tiene, el de la configuración.
func (o *FiscalOrchestrator) cscFor(issuer *entity.Issuer) (string, string) {
	if issuer.CSCID != "" && issuer.CSCToken != "" {
		return issuer.CSCID, issuer.CSCToken
	}
	return o.cfg.CSCID, o.cfg.CSCToken
}

func (o *FiscalOrchestrator) nfceURLs(uf string) (string, string) {
	qr, consult := sefaz.NFCeURLs(uf, o.cfg.Environment)
	if o.cfg.QRCodeURL != "" {
		qr = o.cfg.QRCodeURL
	}
	if o.cfg.ConsultURL != "" {
		consult = o.cfg.ConsultURL
	}
	return qr, consult
}

// apply asienta una respuesta de la SEFAZ sobre el documento y lo persiste.
// Devuelve *domain.AuthorityRejection si la SEFAZ rechazó o denegó el uso.
func (o *FiscalOrchestrator) apply(ctx context.Context, doc *entity.FiscalDocument, res *entity.AuthorityResult) error {
	doc.StatusCode = res.Code
	doc.StatusReason = res.Reason
	doc.ResponseXML = res.ResponseXML

	var rejection error
	switch res.Outcome {
	case entity.OutcomeAuthorized, entity.OutcomeCancelled:
		at := o.now()
		if res.ReceivedAt != nil {
			at = *res.ReceivedAt
		}
		doc.Status = entity.DocumentAuthorized
		if res.Outcome == entity.OutcomeCancelled {
			doc.Status = entity.DocumentCancelled
		}
		doc.Protocol = res.Protocol
		doc.AuthorizedAt = &at
		if res.ProtocolXML != "" {
			doc.AuthorizedXML = string(o.builder.BuildAuthorizedProc([]byte(doc.SignedXML), res.ProtocolXML))
		}
	case entity.OutcomeDenied:
		doc.Status = entity.DocumentDenied
		doc.Protocol = res.Protocol
		rejection = &domain.AuthorityRejection{Code: res.Code, Reason: res.Reason}
	default:
		doc.Status = entity.DocumentRejected
		rejection = &domain.AuthorityRejection{Code: res.Code, Reason: res.Reason}
	}

	doc.UpdatedAt = o.now()
	if err := o.repos.Documents.Update(ctx, doc); err != nil {
		return fmt.Errorf("fiscal: actualizar documento %s: %w", doc.AccessKey, err)
	}
	if doc.Status == entity.DocumentAuthorized && !doc.EmissionMode.IsContingency() {
		o.requestRender(ctx, doc)
	}
	return rejection
}

// persist guarda el documento; un error solo se registra.
func (o *FiscalOrchestrator) persist(ctx context.Context, doc *entity.FiscalDocument) {
	doc.UpdatedAt = o.now()
	if err := o.repos.Documents.Update(ctx, doc); err != nil {
		o.log.Error().Err(err).Str("access_key", doc.AccessKey).Msg("no se pudo actualizar el documento")
	}
}

// requestRender registra el pedido de DANFE/DANFCE para el renderizador externo.
func (o *FiscalOrchestrator) requestRender(ctx context.Context, doc *entity.FiscalDocument) {
	if o.repos.RenderRequests == nil {
		return
	}
	req := &entity.RenderRequest{
		ID:          uuid.New().String(),
		DocumentID:  doc.ID,
		AccessKey:   doc.AccessKey,
		Model:       doc.Model,
		Contingency: doc.EmissionMode.IsContingency(),
		QRCodeURL:   doc.QRCodeURL,
		Status:      entity.RenderPending,
		CreatedAt:   o.now(),
	}
	if err := o.repos.RenderRequests.Create(ctx, req); err != nil {
		o.log.Error().Err(err).Str("access_key", doc.AccessKey).Msg("no se pudo registrar el pedido de impresión")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// Documentos encolados (DocumentSettler)
// ═══════════════════════════════════════════════════════════════════════════════

// QueuedDocument devuelve el documento de una entrada de la cola.
func (o *FiscalOrchestrator) QueuedDocument(ctx context.Context, documentID string) (*entity.FiscalDocument, error) {
	doc, err := o.repos.Documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.SignedXML == "" {
		return nil, domain.NewPreconditionError("documento %s sin XML firmado", doc.AccessKey)
	}
	return doc, nil
}

// SettleQueued asienta la respuesta obtenida por el coordinador. Un documento
// que ya no está PENDING no se modifica.
func (o *FiscalOrchestrator) SettleQueued(ctx context.Context, documentID string, res *entity.AuthorityResult) error {
	doc, err := o.repos.Documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status != entity.DocumentPending {
		return nil
	}
	if err := o.apply(ctx, doc, res); err != nil {
		var rejection *domain.AuthorityRejection
		if errors.As(err, &rejection) {
			o.log.Warn().Str("access_key", doc.AccessKey).Str("cstat", rejection.Code).Msg("documento de contingencia rechazado")
			return nil
		}
		return err
	}
	o.log.Info().Str("access_key", doc.AccessKey).Str("status", string(doc.Status)).Msg("documento de contingencia asentado")
	return nil
}

// SyncDocument consulta la SEFAZ por un documento PENDING y asienta el
// resultado si la SEFAZ ya lo conoce.
func (o *FiscalOrchestrator) SyncDocument(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	doc, err := o.repos.Documents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.DocumentPending {
		return doc, nil
	}
	res, err := o.authority.QueryDocument(ctx, doc.AccessKey)
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case entity.OutcomeAuthorized, entity.OutcomeCancelled, entity.OutcomeDenied:
		if err := o.apply(ctx, doc, res); err != nil {
			return doc, err
		}
	default:
		o.log.Info().Str("access_key", doc.AccessKey).Str("cstat", res.Code).Msg("la SEFAZ aún no conoce el documento")
	}
	return doc, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// Consultas
// ═══════════════════════════════════════════════════════════════════════════════

// GetDocument devuelve un documento por ID.
func (o *FiscalOrchestrator) GetDocument(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	return o.repos.Documents.GetByID(ctx, id)
}

// GetDocumentByKey devuelve un documento por chave de acesso.
func (o *FiscalOrchestrator) GetDocumentByKey(ctx context.Context, key string) (*entity.FiscalDocument, error) {
	if err := o.codec.Validate(key); err != nil {
		return nil, domain.NewValidationError("access_key", "%v", err)
	}
	return o.repos.Documents.GetByAccessKey(ctx, key)
}

// GetArtifact devuelve el XML del tipo pedido (outgoing, response, authorized).
func (o *FiscalOrchestrator) GetArtifact(ctx context.Context, key, kind string) (string, error) {
	switch kind {
	case entity.ArtifactOutgoing, entity.ArtifactResponse, entity.ArtifactAuthorized:
	default:
		return "", domain.NewValidationError("kind", "artefacto %q desconocido", kind)
	}
	doc, err := o.GetDocumentByKey(ctx, key)
	if err != nil {
		return "", err
	}
	xml := doc.Artifact(kind)
	if xml == "" {
		return "", domain.ErrNotFound
	}
	return xml, nil
}

// ContingencyState estado actual de contingencia.
func (o *FiscalOrchestrator) ContingencyState() entity.ContingencyState {
	return o.coordinator.State()
}
