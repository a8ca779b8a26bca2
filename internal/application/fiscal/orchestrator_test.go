package fiscal_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Fiscal-api/internal/application/fiscal"
	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/nfe"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// ──────────────────────────────────────────────────────────────────────────────
// Emisión
// ──────────────────────────────────────────────────────────────────────────────

func TestEmit_AutorizadaDosPorDiez(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Contingency)

	doc := res.Document
	assert.Equal(t, entity.DocumentAuthorized, doc.Status)
	assert.Equal(t, "20.00", doc.Totals.Total.StringFixed(2))
	assert.Equal(t, int64(1), doc.Number)
	assert.Equal(t, "135260000000001", doc.Protocol)
	require.NotNil(t, doc.AuthorizedAt)
	assert.NoError(t, nfe.NewAccessKeyCodec().Validate(doc.AccessKey))
	assert.Equal(t, "1", doc.AccessKey[34:35], "tpEmis normal")

	assert.Contains(t, doc.SignedXML, "<Signature")
	assert.Contains(t, doc.SignedXML, "<infNFeSupl>")
	assert.NotEmpty(t, doc.QRCodeURL)
	assert.True(t, strings.HasPrefix(doc.AuthorizedXML, "<nfeProc"), "XML autorizado debe ser nfeProc")
	assert.Contains(t, doc.AuthorizedXML, "<protNFe")

	stored, err := h.docs.GetByAccessKey(ctx, doc.AccessKey)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentAuthorized, stored.Status)

	assert.Equal(t, 1, h.renders.count())
	assert.Equal(t, 1, h.authority.count("submit"))
	assert.False(t, h.coordinator.State().Active)
}

func TestEmit_ArtefactosPorChave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)
	key := res.Document.AccessKey

	proc, err := h.orch.GetArtifact(ctx, key, entity.ArtifactAuthorized)
	require.NoError(t, err)
	assert.Contains(t, proc, "<nfeProc")

	out, err := h.orch.GetArtifact(ctx, key, entity.ArtifactOutgoing)
	require.NoError(t, err)
	assert.Contains(t, out, "<Signature")

	_, err = h.orch.GetArtifact(ctx, key, "danfe")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.orch.GetArtifact(ctx, key, entity.ArtifactResponse)
	assert.ErrorIs(t, err, domain.ErrNotFound, "el fake no devuelve cuerpo SOAP")

	_, err = h.orch.GetDocumentByKey(ctx, "123")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEmit_TimeoutEncolaYActivaContingencia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authority.submit = func(string) (*entity.AuthorityResult, error) {
		return nil, communicationError("AUTORIZACAO")
	}

	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err, "una falla de comunicación no es un error para quien emite")
	assert.True(t, res.Contingency)
	assert.NotEmpty(t, res.QueueEntryID)
	assert.Equal(t, entity.DocumentPending, res.Document.Status)
	assert.Contains(t, res.Document.StatusReason, "SEFAZ sin respuesta")

	state := h.coordinator.State()
	assert.True(t, state.Active)
	assert.Equal(t, entity.EmissionOffline, state.Mode)

	entries, err := h.coordinator.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.Document.ID, entries[0].DocumentID)
	assert.Equal(t, entity.QueueAwaiting, entries[0].State)
}

func TestEmit_EnContingenciaNoLlamaALaSEFAZ(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.coordinator.Activate("SEFAZ fora do ar")

	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)
	assert.True(t, res.Contingency)
	assert.Equal(t, 0, h.authority.count("submit"))

	doc := res.Document
	assert.Equal(t, entity.EmissionOffline, doc.EmissionMode)
	assert.Equal(t, "9", doc.AccessKey[34:35], "tpEmis offline en la chave")
	assert.Equal(t, "SEFAZ fora do ar", doc.ContingencyReason)
	require.NotNil(t, doc.ContingencyAt)
	assert.Contains(t, doc.SignedXML, "<dhCont>")
	// QR offline: chave|versão|ambiente|dia|valor|digVal|idCSC|hash
	payload := doc.QRCodeURL[strings.Index(doc.QRCodeURL, "p=")+2:]
	assert.Len(t, strings.Split(payload, "|"), 8)

	assert.Equal(t, 1, h.renders.count(), "la contingencia imprime DANFCE de inmediato")
	entries, err := h.coordinator.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEmit_NumeracionConcurrenteSinDuplicados(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[int64]bool{}
		keys    = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orch.Emit(ctx, saleTwoByTen())
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[res.Document.Number] = true
			keys[res.Document.AccessKey] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, numbers, n)
	assert.Len(t, keys, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, numbers[i], "falta el número %d", i)
	}
}

func TestEmit_RechazoDevuelveDocumentoYError(t *testing.T) {
	h := newHarness(t)
	h.authority.submit = func(string) (*entity.AuthorityResult, error) {
		return &entity.AuthorityResult{Outcome: entity.OutcomeRejected, Code: "539", Reason: "Rejeicao: Duplicidade de NF-e"}, nil
	}

	res, err := h.orch.Emit(context.Background(), saleTwoByTen())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorityRejection)

	var rejection *domain.AuthorityRejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "539", rejection.Code)
	assert.Equal(t, "Rejeicao: Duplicidade de NF-e", rejection.Reason)

	require.NotNil(t, res)
	assert.Equal(t, entity.DocumentRejected, res.Document.Status)
	assert.Equal(t, 0, h.renders.count())
	assert.False(t, h.coordinator.State().Active)
}

func TestEmit_DenegadaQuedaDENIED(t *testing.T) {
	h := newHarness(t)
	h.authority.submit = func(string) (*entity.AuthorityResult, error) {
		return &entity.AuthorityResult{Outcome: entity.OutcomeDenied, Code: "302", Reason: "Uso Denegado", Protocol: "135260000000050"}, nil
	}

	res, err := h.orch.Emit(context.Background(), saleTwoByTen())
	assert.ErrorIs(t, err, domain.ErrAuthorityRejection)
	assert.Equal(t, entity.DocumentDenied, res.Document.Status)
	assert.Equal(t, "135260000000050", res.Document.Protocol)
}

func TestEmit_ValidacionNoConsumeNumero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := saleTwoByTen()
	req.Items = nil

	_, err := h.orch.Emit(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	next, err := h.counters.Peek(ctx, "issuer-1", pkgnfe.ModelNFCe, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
	assert.Equal(t, 0, h.authority.count("submit"))
}

func TestEmit_PagoInsuficiente(t *testing.T) {
	h := newHarness(t)
	req := saleTwoByTen()
	req.Payments[0].Amount = decimal.RequireFromString("19.99")

	_, err := h.orch.Emit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEmit_SinCertificadoEsErrorDeCredencial(t *testing.T) {
	h := newHarness(t)
	orch := fiscal.NewFiscalOrchestrator(fiscal.Repositories{
		Documents: h.docs, Counters: h.counters, Cancellations: h.cancels,
		Inutilizations: h.inuts, Issuers: h.issuers, RenderRequests: h.renders,
	}, sefaz.NewXMLBuilderService(), emptyCredentials(), h.authority, h.coordinator, fiscal.Config{CSCID: "1", CSCToken: "x"}, testLogger())

	_, err := orch.Emit(context.Background(), saleTwoByTen())
	assert.ErrorIs(t, err, domain.ErrCredential)
	assert.Equal(t, 0, h.authority.count("submit"))
}

// brokenSigner credencial vigente que no logra firmar.
type brokenSigner struct{ fiscal.Credentials }

func (brokenSigner) Sign([]byte, string) ([]byte, error) {
	return nil, errors.New("firma: clave privada inaccesible")
}

func TestEmit_FallaDeFirmaMarcaNumeroParaInutilizar(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	orch := fiscal.NewFiscalOrchestrator(fiscal.Repositories{
		Documents: h.docs, Counters: h.counters, Cancellations: h.cancels,
		Inutilizations: h.inuts, Issuers: h.issuers, RenderRequests: h.renders,
	}, sefaz.NewXMLBuilderService(), brokenSigner{h.store}, h.authority, h.coordinator, fiscal.Config{CSCID: "1", CSCToken: "x"}, testLogger())

	res, err := orch.Emit(ctx, saleTwoByTen())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, entity.DocumentRejected, res.Document.Status)
	assert.Contains(t, res.Document.StatusReason, "clave privada inaccesible")
	assert.Equal(t, 0, h.authority.count("submit"))

	stored, err := h.orch.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentRejected, stored.Status, "el número consumido queda registrado")
	assert.Equal(t, int64(1), stored.Number)

	entries, err := h.coordinator.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmit_NFCeSinCSCFalla(t *testing.T) {
	h := newHarness(t)
	orch := fiscal.NewFiscalOrchestrator(fiscal.Repositories{
		Documents: h.docs, Counters: h.counters, Cancellations: h.cancels,
		Inutilizations: h.inuts, Issuers: h.issuers, RenderRequests: h.renders,
	}, sefaz.NewXMLBuilderService(), h.store, h.authority, h.coordinator, fiscal.Config{}, testLogger())

	_, err := orch.Emit(context.Background(), saleTwoByTen())
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
}

func TestEmit_EmisorInactivo(t *testing.T) {
	h := newHarness(t)
	issuer := testIssuer()
	issuer.Active = false
	require.NoError(t, h.issuers.Save(context.Background(), issuer))

	_, err := h.orch.Emit(context.Background(), saleTwoByTen())
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
}

// ──────────────────────────────────────────────────────────────────────────────
// Sincronización
// ──────────────────────────────────────────────────────────────────────────────

func TestSyncDocument_AsientaAutorizacionTardia(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authority.submit = func(string) (*entity.AuthorityResult, error) {
		return nil, communicationError("AUTORIZACAO")
	}
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)

	h.authority.query = func(string) (*entity.AuthorityResult, error) { return authorized(), nil }
	doc, err := h.orch.SyncDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentAuthorized, doc.Status)
	assert.Contains(t, doc.AuthorizedXML, "<nfeProc")
}

func TestSyncDocument_DocumentoFinalNoConsulta(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)

	doc, err := h.orch.SyncDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentAuthorized, doc.Status)
	assert.Equal(t, 0, h.authority.count("query"))
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancelamento
// ──────────────────────────────────────────────────────────────────────────────

const validJustification = "Erro na digitacao do valor do produto"

func TestCancel_DentroDelPlazo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	c, err := h.orch.Cancel(ctx, res.Document.ID, validJustification)
	require.NoError(t, err)
	assert.Equal(t, entity.EventRegistered, c.Status)
	assert.Equal(t, "135260000000099", c.EventProtocol)
	assert.Contains(t, c.EventXML, "110111")

	doc, err := h.orch.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentCancelled, doc.Status)

	_, err = h.orch.Cancel(ctx, res.Document.ID, validJustification)
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition, "un documento cancelado no se vuelve a cancelar")
	assert.Equal(t, 1, h.authority.count("cancel"))
}

func TestCancel_FueraDelPlazoNoLlamaALaSEFAZ(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)

	_, err = h.orch.Cancel(ctx, res.Document.ID, validJustification)
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
	assert.Equal(t, 0, h.authority.count("cancel"))
}

func TestCancel_JustificativaCorta(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)

	_, err = h.orch.Cancel(ctx, res.Document.ID, "muito curta")
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)

	_, err = h.orch.Cancel(ctx, res.Document.ID, strings.Repeat("x", 256))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, h.authority.count("cancel"))
}

func TestCancel_DocumentoNoAutorizado(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.coordinator.Activate("SEFAZ fora do ar")
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)

	_, err = h.orch.Cancel(ctx, res.Document.ID, validJustification)
	assert.ErrorIs(t, err, domain.ErrFailedPrecondition)
}

func TestCancel_RechazoNoCambiaElDocumento(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.orch.Emit(ctx, saleTwoByTen())
	require.NoError(t, err)
	h.authority.cancel = func(string) (*entity.AuthorityResult, error) {
		return &entity.AuthorityResult{Outcome: entity.OutcomeRejected, Code: "501", Reason: "Rejeicao: Prazo de cancelamento superior"}, nil
	}

	c, err := h.orch.Cancel(ctx, res.Document.ID, validJustification)
	assert.ErrorIs(t, err, domain.ErrAuthorityRejection)
	assert.Equal(t, entity.EventRejected, c.Status)

	doc, err := h.orch.GetDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DocumentAuthorized, doc.Status)
}

// ──────────────────────────────────────────────────────────────────────────────
// Inutilização
// ──────────────────────────────────────────────────────────────────────────────

func TestVoidRange_FajaInvertidaNoGeneraXML(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.VoidRange(context.Background(), fiscal.VoidRequest{
		Series: 1, Start: 10, End: 5, Justification: validJustification,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, h.authority.count("void"))
	assert.Equal(t, 0, h.inuts.count())
}

func TestVoidRange_ErroresAgrupados(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.VoidRange(context.Background(), fiscal.VoidRequest{
		Model: "99", Series: 1000, Start: 0, End: 5, Justification: "curta",
	})
	require.Error(t, err)
	for _, field := range []string{"model", "series", "range", "justification"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestVoidRange_Registrada(t *testing.T) {
	h := newHarness(t)

	inut, err := h.orch.VoidRange(context.Background(), fiscal.VoidRequest{
		Series: 1, Start: 5, End: 10, Justification: validJustification,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.EventRegistered, inut.Status)
	assert.Equal(t, "135260000000100", inut.Protocol)
	assert.Equal(t, pkgnfe.ModelNFCe, inut.Model)
	assert.Contains(t, inut.RequestXML, "<Signature")
	assert.Equal(t, 1, h.inuts.count())
}

func TestVoidRange_Rechazada(t *testing.T) {
	h := newHarness(t)
	h.authority.void = func() (*entity.AuthorityResult, error) {
		return &entity.AuthorityResult{Outcome: entity.OutcomeRejected, Code: "256", Reason: "Rejeicao: Uma NF-e da faixa ja esta utilizada"}, nil
	}

	inut, err := h.orch.VoidRange(context.Background(), fiscal.VoidRequest{
		Series: 1, Start: 1, End: 1, Justification: validJustification,
	})
	assert.ErrorIs(t, err, domain.ErrAuthorityRejection)
	assert.Equal(t, entity.EventRejected, inut.Status)
}
