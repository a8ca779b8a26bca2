package sefaz_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

type memoryRecorder struct {
	mu       sync.Mutex
	attempts []*entity.AuthorityAttempt
}

func (r *memoryRecorder) Record(_ context.Context, a *entity.AuthorityAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *memoryRecorder) all() []*entity.AuthorityAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.AuthorityAttempt(nil), r.attempts...)
}

type captured struct {
	mu          sync.Mutex
	contentType string
	body        string
}

func (c *captured) get() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contentType, c.body
}

// fakeSEFAZ levanta un servidor que responde siempre con status y body.
func fakeSEFAZ(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got.mu.Lock()
		got.contentType = r.Header.Get("Content-Type")
		got.body = string(raw)
		got.mu.Unlock()
		w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newClient(t *testing.T, url string, rec *memoryRecorder) *sefaz.SOAPClient {
	t.Helper()
	table := sefaz.DefaultEndpoints()
	for _, svc := range []sefaz.Service{
		sefaz.ServiceAuthorization, sefaz.ServiceEvent, sefaz.ServiceInutilization,
		sefaz.ServiceStatus, sefaz.ServiceProtocol,
	} {
		table.Override(svc, url)
	}
	client, err := sefaz.NewSOAPClient(sefaz.ClientConfig{
		Environment: pkgnfe.EnvironmentHomologation,
		UF:          "SP",
		Timeout:     2 * time.Second,
		Endpoints:   table,
	}, nil, rec, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func envelope(result string) string {
	return `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
		`<nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/X">` + result + `</nfeResultMsg></soap:Body></soap:Envelope>`
}

func retEnviNFe(cStat, xMotivo string) string {
	return envelope(`<retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>2</tpAmb><cStat>104</cStat><xMotivo>Lote processado</xMotivo>` +
		`<protNFe versao="4.00"><infProt><tpAmb>2</tpAmb><chNFe>` + testKey + `</chNFe><dhRecbto>2026-10-16T10:31:00-03:00</dhRecbto>` +
		`<nProt>135260000000001</nProt><cStat>` + cStat + `</cStat><xMotivo>` + xMotivo + `</xMotivo></infProt></protNFe></retEnviNFe>`)
}

// ──────────────────────────────────────────────────────────────────────────────
// Submit
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmit_Autorizada(t *testing.T) {
	srv, got := fakeSEFAZ(t, http.StatusOK, retEnviNFe("100", "Autorizado o uso da NF-e"))
	rec := &memoryRecorder{}
	client := newClient(t, srv.URL, rec)

	res, err := client.Submit(context.Background(), entity.EmissionNormal, []byte(`<NFe xmlns="http://www.portalfiscal.inf.br/nfe"/>`), testKey)
	require.NoError(t, err)

	assert.Equal(t, entity.OutcomeAuthorized, res.Outcome)
	assert.Equal(t, "100", res.Code)
	assert.Equal(t, "135260000000001", res.Protocol)
	assert.Equal(t, testKey, res.AccessKey)
	require.NotNil(t, res.ReceivedAt)
	assert.True(t, strings.HasPrefix(res.ProtocolXML, `<protNFe versao="4.00"><infProt>`))

	contentType, body := got.get()
	assert.Contains(t, contentType, "application/soap+xml")
	assert.Contains(t, contentType, `action="http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4/nfeAutorizacaoLote"`)
	assert.Contains(t, body, `<nfeDadosMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4"><enviNFe`)
	assert.Contains(t, body, "<indSinc>1</indSinc>")

	attempts := rec.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, sefaz.OperationSubmit, attempts[0].Operation)
	assert.Equal(t, "100", attempts[0].StatusCode)
	assert.Equal(t, string(entity.OutcomeAuthorized), attempts[0].Outcome)
	assert.Equal(t, http.StatusOK, attempts[0].HTTPStatus)
}

func TestSubmit_RechazoConservaMotivoLiteral(t *testing.T) {
	srv, _ := fakeSEFAZ(t, http.StatusOK, retEnviNFe("539", "Rejeição: Duplicidade de NF-e, com diferença na Chave de Acesso"))
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.Submit(context.Background(), entity.EmissionNormal, []byte(`<NFe/>`), testKey)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRejected, res.Outcome)
	assert.Equal(t, "539", res.Code)
	assert.Equal(t, "Rejeição: Duplicidade de NF-e, com diferença na Chave de Acesso", res.Reason)
}

func TestSubmit_LoteRechazadoSinProtocolo(t *testing.T) {
	body := envelope(`<retEnviNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><cStat>225</cStat><xMotivo>Rejeição: Falha no Schema XML</xMotivo></retEnviNFe>`)
	srv, _ := fakeSEFAZ(t, http.StatusOK, body)
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.Submit(context.Background(), entity.EmissionNormal, []byte(`<NFe/>`), testKey)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRejected, res.Outcome)
	assert.Equal(t, "225", res.Code)
}

func TestSubmit_HTTP500EsErrorDeComunicacion(t *testing.T) {
	fault := `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><soap:Fault><soap:Code><soap:Value>soap:Receiver</soap:Value></soap:Code>` +
		`<soap:Reason><soap:Text>Server was unable to process request</soap:Text></soap:Reason></soap:Fault></soap:Body></soap:Envelope>`
	srv, _ := fakeSEFAZ(t, http.StatusInternalServerError, fault)
	rec := &memoryRecorder{}
	client := newClient(t, srv.URL, rec)

	_, err := client.Submit(context.Background(), entity.EmissionNormal, []byte(`<NFe/>`), testKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCommunication))

	var ce *domain.CommunicationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusInternalServerError, ce.StatusCode)
	assert.False(t, ce.Timeout)
	assert.Contains(t, ce.Err.Error(), "unable to process")

	attempts := rec.all()
	require.Len(t, attempts, 1)
	assert.Equal(t, entity.OutcomeCommunicationError, attempts[0].Outcome)
}

func TestSubmit_TimeoutSeClasifica(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := newClient(t, srv.URL, &memoryRecorder{}).WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond})

	_, err := client.Submit(context.Background(), entity.EmissionNormal, []byte(`<NFe/>`), testKey)
	require.Error(t, err)

	var ce *domain.CommunicationError
	require.True(t, errors.As(err, &ce))
	assert.True(t, ce.Timeout)
}

func TestSubmit_RespuestaIlegibleEsErrorDeComunicacion(t *testing.T) {
	srv, _ := fakeSEFAZ(t, http.StatusOK, "<html>gateway</html")
	client := newClient(t, srv.URL, &memoryRecorder{})

	_, err := client.Submit(context.Background(), entity.EmissionNormal, []byte(`<NFe/>`), testKey)
	assert.True(t, domain.IsCommunication(err))
}

func TestSubmit_ContextoCanceladoNoAbortaElEnvio(t *testing.T) {
	srv, _ := fakeSEFAZ(t, http.StatusOK, retEnviNFe("100", "Autorizado o uso da NF-e"))
	client := newClient(t, srv.URL, &memoryRecorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := client.Submit(ctx, entity.EmissionNormal, []byte(`<NFe/>`), testKey)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeAuthorized, res.Outcome)
}

// ──────────────────────────────────────────────────────────────────────────────
// Eventos, inutilização y consultas
// ──────────────────────────────────────────────────────────────────────────────

func TestCancel_EventoRegistrado(t *testing.T) {
	body := envelope(`<retEnvEvento xmlns="http://www.portalfiscal.inf.br/nfe" versao="1.00"><cStat>128</cStat><xMotivo>Lote de Evento Processado</xMotivo>` +
		`<retEvento versao="1.00"><infEvento><cStat>135</cStat><xMotivo>Evento registrado e vinculado a NF-e</xMotivo><chNFe>` + testKey + `</chNFe>` +
		`<dhRegEvento>2026-10-16T11:00:00-03:00</dhRegEvento><nProt>135260000000099</nProt></infEvento></retEvento></retEnvEvento>`)
	srv, got := fakeSEFAZ(t, http.StatusOK, body)
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.Cancel(context.Background(), []byte(`<evento/>`), testKey)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeEventRegistered, res.Outcome)
	assert.Equal(t, "135260000000099", res.Protocol)
	assert.True(t, strings.HasPrefix(res.ProtocolXML, `<retEvento versao="1.00">`))
	contentType, sent := got.get()
	assert.Contains(t, contentType, "NFeRecepcaoEvento4/nfeRecepcaoEvento")
	assert.Contains(t, sent, "<envEvento")
}

func TestVoid_Homologado(t *testing.T) {
	body := envelope(`<retInutNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><infInut><cStat>102</cStat><xMotivo>Inutilizacao de numero homologado</xMotivo>` +
		`<dhRecbto>2026-10-16T11:00:00-03:00</dhRecbto><nProt>135260000000100</nProt></infInut></retInutNFe>`)
	srv, _ := fakeSEFAZ(t, http.StatusOK, body)
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.Void(context.Background(), []byte(`<inutNFe/>`), pkgnfe.ModelNFCe)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeVoided, res.Outcome)
	assert.Equal(t, "135260000000100", res.Protocol)
}

func TestQueryStatus_ServicioEnOperacion(t *testing.T) {
	body := envelope(`<retConsStatServ xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><cStat>107</cStat><xMotivo>Servico em Operacao</xMotivo></retConsStatServ>`)
	srv, got := fakeSEFAZ(t, http.StatusOK, body)
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.QueryStatus(context.Background(), entity.EmissionNormal)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeServiceOnline, res.Outcome)
	_, sent := got.get()
	assert.Contains(t, sent, "<xServ>STATUS</xServ>")
	assert.Contains(t, sent, "<cUF>35</cUF>")
}

func TestQueryDocument_Autorizada(t *testing.T) {
	body := envelope(`<retConsSitNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo><chNFe>` + testKey + `</chNFe>` +
		`<protNFe versao="4.00"><infProt><chNFe>` + testKey + `</chNFe><nProt>135260000000001</nProt><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo></infProt></protNFe></retConsSitNFe>`)
	srv, _ := fakeSEFAZ(t, http.StatusOK, body)
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.QueryDocument(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeAuthorized, res.Outcome)
	assert.Equal(t, "135260000000001", res.Protocol)
	assert.NotEmpty(t, res.ProtocolXML)
}

func TestQueryDocument_NoConsta(t *testing.T) {
	body := envelope(`<retConsSitNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><cStat>217</cStat><xMotivo>Rejeicao: NF-e nao consta na base de dados da SEFAZ</xMotivo></retConsSitNFe>`)
	srv, _ := fakeSEFAZ(t, http.StatusOK, body)
	client := newClient(t, srv.URL, &memoryRecorder{})

	res, err := client.QueryDocument(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, entity.OutcomeRejected, res.Outcome)
	assert.Equal(t, pkgnfe.StatDocumentNotFound, res.Code)
}

func TestQueryDocument_ChaveInvalidaNoLlamaALaRed(t *testing.T) {
	rec := &memoryRecorder{}
	client := newClient(t, "http://127.0.0.1:1", rec)

	_, err := client.QueryDocument(context.Background(), "123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Empty(t, rec.all())
}

// ──────────────────────────────────────────────────────────────────────────────
// ClassifyStatus
// ──────────────────────────────────────────────────────────────────────────────

func TestClassifyStatus(t *testing.T) {
	cases := map[string]entity.AuthorityOutcome{
		"100": entity.OutcomeAuthorized,
		"101": entity.OutcomeCancelled,
		"110": entity.OutcomeDenied,
		"302": entity.OutcomeDenied,
		"135": entity.OutcomeEventRegistered,
		"155": entity.OutcomeEventRegistered,
		"102": entity.OutcomeVoided,
		"107": entity.OutcomeServiceOnline,
		"108": entity.OutcomeRejected,
		"539": entity.OutcomeRejected,
	}
	for code, want := range cases {
		assert.Equal(t, want, sefaz.ClassifyStatus(code), "cStat %s", code)
	}
}

func TestEndpoints_ResolveContingenciaIgnoraOverride(t *testing.T) {
	table := sefaz.DefaultEndpoints()
	table.Override(sefaz.ServiceAuthorization, "https://override")

	url, err := table.Resolve(sefaz.AuthorizerSP, pkgnfe.ModelNFCe, pkgnfe.EnvironmentHomologation, sefaz.ServiceAuthorization)
	require.NoError(t, err)
	assert.Equal(t, "https://override", url)

	url, err = table.Resolve(sefaz.AuthorizerSVCAN, pkgnfe.ModelNFe, pkgnfe.EnvironmentProduction, sefaz.ServiceAuthorization)
	require.NoError(t, err)
	assert.Equal(t, "https://www.svc.fazenda.gov.br/NFeAutorizacao4/NFeAutorizacao4.asmx", url)

	_, err = table.Resolve(sefaz.AuthorizerSVCRS, pkgnfe.ModelNFe, pkgnfe.EnvironmentProduction, sefaz.ServiceInutilization)
	require.Error(t, err)
}

func TestContingencyModeFor(t *testing.T) {
	assert.Equal(t, entity.EmissionOffline, sefaz.ContingencyModeFor("SP", pkgnfe.ModelNFCe))
	assert.Equal(t, entity.EmissionSVCAN, sefaz.ContingencyModeFor("SP", pkgnfe.ModelNFe))
	assert.Equal(t, entity.EmissionSVCRS, sefaz.ContingencyModeFor("PR", pkgnfe.ModelNFe))
	assert.Equal(t, sefaz.AuthorizerSVRS, sefaz.AuthorizerFor("SC", entity.EmissionNormal))
}
