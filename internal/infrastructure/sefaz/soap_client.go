package sefaz

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/nfe"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// ── Constantes ────────────────────────────────────────────────────────────────

const (
	soap12NS = "http://www.w3.org/2003/05/soap-envelope"

	// DefaultTimeout timeout de cada llamada a la SEFAZ.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 4 << 20
)

// Nombres de operación registrados en la bitácora de auditoría.
const (
	OperationSubmit = "AUTORIZACAO"
	OperationCancel = "CANCELAMENTO"
	OperationVoid   = "INUTILIZACAO"
	OperationStatus = "STATUS"
	OperationQuery  = "CONSULTA"
)

// ── Puertos ───────────────────────────────────────────────────────────────────

// AttemptRecorder persiste cada intento contra la SEFAZ para auditoría.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *entity.AuthorityAttempt) error
}

// ClientCertificateSource entrega la credencial del handshake mTLS.
type ClientCertificateSource interface {
	ClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error)
}

// ClientConfig parámetros del cliente SOAP.
type ClientConfig struct {
	Environment string // tpAmb
	UF          string // UF del emisor
	Model       string // modelo usado en la consulta de status
	Timeout     time.Duration
	CABundle    []byte // PEM con la cadena ICP-Brasil; vacío usa el pool del sistema
	Endpoints   *EndpointTable
}

// ── Implementación SOAP 1.2 ──────────────────────────────────────────────────

// SOAPClient implementa el AuthorityClient sobre SOAP 1.2 con mTLS.
// No reintenta: un timeout o error de transporte vuelve como CommunicationError.
type SOAPClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	builder    *XMLBuilderService
	codec      *nfe.AccessKeyCodec
	recorder   AttemptRecorder
	log        zerolog.Logger
	ufCode     string
	now        func() time.Time
}

// NewSOAPClient construye el cliente con transporte mTLS.
func NewSOAPClient(cfg ClientConfig, certs ClientCertificateSource, recorder AttemptRecorder, log zerolog.Logger) (*SOAPClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.Model == "" {
		cfg.Model = pkgnfe.ModelNFCe
	}
	ufCode, ok := pkgnfe.UFCode(cfg.UF)
	if !ok {
		return nil, fmt.Errorf("sefaz: UF %q desconocida", cfg.UF)
	}

	tlsCfg := &tls.Config{
		MinVersion:    tls.VersionTLS12,
		Renegotiation: tls.RenegotiateOnceAsClient,
	}
	if certs != nil {
		tlsCfg.GetClientCertificate = certs.ClientCertificate
	}
	if len(cfg.CABundle) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(cfg.CABundle) {
			return nil, fmt.Errorf("sefaz: CA bundle sin certificados PEM válidos")
		}
		tlsCfg.RootCAs = pool
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsCfg,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &SOAPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		builder:    NewXMLBuilderService(),
		codec:      nfe.NewAccessKeyCodec(),
		recorder:   recorder,
		log:        log.With().Str("component", "sefaz_client").Logger(),
		ufCode:     ufCode,
		now:        time.Now,
	}, nil
}

// WithHTTPClient reemplaza el cliente HTTP (tests contra httptest).
func (c *SOAPClient) WithHTTPClient(hc *http.Client) *SOAPClient {
	c.httpClient = hc
	return c
}

// Environment tpAmb configurado.
func (c *SOAPClient) Environment() string { return c.cfg.Environment }

// ── Operaciones ───────────────────────────────────────────────────────────────

// Submit envía una NF-e/NFC-e firmada en lote síncrono.
func (c *SOAPClient) Submit(ctx context.Context, mode entity.EmissionMode, signedNFe []byte, key string) (*entity.AuthorityResult, error) {
	model := modelOf(key, c.cfg.Model)
	body := c.builder.WrapBatch(batchID(c.now()), signedNFe)
	resp, raw, err := c.call(ctx, OperationSubmit, ServiceAuthorization, AuthorizerFor(c.cfg.UF, mode), model, body, key)
	if err != nil {
		return nil, err
	}
	ret := resp.Body.Result.RetEnviNFe
	if ret == nil {
		return nil, c.malformed(OperationSubmit, "retEnviNFe ausente")
	}
	if ret.ProtNFe != nil && ret.CStat == pkgnfe.StatBatchProcessed {
		return c.protocolResult(ret.ProtNFe, raw, key), nil
	}
	return c.result(ret.CStat, ret.XMotivo, "", ret.DhRecbto, raw), nil
}

// Cancel envía el evento de cancelamento firmado.
func (c *SOAPClient) Cancel(ctx context.Context, signedEvent []byte, key string) (*entity.AuthorityResult, error) {
	model := modelOf(key, c.cfg.Model)
	body := c.builder.WrapEventBatch(batchID(c.now()), signedEvent)
	resp, raw, err := c.call(ctx, OperationCancel, ServiceEvent, AuthorizerFor(c.cfg.UF, entity.EmissionNormal), model, body, key)
	if err != nil {
		return nil, err
	}
	ret := resp.Body.Result.RetEnvEvento
	if ret == nil {
		return nil, c.malformed(OperationCancel, "retEnvEvento ausente")
	}
	if ret.CStat == pkgnfe.StatEventBatchProcessed && len(ret.RetEvento) > 0 {
		ev := ret.RetEvento[0]
		res := c.result(ev.Inf.CStat, ev.Inf.XMotivo, ev.Inf.NProt, ev.Inf.DhRegEvento, raw)
		res.AccessKey = ev.Inf.ChNFe
		res.ProtocolXML = ev.outer()
		return res, nil
	}
	return c.result(ret.CStat, ret.XMotivo, "", "", raw), nil
}

// Void envía el pedido de inutilização firmado.
func (c *SOAPClient) Void(ctx context.Context, signedInut []byte, model string) (*entity.AuthorityResult, error) {
	resp, raw, err := c.call(ctx, OperationVoid, ServiceInutilization, AuthorizerFor(c.cfg.UF, entity.EmissionNormal), model, stripDeclaration(signedInut), "")
	if err != nil {
		return nil, err
	}
	ret := resp.Body.Result.RetInutNFe
	if ret == nil {
		return nil, c.malformed(OperationVoid, "retInutNFe ausente")
	}
	return c.result(ret.Inf.CStat, ret.Inf.XMotivo, ret.Inf.NProt, ret.Inf.DhRecbto, raw), nil
}

// QueryStatus consulta el status del servicio del autorizador del modo dado.
func (c *SOAPClient) QueryStatus(ctx context.Context, mode entity.EmissionMode) (*entity.AuthorityResult, error) {
	body, err := c.builder.BuildStatusQuery(c.cfg.Environment, c.ufCode)
	if err != nil {
		return nil, err
	}
	model := c.cfg.Model
	if mode == entity.EmissionSVCAN || mode == entity.EmissionSVCRS {
		model = pkgnfe.ModelNFe
	}
	resp, raw, err := c.call(ctx, OperationStatus, ServiceStatus, AuthorizerFor(c.cfg.UF, mode), model, body, "")
	if err != nil {
		return nil, err
	}
	ret := resp.Body.Result.RetConsStatServ
	if ret == nil {
		return nil, c.malformed(OperationStatus, "retConsStatServ ausente")
	}
	return c.result(ret.CStat, ret.XMotivo, "", ret.DhRecbto, raw), nil
}

// QueryDocument consulta la situación de una chave en el autorizador.
func (c *SOAPClient) QueryDocument(ctx context.Context, key string) (*entity.AuthorityResult, error) {
	if err := c.codec.Validate(key); err != nil {
		return nil, domain.NewValidationError("access_key", "%v", err)
	}
	body, err := c.builder.BuildProtocolQuery(c.cfg.Environment, key)
	if err != nil {
		return nil, err
	}
	mode := modeOfKey(key)
	resp, raw, err := c.call(ctx, OperationQuery, ServiceProtocol, AuthorizerFor(c.cfg.UF, mode), modelOf(key, c.cfg.Model), body, key)
	if err != nil {
		return nil, err
	}
	ret := resp.Body.Result.RetConsSitNFe
	if ret == nil {
		return nil, c.malformed(OperationQuery, "retConsSitNFe ausente")
	}
	if ret.ProtNFe != nil && ret.CStat == ret.ProtNFe.Inf.CStat {
		return c.protocolResult(ret.ProtNFe, raw, key), nil
	}
	res := c.result(ret.CStat, ret.XMotivo, "", "", raw)
	res.AccessKey = ret.ChNFe
	if ret.ProtNFe != nil {
		res.Protocol = ret.ProtNFe.Inf.NProt
		res.ProtocolXML = ret.ProtNFe.outer()
	}
	return res, nil
}

// ── Transporte ───────────────────────────────────────────────────────────────

// call envía el envelope y devuelve la respuesta parseada. El request no hereda
// la cancelación del contexto: una vez enviado se espera respuesta o timeout.
func (c *SOAPClient) call(ctx context.Context, op string, svc Service, authorizer Authorizer, model string, body []byte, key string) (*soapResponse, []byte, error) {
	endpoint, err := c.cfg.Endpoints.Resolve(authorizer, model, c.cfg.Environment, svc)
	if err != nil {
		return nil, nil, err
	}
	envelope := buildEnvelope(svc, body)

	attempt := &entity.AuthorityAttempt{
		ID:         uuid.New().String(),
		Operation:  op,
		Endpoint:   endpoint,
		AccessKey:  key,
		RequestXML: string(envelope),
		StartedAt:  c.now(),
	}
	resp, raw, err := c.exchange(ctx, op, endpoint, svc, envelope, attempt)
	attempt.Duration = time.Since(attempt.StartedAt)
	attempt.ResponseXML = string(raw)
	if err != nil {
		attempt.Outcome = entity.OutcomeCommunicationError
		attempt.Error = err.Error()
	} else if code, reason := resp.status(); code != "" {
		attempt.StatusCode, attempt.StatusReason = code, reason
		attempt.Outcome = string(ClassifyStatus(code))
	}
	c.record(ctx, attempt)
	return resp, raw, err
}

func (c *SOAPClient) exchange(ctx context.Context, op, endpoint string, svc Service, envelope []byte, attempt *entity.AuthorityAttempt) (*soapResponse, []byte, error) {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, nil, fmt.Errorf("sefaz: crear request: %w", err)
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action="`+svc.Action()+`"`)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &domain.CommunicationError{Operation: op, Endpoint: endpoint, Timeout: isTimeout(err), Err: err}
	}
	defer httpResp.Body.Close()
	attempt.HTTPStatus = httpResp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, raw, &domain.CommunicationError{Operation: op, Endpoint: endpoint, Timeout: isTimeout(err), Err: err}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		cause := fmt.Errorf("HTTP %d", httpResp.StatusCode)
		var fault soapResponse
		if xml.Unmarshal(raw, &fault) == nil && fault.Body.Fault != nil {
			cause = fmt.Errorf("SOAP Fault: %s", fault.Body.Fault.text())
		}
		return nil, raw, &domain.CommunicationError{Operation: op, Endpoint: endpoint, StatusCode: httpResp.StatusCode, Err: cause}
	}

	var parsed soapResponse
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, raw, &domain.CommunicationError{Operation: op, Endpoint: endpoint, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("respuesta ilegible: %w", err)}
	}
	if parsed.Body.Fault != nil {
		return nil, raw, &domain.CommunicationError{Operation: op, Endpoint: endpoint, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("SOAP Fault: %s", parsed.Body.Fault.text())}
	}
	return &parsed, raw, nil
}

func (c *SOAPClient) record(ctx context.Context, a *entity.AuthorityAttempt) {
	ev := c.log.Info()
	if a.Outcome == entity.OutcomeCommunicationError {
		ev = c.log.Warn().Str("error", a.Error)
	}
	ev.Str("operation", a.Operation).
		Str("endpoint", a.Endpoint).
		Str("access_key", a.AccessKey).
		Int("http_status", a.HTTPStatus).
		Str("cstat", a.StatusCode).
		Str("outcome", a.Outcome).
		Dur("duration", a.Duration).
		Msg("llamada SEFAZ")

	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), a); err != nil {
		c.log.Error().Err(err).Str("attempt_id", a.ID).Msg("no se pudo registrar el intento en la bitácora")
	}
}

func (c *SOAPClient) malformed(op, detail string) error {
	return &domain.CommunicationError{Operation: op, Err: errors.New(detail)}
}

func (c *SOAPClient) protocolResult(p *protNFe, raw []byte, key string) *entity.AuthorityResult {
	res := c.result(p.Inf.CStat, p.Inf.XMotivo, p.Inf.NProt, p.Inf.DhRecbto, raw)
	res.AccessKey = p.Inf.ChNFe
	res.ProtocolXML = p.outer()
	if key != "" && p.Inf.ChNFe != "" && p.Inf.ChNFe != key {
		c.log.Warn().Str("expected", key).Str("received", p.Inf.ChNFe).Msg("la SEFAZ devolvió una chave distinta")
	} else if p.Inf.ChNFe != "" {
		if err := c.codec.Validate(p.Inf.ChNFe); err != nil {
			c.log.Warn().Err(err).Str("received", p.Inf.ChNFe).Msg("chave devuelta con DV inválido")
		}
	}
	return res
}

func (c *SOAPClient) result(code, reason, protocol, receivedAt string, raw []byte) *entity.AuthorityResult {
	res := &entity.AuthorityResult{
		Outcome:     ClassifyStatus(code),
		Code:        code,
		Reason:      strings.TrimSpace(reason),
		Protocol:    protocol,
		ResponseXML: string(raw),
	}
	if t, err := time.Parse(time.RFC3339, receivedAt); err == nil {
		res.ReceivedAt = &t
	}
	return res
}

// ClassifyStatus mapea el cStat a un resultado normalizado.
func ClassifyStatus(code string) entity.AuthorityOutcome {
	switch code {
	case pkgnfe.StatAuthorized:
		return entity.OutcomeAuthorized
	case pkgnfe.StatCancelled:
		return entity.OutcomeCancelled
	case pkgnfe.StatDenied, "301", "302", "303":
		return entity.OutcomeDenied
	case pkgnfe.StatEventRegistered, pkgnfe.StatEventOutOfTerm:
		return entity.OutcomeEventRegistered
	case pkgnfe.StatVoided:
		return entity.OutcomeVoided
	case pkgnfe.StatServiceOnline:
		return entity.OutcomeServiceOnline
	}
	return entity.OutcomeRejected
}

func buildEnvelope(svc Service, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap12:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:soap12="` + soap12NS + `">`)
	b.WriteString(`<soap12:Body><nfeDadosMsg xmlns="` + svc.Namespace() + `">`)
	b.Write(stripDeclaration(body))
	b.WriteString(`</nfeDadosMsg></soap12:Body></soap12:Envelope>`)
	return b.Bytes()
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// batchID idLote numérico de hasta 15 dígitos.
func batchID(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/1000%1_000_000_000_000_000, 10)
}

func modelOf(key, fallback string) string {
	if len(key) == nfe.AccessKeyLength {
		return key[20:22]
	}
	return fallback
}

// modeOfKey modo de emisión codificado en la chave (tpEmis, posición 35).
func modeOfKey(key string) entity.EmissionMode {
	if len(key) != nfe.AccessKeyLength {
		return entity.EmissionNormal
	}
	switch key[34:35] {
	case pkgnfe.EmissionTypeSVCAN:
		return entity.EmissionSVCAN
	case pkgnfe.EmissionTypeSVCRS:
		return entity.EmissionSVCRS
	}
	return entity.EmissionNormal
}

// ── Estructuras de respuesta (nombres locales, sin depender del prefijo) ──────

type soapResponse struct {
	Body struct {
		Fault  *soapFault `xml:"Fault"`
		Result struct {
			RetEnviNFe      *retEnviNFe      `xml:"retEnviNFe"`
			RetEnvEvento    *retEnvEvento    `xml:"retEnvEvento"`
			RetInutNFe      *retInutNFe      `xml:"retInutNFe"`
			RetConsStatServ *retConsStatServ `xml:"retConsStatServ"`
			RetConsSitNFe   *retConsSitNFe   `xml:"retConsSitNFe"`
		} `xml:"nfeResultMsg"`
	} `xml:"Body"`
}

// status cStat/xMotivo más específico de la respuesta.
func (r *soapResponse) status() (string, string) {
	if r == nil {
		return "", ""
	}
	res := r.Body.Result
	switch {
	case res.RetEnviNFe != nil && res.RetEnviNFe.ProtNFe != nil:
		return res.RetEnviNFe.ProtNFe.Inf.CStat, res.RetEnviNFe.ProtNFe.Inf.XMotivo
	case res.RetEnviNFe != nil:
		return res.RetEnviNFe.CStat, res.RetEnviNFe.XMotivo
	case res.RetEnvEvento != nil && len(res.RetEnvEvento.RetEvento) > 0:
		return res.RetEnvEvento.RetEvento[0].Inf.CStat, res.RetEnvEvento.RetEvento[0].Inf.XMotivo
	case res.RetEnvEvento != nil:
		return res.RetEnvEvento.CStat, res.RetEnvEvento.XMotivo
	case res.RetInutNFe != nil:
		return res.RetInutNFe.Inf.CStat, res.RetInutNFe.Inf.XMotivo
	case res.RetConsStatServ != nil:
		return res.RetConsStatServ.CStat, res.RetConsStatServ.XMotivo
	case res.RetConsSitNFe != nil:
		return res.RetConsSitNFe.CStat, res.RetConsSitNFe.XMotivo
	}
	return "", ""
}

type soapFault struct {
	Code   string `xml:"Code>Value"`
	Reason string `xml:"Reason>Text"`
}

func (f *soapFault) text() string {
	return strings.TrimSpace(f.Code + " " + f.Reason)
}

type retEnviNFe struct {
	CStat    string   `xml:"cStat"`
	XMotivo  string   `xml:"xMotivo"`
	DhRecbto string   `xml:"dhRecbto"`
	ProtNFe  *protNFe `xml:"protNFe"`
}

type protNFe struct {
	Versao string `xml:"versao,attr"`
	Inf    struct {
		ChNFe    string `xml:"chNFe"`
		DhRecbto string `xml:"dhRecbto"`
		NProt    string `xml:"nProt"`
		CStat    string `xml:"cStat"`
		XMotivo  string `xml:"xMotivo"`
	} `xml:"infProt"`
	Inner string `xml:",innerxml"`
}

// outer reconstruye <protNFe> para componer el nfeProc.
func (p *protNFe) outer() string {
	versao := p.Versao
	if versao == "" {
		versao = pkgnfe.LayoutVersion
	}
	return `<protNFe versao="` + versao + `">` + strings.TrimSpace(p.Inner) + `</protNFe>`
}

type retEnvEvento struct {
	CStat     string      `xml:"cStat"`
	XMotivo   string      `xml:"xMotivo"`
	RetEvento []retEvento `xml:"retEvento"`
}

type retEvento struct {
	Versao string `xml:"versao,attr"`
	Inf    struct {
		CStat       string `xml:"cStat"`
		XMotivo     string `xml:"xMotivo"`
		ChNFe       string `xml:"chNFe"`
		DhRegEvento string `xml:"dhRegEvento"`
		NProt       string `xml:"nProt"`
	} `xml:"infEvento"`
	Inner string `xml:",innerxml"`
}

func (r retEvento) outer() string {
	versao := r.Versao
	if versao == "" {
		versao = pkgnfe.EventVersion
	}
	return `<retEvento versao="` + versao + `">` + strings.TrimSpace(r.Inner) + `</retEvento>`
}

type retInutNFe struct {
	Inf struct {
		CStat    string `xml:"cStat"`
		XMotivo  string `xml:"xMotivo"`
		DhRecbto string `xml:"dhRecbto"`
		NProt    string `xml:"nProt"`
	} `xml:"infInut"`
}

type retConsStatServ struct {
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	DhRecbto string `xml:"dhRecbto"`
}

type retConsSitNFe struct {
	CStat   string   `xml:"cStat"`
	XMotivo string   `xml:"xMotivo"`
	ChNFe   string   `xml:"chNFe"`
	ProtNFe *protNFe `xml:"protNFe"`
}
