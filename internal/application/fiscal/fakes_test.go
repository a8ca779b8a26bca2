package fiscal_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Fiscal-api/internal/application/fiscal"
	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz/signer"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// ──────────────────────────────────────────────────────────────────────────────
// Repositorios en memoria
// ──────────────────────────────────────────────────────────────────────────────

type memDocuments struct {
	mu   sync.Mutex
	byID map[string]entity.FiscalDocument
}

func newMemDocuments() *memDocuments {
	return &memDocuments{byID: map[string]entity.FiscalDocument{}}
}

func (m *memDocuments) Create(_ context.Context, doc *entity.FiscalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byID {
		if d.AccessKey == doc.AccessKey {
			return domain.ErrConflict
		}
	}
	m.byID[doc.ID] = *doc
	return nil
}

func (m *memDocuments) Update(_ context.Context, doc *entity.FiscalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[doc.ID]; !ok {
		return domain.ErrNotFound
	}
	m.byID[doc.ID] = *doc
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id string) (*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &d, nil
}

func (m *memDocuments) GetByAccessKey(_ context.Context, key string) (*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byID {
		if d.AccessKey == key {
			d := d
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDocuments) ListByStatus(_ context.Context, status entity.DocumentStatus, limit int) ([]*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.FiscalDocument
	for _, d := range m.byID {
		if d.Status == status && len(out) < limit {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

type memCounters struct {
	mu   sync.Mutex
	next map[string]int64
}

func newMemCounters() *memCounters { return &memCounters{next: map[string]int64{}} }

func counterKey(issuerID, model string, series int) string {
	return fmt.Sprintf("%s/%s/%d", issuerID, model, series)
}

func (m *memCounters) NextNumber(_ context.Context, issuerID, model string, series int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey(issuerID, model, series)
	if m.next[k] == 0 {
		m.next[k] = 1
	}
	n := m.next[k]
	m.next[k] = n + 1
	return n, nil
}

func (m *memCounters) Ensure(_ context.Context, issuerID, model string, series int, next int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := counterKey(issuerID, model, series)
	if m.next[k] == 0 {
		m.next[k] = next
	}
	return nil
}

func (m *memCounters) Peek(_ context.Context, issuerID, model string, series int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.next[counterKey(issuerID, model, series)]; n > 0 {
		return n, nil
	}
	return 1, nil
}

type memCancellations struct {
	mu   sync.Mutex
	byID map[string]entity.Cancellation
}

func (m *memCancellations) Create(_ context.Context, c *entity.Cancellation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = *c
	return nil
}

func (m *memCancellations) Update(_ context.Context, c *entity.Cancellation) error {
	return m.Create(context.Background(), c)
}

func (m *memCancellations) GetRegisteredByDocument(_ context.Context, documentID string) (*entity.Cancellation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if c.DocumentID == documentID && c.Status == entity.EventRegistered {
			c := c
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memInutilizations struct {
	mu   sync.Mutex
	byID map[string]entity.Inutilization
}

func (m *memInutilizations) Create(_ context.Context, i *entity.Inutilization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[i.ID] = *i
	return nil
}

func (m *memInutilizations) Update(ctx context.Context, i *entity.Inutilization) error {
	return m.Create(ctx, i)
}

func (m *memInutilizations) GetByID(_ context.Context, id string) (*entity.Inutilization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &i, nil
}

func (m *memInutilizations) List(_ context.Context, limit, offset int) ([]*entity.Inutilization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Inutilization
	for _, i := range m.byID {
		i := i
		out = append(out, &i)
	}
	return out, nil
}

func (m *memInutilizations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type memIssuers struct {
	mu     sync.Mutex
	issuer *entity.Issuer
}

func (m *memIssuers) Get(context.Context) (*entity.Issuer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issuer == nil {
		return nil, domain.ErrNotFound
	}
	i := *m.issuer
	return &i, nil
}

func (m *memIssuers) Save(_ context.Context, issuer *entity.Issuer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := *issuer
	m.issuer = &i
	return nil
}

type memRenders struct {
	mu   sync.Mutex
	reqs []entity.RenderRequest
}

func (m *memRenders) Create(_ context.Context, r *entity.RenderRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, *r)
	return nil
}

func (m *memRenders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

type memQueue struct {
	mu   sync.Mutex
	byID map[string]entity.QueueEntry
}

func newMemQueue() *memQueue { return &memQueue{byID: map[string]entity.QueueEntry{}} }

func (m *memQueue) Enqueue(_ context.Context, e *entity.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.DocumentID == e.DocumentID {
			*e = existing
			return nil
		}
	}
	m.byID[e.ID] = *e
	return nil
}

func (m *memQueue) Update(_ context.Context, e *entity.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[e.ID]; !ok {
		return domain.ErrNotFound
	}
	m.byID[e.ID] = *e
	return nil
}

func (m *memQueue) GetByID(_ context.Context, id string) (*entity.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &e, nil
}

func (m *memQueue) ListPending(_ context.Context, limit int) ([]*entity.QueueEntry, error) {
	all, _ := m.List(context.Background(), false)
	var out []*entity.QueueEntry
	for _, e := range all {
		if e.State == entity.QueueAwaiting && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memQueue) RequeueStale(_ context.Context, before, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.byID {
		if e.State == entity.QueueTransmitting && !e.UpdatedAt.After(before) {
			e.State = entity.QueueAwaiting
			e.UpdatedAt = now
			m.byID[id] = e
			n++
		}
	}
	return n, nil
}

func (m *memQueue) List(_ context.Context, includeDone bool) ([]*entity.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.QueueEntry
	for _, e := range m.byID {
		if !includeDone && e.State == entity.QueueTransmitted {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// SEFAZ falsa
// ──────────────────────────────────────────────────────────────────────────────

type fakeAuthority struct {
	mu     sync.Mutex
	calls  map[string]int
	submit func(key string) (*entity.AuthorityResult, error)
	cancel func(key string) (*entity.AuthorityResult, error)
	void   func() (*entity.AuthorityResult, error)
	status func() (*entity.AuthorityResult, error)
	query  func(key string) (*entity.AuthorityResult, error)
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		calls:  map[string]int{},
		submit: func(string) (*entity.AuthorityResult, error) { return authorized(), nil },
		cancel: func(string) (*entity.AuthorityResult, error) {
			return &entity.AuthorityResult{Outcome: entity.OutcomeEventRegistered, Code: "135", Reason: "Evento registrado e vinculado a NF-e", Protocol: "135260000000099"}, nil
		},
		void: func() (*entity.AuthorityResult, error) {
			return &entity.AuthorityResult{Outcome: entity.OutcomeVoided, Code: "102", Reason: "Inutilizacao de numero homologado", Protocol: "135260000000100"}, nil
		},
		status: func() (*entity.AuthorityResult, error) {
			return &entity.AuthorityResult{Outcome: entity.OutcomeServiceOnline, Code: "107"}, nil
		},
		query: func(string) (*entity.AuthorityResult, error) {
			return &entity.AuthorityResult{Outcome: entity.OutcomeRejected, Code: "217", Reason: "NF-e nao consta na base de dados da SEFAZ"}, nil
		},
	}
}

func authorized() *entity.AuthorityResult {
	return &entity.AuthorityResult{
		Outcome:     entity.OutcomeAuthorized,
		Code:        "100",
		Reason:      "Autorizado o uso da NF-e",
		Protocol:    "135260000000001",
		ProtocolXML: `<protNFe versao="4.00"><infProt><nProt>135260000000001</nProt><cStat>100</cStat></infProt></protNFe>`,
	}
}

func communicationError(op string) error {
	return &domain.CommunicationError{Operation: op, Endpoint: "https://sefaz", Timeout: true, Err: context.DeadlineExceeded}
}

func (f *fakeAuthority) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAuthority) hit(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeAuthority) Submit(_ context.Context, _ entity.EmissionMode, _ []byte, key string) (*entity.AuthorityResult, error) {
	f.hit("submit")
	return f.submit(key)
}

func (f *fakeAuthority) Cancel(_ context.Context, _ []byte, key string) (*entity.AuthorityResult, error) {
	f.hit("cancel")
	return f.cancel(key)
}

func (f *fakeAuthority) Void(context.Context, []byte, string) (*entity.AuthorityResult, error) {
	f.hit("void")
	return f.void()
}

func (f *fakeAuthority) QueryStatus(context.Context, entity.EmissionMode) (*entity.AuthorityResult, error) {
	f.hit("status")
	return f.status()
}

func (f *fakeAuthority) QueryDocument(_ context.Context, key string) (*entity.AuthorityResult, error) {
	f.hit("query")
	return f.query(key)
}

// ──────────────────────────────────────────────────────────────────────────────
// Certificado de prueba
// ──────────────────────────────────────────────────────────────────────────────

var (
	certOnce sync.Once
	certPEM  []byte
	keyPEM   []byte
)

func testCredentialPEM(t *testing.T) ([]byte, []byte) {
	t.Helper()
	certOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(42),
			Subject:      pkix.Name{CommonName: "EMPRESA TESTE LTDA:11222333000181"},
			Issuer:       pkix.Name{CommonName: "AC TESTE"},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(365 * 24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
		if err != nil {
			panic(err)
		}
		certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	})
	return certPEM, keyPEM
}

// ──────────────────────────────────────────────────────────────────────────────
// Harness
// ──────────────────────────────────────────────────────────────────────────────

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	docs        *memDocuments
	counters    *memCounters
	cancels     *memCancellations
	inuts       *memInutilizations
	issuers     *memIssuers
	renders     *memRenders
	queue       *memQueue
	authority   *fakeAuthority
	store       *signer.CertificateStore
	clock       *testClock
	coordinator *fiscal.ContingencyCoordinator
	orch        *fiscal.FiscalOrchestrator
}

func testIssuer() *entity.Issuer {
	return &entity.Issuer{
		ID:                "issuer-1",
		CNPJ:              "11222333000181",
		LegalName:         "EMPRESA TESTE LTDA",
		StateRegistration: "110042490114",
		TaxRegime:         pkgnfe.RegimeSimples,
		Active:            true,
		Address: entity.Address{
			Street: "Rua das Flores", Number: "100", District: "Centro",
			CityCode: "3550308", CityName: "Sao Paulo", UF: "SP", ZipCode: "01001000",
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		docs:      newMemDocuments(),
		counters:  newMemCounters(),
		cancels:   &memCancellations{byID: map[string]entity.Cancellation{}},
		inuts:     &memInutilizations{byID: map[string]entity.Inutilization{}},
		issuers:   &memIssuers{issuer: testIssuer()},
		renders:   &memRenders{},
		queue:     newMemQueue(),
		authority: newFakeAuthority(),
		store:     signer.NewCertificateStore(zerolog.Nop()),
		clock:     &testClock{now: time.Now()},
	}
	cert, key := testCredentialPEM(t)
	_, err := h.store.LoadPEM(cert, key)
	require.NoError(t, err)

	h.coordinator = fiscal.NewContingencyCoordinator(h.queue, h.authority, fiscal.ContingencyConfig{
		Mode:        entity.EmissionOffline,
		MaxAttempts: 5,
	}, zerolog.Nop()).WithClock(h.clock.Now)

	h.orch = fiscal.NewFiscalOrchestrator(fiscal.Repositories{
		Documents:      h.docs,
		Counters:       h.counters,
		Cancellations:  h.cancels,
		Inutilizations: h.inuts,
		Issuers:        h.issuers,
		RenderRequests: h.renders,
	}, sefaz.NewXMLBuilderService(), h.store, h.authority, h.coordinator, fiscal.Config{
		Environment:   pkgnfe.EnvironmentHomologation,
		DefaultModel:  pkgnfe.ModelNFCe,
		DefaultSeries: 1,
		CSCID:         "000001",
		CSCToken:      "0123456789ABCDEF0123456789ABCDEF",
	}, zerolog.Nop()).WithClock(h.clock.Now)
	return h
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

// emptyCredentials almacén sin certificado cargado.
func emptyCredentials() *signer.CertificateStore { return signer.NewCertificateStore(zerolog.Nop()) }

// saleTwoByTen venta de dos unidades a 10,00 pagada en efectivo.
func saleTwoByTen() fiscal.EmitRequest {
	return fiscal.EmitRequest{
		Items: []entity.FiscalItem{{
			Code:        "P001",
			Description: "Cerveja long neck",
			NCM:         "22030000",
			CFOP:        "5102",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   decimal.RequireFromString("10.00"),
		}},
		Payments: []entity.Payment{{Method: pkgnfe.PaymentCash, Amount: decimal.RequireFromString("20.00")}},
	}
}
