package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus ciclo de vida del documento fiscal.
type DocumentStatus string

// Estados: PENDING → AUTHORIZED | REJECTED | DENIED; AUTHORIZED → CANCELLED.
const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentAuthorized DocumentStatus = "AUTHORIZED"
	DocumentRejected   DocumentStatus = "REJECTED"
	DocumentDenied     DocumentStatus = "DENIED"
	DocumentCancelled  DocumentStatus = "CANCELLED"
)

// EmissionMode modo de emisión; su código (tpEmis) forma parte de la chave de acesso.
type EmissionMode string

const (
	EmissionNormal  EmissionMode = "NORMAL"
	EmissionOffline EmissionMode = "OFFLINE" // contingência off-line NFC-e (tpEmis 9)
	EmissionSVCAN   EmissionMode = "SVC_AN"  // tpEmis 6
	EmissionSVCRS   EmissionMode = "SVC_RS"  // tpEmis 7
)

// Code devuelve el tpEmis del modo.
func (m EmissionMode) Code() string {
	switch m {
	case EmissionOffline:
		return "9"
	case EmissionSVCAN:
		return "6"
	case EmissionSVCRS:
		return "7"
	default:
		return "1"
	}
}

// IsContingency indica si el modo es una variante de contingencia.
func (m EmissionMode) IsContingency() bool {
	return m != EmissionNormal && m != ""
}

// Buyer destinatario; opcional en NFC-e.
type Buyer struct {
	Document  string // CPF o CNPJ
	ForeignID string // idEstrangeiro
	Name      string
	UF        string // "EX" para exterior
	Email     string
	Address   *Address
}

// FiscalItem línea del documento (det).
type FiscalItem struct {
	Code         string
	EAN          string
	Description  string
	NCM          string // clasificación fiscal (8 dígitos)
	CEST         string
	CFOP         string
	Unit         string
	Origin       string // origem da mercadoria (0 nacional)
	TaxSituation string // CST (regime normal) o CSOSN (Simples)
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
	ICMSRate     decimal.Decimal
	PISRate      decimal.Decimal
	COFINSRate   decimal.Decimal

	// Calculados
	Total       decimal.Decimal
	ICMSBase    decimal.Decimal
	ICMSValue   decimal.Decimal
	PISBase     decimal.Decimal
	PISValue    decimal.Decimal
	COFINSBase  decimal.Decimal
	COFINSValue decimal.Decimal
}

// Payment medio de pago (detPag).
type Payment struct {
	Method string // tPag
	Amount decimal.Decimal
}

// DocumentTotals totales calculados (ICMSTot + troco).
type DocumentTotals struct {
	Products decimal.Decimal
	Discount decimal.Decimal
	ICMSBase decimal.Decimal
	ICMS     decimal.Decimal
	PIS      decimal.Decimal
	COFINS   decimal.Decimal
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Change   decimal.Decimal
}

// FiscalDocument NF-e/NFC-e emitida o intentada.
// Invariante: AccessKey se deriva de (UF, AAMM, CNPJ, modelo, serie, número, tpEmis, cNF).
type FiscalDocument struct {
	ID             string
	IssuerID       string
	SaleID         string
	Model          string
	Series         int
	Number         int64
	AccessKey      string
	Seed           int // cNF
	IssuedAt       time.Time
	EmissionMode   EmissionMode
	Environment    string
	Operation      string // natOp
	Buyer          *Buyer
	Items          []FiscalItem
	Payments       []Payment
	Totals         DocumentTotals
	AdditionalInfo string

	Status       DocumentStatus
	StatusCode   string // último cStat recibido
	StatusReason string // último xMotivo o error local
	Protocol     string
	AuthorizedAt *time.Time

	ContingencyReason string
	ContingencyAt     *time.Time

	OutgoingXML   string // XML generado, sin firma
	SignedXML     string // XML firmado (lo que se transmite)
	ResponseXML   string // última respuesta de la SEFAZ
	AuthorizedXML string // nfeProc (NFe + protNFe)
	QRCodeURL     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tipos de artefacto XML direccionables por chave de acesso.
const (
	ArtifactOutgoing   = "outgoing"
	ArtifactResponse   = "response"
	ArtifactAuthorized = "authorized"
)

// Artifact devuelve el XML del tipo pedido (vacío si aún no existe).
func (d *FiscalDocument) Artifact(kind string) string {
	switch kind {
	case ArtifactOutgoing:
		return d.SignedXML
	case ArtifactResponse:
		return d.ResponseXML
	case ArtifactAuthorized:
		return d.AuthorizedXML
	default:
		return ""
	}
}
