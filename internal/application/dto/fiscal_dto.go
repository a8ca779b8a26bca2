package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// EmitDocumentRequest body para POST /api/fiscal/documents.
type EmitDocumentRequest struct {
	SaleID         string           `json:"sale_id,omitempty"`
	Model          string           `json:"model,omitempty"`  // 55 o 65; vacío usa el configurado
	Series         *int             `json:"series,omitempty"` // vacío usa la serie configurada
	Operation      string           `json:"operation,omitempty"`
	Buyer          *BuyerRequest    `json:"buyer,omitempty"`
	Items          []ItemRequest    `json:"items"`
	Payments       []PaymentRequest `json:"payments"`
	AdditionalInfo string           `json:"additional_info,omitempty"`
}

// BuyerRequest destinatario (opcional en NFC-e).
type BuyerRequest struct {
	Document  string          `json:"document,omitempty"` // CPF o CNPJ
	ForeignID string          `json:"foreign_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	UF        string          `json:"uf,omitempty"`
	Email     string          `json:"email,omitempty"`
	Address   *AddressRequest `json:"address,omitempty"`
}

// AddressRequest dirección fiscal.
type AddressRequest struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	CityCode   string `json:"city_code"`
	CityName   string `json:"city_name"`
	UF         string `json:"uf"`
	ZipCode    string `json:"zip_code,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// ItemRequest línea de la venta.
type ItemRequest struct {
	Code         string          `json:"code"`
	EAN          string          `json:"ean,omitempty"`
	Description  string          `json:"description"`
	NCM          string          `json:"ncm"`
	CEST         string          `json:"cest,omitempty"`
	CFOP         string          `json:"cfop,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	Origin       string          `json:"origin,omitempty"`
	TaxSituation string          `json:"tax_situation,omitempty"` // CST o CSOSN
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	ICMSRate     decimal.Decimal `json:"icms_rate"`
	PISRate      decimal.Decimal `json:"pis_rate"`
	COFINSRate   decimal.Decimal `json:"cofins_rate"`
}

// PaymentRequest medio de pago (tPag).
type PaymentRequest struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// EmissionResponse respuesta de POST /api/fiscal/documents.
type EmissionResponse struct {
	Document     DocumentResponse `json:"document"`
	Contingency  bool             `json:"contingency"`
	QueueEntryID string           `json:"queue_entry_id,omitempty"`
}

// DocumentResponse documento fiscal sin los artefactos XML.
type DocumentResponse struct {
	ID                string          `json:"id"`
	SaleID            string          `json:"sale_id,omitempty"`
	Model             string          `json:"model"`
	Series            int             `json:"series"`
	Number            int64           `json:"number"`
	AccessKey         string          `json:"access_key"`
	IssuedAt          time.Time       `json:"issued_at"`
	EmissionMode      string          `json:"emission_mode"`
	Environment       string          `json:"environment"`
	Status            string          `json:"status"`
	StatusCode        string          `json:"status_code,omitempty"`
	StatusReason      string          `json:"status_reason,omitempty"`
	Protocol          string          `json:"protocol,omitempty"`
	AuthorizedAt      *time.Time      `json:"authorized_at,omitempty"`
	ContingencyReason string          `json:"contingency_reason,omitempty"`
	Total             decimal.Decimal `json:"total"`
	Change            decimal.Decimal `json:"change"`
	QRCodeURL         string          `json:"qr_code_url,omitempty"`
}

// CancelDocumentRequest body para POST /api/fiscal/documents/:id/cancel.
type CancelDocumentRequest struct {
	Justification string `json:"justification"`
}

// CancellationResponse evento de cancelamento.
type CancellationResponse struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	AccessKey     string     `json:"access_key"`
	Status        string     `json:"status"`
	StatusCode    string     `json:"status_code,omitempty"`
	StatusReason  string     `json:"status_reason,omitempty"`
	EventProtocol string     `json:"event_protocol,omitempty"`
	RegisteredAt  *time.Time `json:"registered_at,omitempty"`
}

// VoidRangeRequest body para POST /api/fiscal/inutilizations.
type VoidRangeRequest struct {
	Model         string `json:"model,omitempty"`
	Series        int    `json:"series"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	Justification string `json:"justification"`
}

// InutilizationResponse pedido de inutilização.
type InutilizationResponse struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Series       int       `json:"series"`
	Year         int       `json:"year"`
	Start        int64     `json:"start"`
	End          int64     `json:"end"`
	Status       string    `json:"status"`
	StatusCode   string    `json:"status_code,omitempty"`
	StatusReason string    `json:"status_reason,omitempty"`
	Protocol     string    `json:"protocol,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// InutilizationListResponse listado paginado.
type InutilizationListResponse struct {
	Items []InutilizationResponse `json:"items"`
	Page  PageResponse            `json:"page"`
}

// IssuerRequest body para PUT /api/fiscal/issuer.
type IssuerRequest struct {
	CNPJ              string         `json:"cnpj"`
	LegalName         string         `json:"legal_name"`
	TradeName         string         `json:"trade_name,omitempty"`
	StateRegistration string         `json:"state_registration"`
	TaxRegime         string         `json:"tax_regime"` // CRT 1, 2 o 3
	Address           AddressRequest `json:"address"`
	CSCID             string         `json:"csc_id,omitempty"`
	CSCToken          string         `json:"csc_token,omitempty"`
}

// IssuerResponse emisor configurado (sin el token CSC).
type IssuerResponse struct {
	ID                string         `json:"id"`
	CNPJ              string         `json:"cnpj"`
	LegalName         string         `json:"legal_name"`
	TradeName         string         `json:"trade_name,omitempty"`
	StateRegistration string         `json:"state_registration"`
	TaxRegime         string         `json:"tax_regime"`
	Address           AddressRequest `json:"address"`
	Active            bool           `json:"active"`
	HasCSC            bool           `json:"has_csc"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// SeedSeriesRequest body para POST /api/fiscal/issuer/series.
type SeedSeriesRequest struct {
	Model      string `json:"model"`
	Series     int    `json:"series"`
	NextNumber int64  `json:"next_number"`
}

// SeriesResponse próximo número de una serie.
type SeriesResponse struct {
	Model      string `json:"model"`
	Series     int    `json:"series"`
	NextNumber int64  `json:"next_number"`
}

// CertificateResponse identidad y vigencia del certificado cargado.
type CertificateResponse struct {
	Loaded        bool       `json:"loaded"`
	Valid         bool       `json:"valid"`
	Subject       string     `json:"subject,omitempty"`
	TaxID         string     `json:"tax_id,omitempty"`
	SerialNumber  string     `json:"serial_number,omitempty"`
	Issuer        string     `json:"issuer,omitempty"`
	NotBefore     *time.Time `json:"not_before,omitempty"`
	NotAfter      *time.Time `json:"not_after,omitempty"`
	DaysRemaining int        `json:"days_remaining"`
	Warnings      []string   `json:"warnings,omitempty"`
}

// ContingencyStateResponse estado de contingencia.
type ContingencyStateResponse struct {
	Active    bool       `json:"active"`
	Mode      string     `json:"mode,omitempty"`
	EnteredAt *time.Time `json:"entered_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// ActivateContingencyRequest body para POST /api/fiscal/contingency/activate.
type ActivateContingencyRequest struct {
	Justification string `json:"justification"`
}

// QueueEntryResponse entrada de la cola de contingencia.
type QueueEntryResponse struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	AccessKey     string     `json:"access_key"`
	State         string     `json:"state"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// DrainResponse resultado de un ciclo de drenaje manual.
type DrainResponse struct {
	Processed   int  `json:"processed"`
	Transmitted int  `json:"transmitted"`
	Failed      int  `json:"failed"`
	Stopped     bool `json:"stopped"`
}
