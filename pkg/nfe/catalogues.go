// Package nfe contiene catálogos y reglas del leiaute NF-e/NFC-e 4.00
// (Manual de Orientação do Contribuinte e Notas Técnicas da SEFAZ).
package nfe

// Namespace y versiones del leiaute.
const (
	Namespace      = "http://www.portalfiscal.inf.br/nfe"
	LayoutVersion  = "4.00"
	EventVersion   = "1.00"
	QRCodeVersion  = "2"
	SoftwareVendor = "Fiscal-api"
)

// =============================================================================
// Modelos de documento (ide/mod)
// =============================================================================

const (
	ModelNFe  = "55" // Nota Fiscal eletrônica
	ModelNFCe = "65" // Nota Fiscal de Consumidor eletrônica
)

// =============================================================================
// Ambiente (ide/tpAmb)
// =============================================================================

const (
	EnvironmentProduction   = "1"
	EnvironmentHomologation = "2"
)

// =============================================================================
// Tipo de emisión (ide/tpEmis). Forma parte de la chave de acesso.
// =============================================================================

const (
	EmissionTypeNormal      = "1"
	EmissionTypeSVCAN       = "6" // SVC Ambiente Nacional
	EmissionTypeSVCRS       = "7" // SVC Rio Grande do Sul
	EmissionTypeOfflineNFCe = "9" // contingência off-line da NFC-e
)

// =============================================================================
// Código de Regime Tributário (emit/CRT)
// =============================================================================

const (
	RegimeSimples       = "1"
	RegimeSimplesExcess = "2" // Simples Nacional, excesso de sublimite
	RegimeNormal        = "3"
)

// IsSimplifiedRegime indica si el CRT corresponde al Simples Nacional.
func IsSimplifiedRegime(crt string) bool {
	return crt == RegimeSimples || crt == RegimeSimplesExcess
}

// =============================================================================
// Destino de la operación (ide/idDest)
// =============================================================================

const (
	DestinationInternal   = "1"
	DestinationInterstate = "2"
	DestinationForeign    = "3"

	// ForeignUF es la sigla usada por la SEFAZ para compradores del exterior.
	ForeignUF = "EX"
)

// =============================================================================
// Situación tributaria del ICMS (CST para regime normal, CSOSN para Simples)
// =============================================================================

const (
	CSTTaxed           = "00"
	CSTReducedBase     = "20"
	CSTExempt          = "40"
	CSTNotTaxed        = "41"
	CSTSuspended       = "50"
	CSTChargedBeforeST = "60"

	CSOSNWithoutCredit   = "102"
	CSOSNExemptRange     = "103"
	CSOSNImmune          = "300"
	CSOSNNotTaxed        = "400"
	CSOSNChargedBeforeST = "500"
	CSOSNOther           = "900"
)

// ValidCSOSN contiene los CSOSN soportados por el generador de XML.
var ValidCSOSN = map[string]bool{
	CSOSNWithoutCredit: true, CSOSNExemptRange: true, CSOSNImmune: true,
	CSOSNNotTaxed: true, CSOSNChargedBeforeST: true, CSOSNOther: true,
}

// ValidCST contiene los CST de ICMS soportados por el generador de XML.
var ValidCST = map[string]bool{
	CSTTaxed: true, CSTExempt: true, CSTNotTaxed: true,
	CSTSuspended: true, CSTChargedBeforeST: true,
}

// CST de PIS/COFINS usados.
const (
	PISCOFINSTaxedRate = "01"
	PISCOFINSNotTaxed  = "07"
)

// =============================================================================
// Meios de pagamento (pag/detPag/tPag)
// =============================================================================

const (
	PaymentCash        = "01"
	PaymentCheck       = "02"
	PaymentCreditCard  = "03"
	PaymentDebitCard   = "04"
	PaymentStoreCredit = "05"
	PaymentFoodVoucher = "10"
	PaymentMealVoucher = "11"
	PaymentGiftCard    = "12"
	PaymentFuelVoucher = "13"
	PaymentBankSlip    = "15"
	PaymentPIX         = "17"
	PaymentNone        = "90"
	PaymentOther       = "99"
)

// ValidPaymentCodes medios de pago aceptados en detPag.
var ValidPaymentCodes = map[string]bool{
	PaymentCash: true, PaymentCheck: true, PaymentCreditCard: true, PaymentDebitCard: true,
	PaymentStoreCredit: true, PaymentFoodVoucher: true, PaymentMealVoucher: true,
	PaymentGiftCard: true, PaymentFuelVoucher: true, PaymentBankSlip: true,
	PaymentPIX: true, PaymentNone: true, PaymentOther: true,
}

// =============================================================================
// cStat devueltos por la SEFAZ
// =============================================================================

const (
	StatAuthorized          = "100" // Autorizado o uso da NF-e
	StatCancelled           = "101" // Cancelamento de NF-e homologado
	StatVoided              = "102" // Inutilização de número homologado
	StatBatchProcessed      = "104" // Lote processado
	StatServiceOnline       = "107" // Serviço em operação
	StatServiceStopped      = "108" // Serviço paralisado momentaneamente
	StatServiceStoppedLong  = "109" // Serviço paralisado sem previsão
	StatDenied              = "110" // Uso denegado
	StatEventBatchProcessed = "128" // Lote de evento processado
	StatEventRegistered     = "135" // Evento registrado e vinculado a NF-e
	StatEventOutOfTerm      = "155" // Cancelamento homologado fora de prazo
	StatDocumentNotFound    = "217" // NF-e não consta na base de dados da SEFAZ
)

// =============================================================================
// Eventos
// =============================================================================

const (
	EventCancellation            = "110111"
	EventCancellationDescription = "Cancelamento"
)

// =============================================================================
// Códigos de UF (IBGE). Primeros dos dígitos de la chave de acesso.
// =============================================================================

var ufCodes = map[string]string{
	"RO": "11", "AC": "12", "AM": "13", "RR": "14", "PA": "15", "AP": "16", "TO": "17",
	"MA": "21", "PI": "22", "CE": "23", "RN": "24", "PB": "25", "PE": "26", "AL": "27",
	"SE": "28", "BA": "29", "MG": "31", "ES": "32", "RJ": "33", "SP": "35", "PR": "41",
	"SC": "42", "RS": "43", "MS": "50", "MT": "51", "GO": "52", "DF": "53",
}

// UFCode devuelve el código IBGE de la UF (ej. "SP" -> "35").
func UFCode(uf string) (string, bool) {
	code, ok := ufCodes[uf]
	return code, ok
}

// NationalEnvironmentCode es el cOrgao del Ambiente Nacional (eventos vía SVC-AN).
const NationalEnvironmentCode = "91"
