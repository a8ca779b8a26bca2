package entity

import "time"

// AuthorityOutcome clasificación normalizada del cStat devuelto por la SEFAZ.
type AuthorityOutcome string

const (
	OutcomeAuthorized      AuthorityOutcome = "AUTHORIZED"       // 100
	OutcomeCancelled       AuthorityOutcome = "CANCELLED"        // 101
	OutcomeDenied          AuthorityOutcome = "DENIED"           // 110
	OutcomeEventRegistered AuthorityOutcome = "EVENT_REGISTERED" // 135, 155
	OutcomeVoided          AuthorityOutcome = "VOIDED"           // 102
	OutcomeServiceOnline   AuthorityOutcome = "SERVICE_ONLINE"   // 107
	OutcomeRejected        AuthorityOutcome = "REJECTED"         // cualquier otro
)

// AuthorityResult respuesta 2xx de la SEFAZ ya interpretada.
type AuthorityResult struct {
	Outcome     AuthorityOutcome
	Code        string // cStat
	Reason      string // xMotivo literal
	Protocol    string // nProt
	AccessKey   string // chNFe devuelta, si aplica
	ReceivedAt  *time.Time
	ResponseXML string // cuerpo SOAP completo
	ProtocolXML string // <protNFe> o <retEvento> para componer el XML autorizado
}

// AuthorityAttempt registro de auditoría de cada llamada a la SEFAZ.
type AuthorityAttempt struct {
	ID           string
	Operation    string
	Endpoint     string
	AccessKey    string
	RequestXML   string
	ResponseXML  string
	HTTPStatus   int
	StatusCode   string
	StatusReason string
	Outcome      string // código de AuthorityOutcome o COMMUNICATION_ERROR
	Error        string
	StartedAt    time.Time
	Duration     time.Duration
}

// OutcomeCommunicationError valor de AuthorityAttempt.Outcome cuando no hubo respuesta útil.
const OutcomeCommunicationError = "COMMUNICATION_ERROR"
