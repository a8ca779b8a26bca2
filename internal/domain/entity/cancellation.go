package entity

import "time"

// EventStatus estado de un evento o pedido de inutilización ante la SEFAZ.
type EventStatus string

const (
	EventPending    EventStatus = "PENDING"
	EventRegistered EventStatus = "REGISTERED"
	EventRejected   EventStatus = "REJECTED"
)

// CancellationWindow plazo para cancelar una NF-e/NFC-e autorizada.
const CancellationWindow = 24 * time.Hour

// Cancellation evento de cancelamento (110111); a lo sumo uno registrado por documento.
type Cancellation struct {
	ID               string
	DocumentID       string
	AccessKey        string
	OriginalProtocol string
	Justification    string
	Sequence         int
	Status           EventStatus
	StatusCode       string
	StatusReason     string
	EventProtocol    string
	EventXML         string // evento firmado
	ResponseXML      string
	RequestedAt      time.Time
	RegisteredAt     *time.Time
	UpdatedAt        time.Time
}
