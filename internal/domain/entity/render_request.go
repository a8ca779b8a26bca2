package entity

import "time"

// RenderRequest pedido de representación gráfica (DANFE/DANFCE) para el renderizador externo.
type RenderRequest struct {
	ID          string
	DocumentID  string
	AccessKey   string
	Model       string
	Contingency bool
	QRCodeURL   string
	Status      string // PENDING hasta que el renderizador lo consume
	CreatedAt   time.Time
}

// RenderPending estado inicial de un RenderRequest.
const RenderPending = "PENDING"
