package repository

import "context"

// SeriesCounterRepository contador persistente por (emisor, modelo, serie).
type SeriesCounterRepository interface {
	// NextNumber incrementa y devuelve el número asignado de forma atómica.
	// Dos llamadas concurrentes nunca reciben el mismo número.
	NextNumber(ctx context.Context, issuerID, model string, series int) (int64, error)
	// Ensure crea el contador con el próximo número indicado si aún no existe.
	Ensure(ctx context.Context, issuerID, model string, series int, next int64) error
	// Peek devuelve el próximo número sin consumirlo.
	Peek(ctx context.Context, issuerID, model string, series int) (int64, error)
}
