package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.SeriesCounterRepository = (*SeriesCounterRepo)(nil)

// SeriesCounterRepo numeración por (emisor, modelo, serie). La reserva es un
// único upsert atómico: dos transacciones nunca obtienen el mismo número.
type SeriesCounterRepo struct {
	q Querier
}

// NewSeriesCounterRepository construye el adaptador.
func NewSeriesCounterRepository(q Querier) *SeriesCounterRepo {
	return &SeriesCounterRepo{q: q}
}

// NextNumber reserva y devuelve el próximo número; la primera reserva de una serie es 1.
func (r *SeriesCounterRepo) NextNumber(ctx context.Context, issuerID, model string, series int) (int64, error) {
	const query = `
		INSERT INTO series_counters (issuer_id, model, series, next_number)
		VALUES ($1, $2, $3, 2)
		ON CONFLICT (issuer_id, model, series)
		DO UPDATE SET next_number = series_counters.next_number + 1
		RETURNING next_number - 1`
	var n int64
	if err := r.q.QueryRow(ctx, query, issuerID, model, series).Scan(&n); err != nil {
		return 0, fmt.Errorf("reservar número %s/%d: %w", model, series, err)
	}
	return n, nil
}

// Ensure crea el contador con next si aún no existe.
func (r *SeriesCounterRepo) Ensure(ctx context.Context, issuerID, model string, series int, next int64) error {
	const query = `
		INSERT INTO series_counters (issuer_id, model, series, next_number)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (issuer_id, model, series) DO NOTHING`
	if _, err := r.q.Exec(ctx, query, issuerID, model, series, next); err != nil {
		return fmt.Errorf("sembrar serie %s/%d: %w", model, series, err)
	}
	return nil
}

// Peek próximo número sin reservarlo.
func (r *SeriesCounterRepo) Peek(ctx context.Context, issuerID, model string, series int) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT next_number FROM series_counters WHERE issuer_id = $1 AND model = $2 AND series = $3`,
		issuerID, model, series).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("consultar serie %s/%d: %w", model, series, err)
	}
	return n, nil
}
