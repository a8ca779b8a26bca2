package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
)

var _ repository.ContingencyQueueRepository = (*ContingencyQueueRepo)(nil)

// ContingencyQueueRepo cola durable de documentos pendientes de transmisión.
type ContingencyQueueRepo struct {
	q Querier
}

// NewContingencyQueueRepository construye el adaptador.
func NewContingencyQueueRepository(q Querier) *ContingencyQueueRepo {
	return &ContingencyQueueRepo{q: q}
}

const queueColumns = `id, document_id, access_key, state, attempts, last_error, enqueued_at, last_attempt_at, updated_at`

// Enqueue inserta la entrada. Si el documento ya estaba encolado no duplica:
// entry pasa a reflejar la entrada existente.
func (r *ContingencyQueueRepo) Enqueue(ctx context.Context, e *entity.QueueEntry) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO contingency_queue (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id) DO UPDATE SET document_id = EXCLUDED.document_id
		RETURNING `+queueColumns,
		e.ID, e.DocumentID, e.AccessKey, string(e.State), e.Attempts, e.LastError, e.EnqueuedAt, e.LastAttemptAt, e.UpdatedAt,
	)
	stored, err := scanQueueEntry(row, "enqueue")
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

// Update guarda estado, intentos y último error.
func (r *ContingencyQueueRepo) Update(ctx context.Context, e *entity.QueueEntry) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE contingency_queue
		SET state = $2, attempts = $3, last_error = $4, last_attempt_at = $5, updated_at = $6
		WHERE id = $1`,
		e.ID, string(e.State), e.Attempts, e.LastError, e.LastAttemptAt, e.UpdatedAt,
	)
	return mustAffect(tag, err, "update queue entry")
}

// GetByID obtiene una entrada.
func (r *ContingencyQueueRepo) GetByID(ctx context.Context, id string) (*entity.QueueEntry, error) {
	row := r.q.QueryRow(ctx, `SELECT `+queueColumns+` FROM contingency_queue WHERE id = $1`, id)
	return scanQueueEntry(row, "get queue entry")
}

// ListPending entradas AWAITING en orden de llegada.
func (r *ContingencyQueueRepo) ListPending(ctx context.Context, limit int) ([]*entity.QueueEntry, error) {
	return r.list(ctx, `SELECT `+queueColumns+` FROM contingency_queue
		WHERE state = 'AWAITING' ORDER BY enqueued_at LIMIT $1`, limit)
}

// RequeueStale recupera entradas TRANSMITTING abandonadas.
func (r *ContingencyQueueRepo) RequeueStale(ctx context.Context, before, now time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE contingency_queue
		SET state = 'AWAITING', updated_at = $2
		WHERE state = 'TRANSMITTING' AND updated_at <= $1`,
		before, now,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List todas las entradas; sin includeDone omite las TRANSMITTED.
func (r *ContingencyQueueRepo) List(ctx context.Context, includeDone bool) ([]*entity.QueueEntry, error) {
	return r.list(ctx, `SELECT `+queueColumns+` FROM contingency_queue
		WHERE $1 OR state <> 'TRANSMITTED' ORDER BY enqueued_at`, includeDone)
}

func (r *ContingencyQueueRepo) list(ctx context.Context, query string, args ...any) ([]*entity.QueueEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()
	var list []*entity.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows, "scan queue entry")
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanQueueEntry(row pgx.Row, op string) (*entity.QueueEntry, error) {
	var (
		e     entity.QueueEntry
		state string
	)
	err := row.Scan(&e.ID, &e.DocumentID, &e.AccessKey, &state, &e.Attempts, &e.LastError, &e.EnqueuedAt, &e.LastAttemptAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(op, err)
	}
	e.State = entity.QueueEntryState(state)
	return &e, nil
}
