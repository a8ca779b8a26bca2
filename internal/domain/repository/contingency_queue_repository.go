package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// ContingencyQueueRepository cola durable de documentos emitidos en contingencia.
type ContingencyQueueRepository interface {
	// Enqueue inserta la entrada; si el documento ya está en la cola no la duplica.
	Enqueue(ctx context.Context, entry *entity.QueueEntry) error
	Update(ctx context.Context, entry *entity.QueueEntry) error
	GetByID(ctx context.Context, id string) (*entity.QueueEntry, error)
	// ListPending devuelve las entradas AWAITING de la más antigua a la más nueva.
	ListPending(ctx context.Context, limit int) ([]*entity.QueueEntry, error)
	// RequeueStale devuelve a AWAITING las entradas TRANSMITTING sin cambios
	// desde before y devuelve cuántas movió.
	RequeueStale(ctx context.Context, before, now time.Time) (int64, error)
	// List devuelve todas las entradas; includeDone incluye las TRANSMITTED.
	List(ctx context.Context, includeDone bool) ([]*entity.QueueEntry, error)
}
