package entity

import "time"

// ContingencyState estado global de contingencia; solo lo muta el coordinador.
type ContingencyState struct {
	Active    bool
	Mode      EmissionMode
	EnteredAt time.Time
	Reason    string
}

// QueueEntryState estado de una entrada de la cola de contingencia.
type QueueEntryState string

const (
	QueueAwaiting     QueueEntryState = "AWAITING"
	QueueTransmitting QueueEntryState = "TRANSMITTING"
	QueueError        QueueEntryState = "ERROR"
	QueueTransmitted  QueueEntryState = "TRANSMITTED"
)

// QueueEntry documento pendiente de transmisión. Attempts cuenta fallos de comunicación.
type QueueEntry struct {
	ID            string
	DocumentID    string
	AccessKey     string
	State         QueueEntryState
	Attempts      int
	LastError     string
	EnqueuedAt    time.Time
	LastAttemptAt *time.Time
	UpdatedAt     time.Time
}
