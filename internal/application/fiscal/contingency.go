package fiscal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/domain/repository"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// Valores por defecto del coordinador.
const (
	DefaultProbeInterval = 60 * time.Second
	DefaultMaxAttempts   = 5
	DefaultDrainPause    = 500 * time.Millisecond
	DefaultDrainBatch    = 50
	DefaultStaleAfter    = 2 * time.Minute
)

// Motivos de activación automática.
const (
	reasonProbeOffline  = "SEFAZ sin respuesta en la consulta de status del servicio"
	reasonResendFailure = "SEFAZ sin respuesta durante el reenvío: "
)

// ContingencyConfig parámetros del coordinador.
type ContingencyConfig struct {
	Mode          entity.EmissionMode // modo informado si no se puede derivar del emisor
	ProbeInterval time.Duration
	MaxAttempts   int
	DrainPause    time.Duration
	DrainBatch    int
	StaleAfter    time.Duration // una entrada TRANSMITTING sin cambios por más tiempo se da por abandonada
}

// DrainReport resumen de un ciclo de drenaje.
type DrainReport struct {
	Processed   int
	Transmitted int
	Failed      int
	Stopped     bool // el ciclo se cortó por falla de comunicación
}

// ContingencyCoordinator dueño del estado de contingencia y de la cola.
//
// mu protege el estado y las mutaciones de la cola; drainMu serializa el
// drenaje sin bloquear a quien emite (TryLock).
type ContingencyCoordinator struct {
	mu    sync.Mutex
	state entity.ContingencyState

	drainMu sync.Mutex
	probes  singleflight.Group

	queue     repository.ContingencyQueueRepository
	authority AuthorityClient
	settler   DocumentSettler
	modeFor   func(context.Context) entity.EmissionMode
	cfg       ContingencyConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewContingencyCoordinator construye el coordinador en estado inactivo.
// El settler se enlaza al construir el orquestador.
func NewContingencyCoordinator(queue repository.ContingencyQueueRepository, authority AuthorityClient, cfg ContingencyConfig, log zerolog.Logger) *ContingencyCoordinator {
	if cfg.Mode == "" {
		cfg.Mode = entity.EmissionOffline
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.DrainPause < 0 {
		cfg.DrainPause = 0
	}
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = DefaultDrainBatch
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &ContingencyCoordinator{
		queue:     queue,
		authority: authority,
		cfg:       cfg,
		log:       log.With().Str("component", "contingency").Logger(),
		now:       time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (c *ContingencyCoordinator) WithClock(now func() time.Time) *ContingencyCoordinator {
	c.now = now
	return c
}

// bind enlaza el orquestador: asienta resultados y deriva el modo de
// contingencia del emisor configurado.
func (c *ContingencyCoordinator) bind(s DocumentSettler, modeFor func(context.Context) entity.EmissionMode) {
	c.mu.Lock()
	c.settler = s
	c.modeFor = modeFor
	c.mu.Unlock()
}

// resolveMode modo de contingencia del emisor; cfg.Mode si no se puede derivar.
func (c *ContingencyCoordinator) resolveMode(ctx context.Context) entity.EmissionMode {
	c.mu.Lock()
	modeFor := c.modeFor
	c.mu.Unlock()
	if modeFor != nil {
		if mode := modeFor(ctx); mode.IsContingency() {
			return mode
		}
	}
	return c.cfg.Mode
}

// ── Estado ────────────────────────────────────────────────────────────────────

// State copia del estado actual.
func (c *ContingencyCoordinator) State() entity.ContingencyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Activate entra en contingencia. Idempotente: si ya está activa no cambia
// ni el motivo ni el instante de entrada. Devuelve true si hubo transición.
func (c *ContingencyCoordinator) Activate(reason string) bool {
	return c.activate(context.Background(), reason)
}

func (c *ContingencyCoordinator) activate(ctx context.Context, reason string) bool {
	if c.State().Active {
		return false
	}
	mode := c.resolveMode(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activateLocked(reason, mode)
}

func (c *ContingencyCoordinator) activateLocked(reason string, mode entity.EmissionMode) bool {
	if c.state.Active {
		return false
	}
	c.state = entity.ContingencyState{
		Active:    true,
		Mode:      mode,
		EnteredAt: c.now(),
		Reason:    reason,
	}
	c.log.Warn().Str("mode", string(mode)).Str("reason", reason).Msg("contingencia activada")
	return true
}

// ActivateManual activación por un operador; exige justificativa de 15 a 256 caracteres.
func (c *ContingencyCoordinator) ActivateManual(justification string) error {
	just := pkgnfe.SanitizeText(justification, 0)
	if n := pkgnfe.TextLength(just); n < pkgnfe.MinJustification || n > pkgnfe.MaxContingencyJustification {
		return domain.NewValidationError("justification", "debe tener entre %d y %d caracteres", pkgnfe.MinJustification, pkgnfe.MaxContingencyJustification)
	}
	c.Activate(just)
	return nil
}

// Deactivate vuelve al modo normal. Idempotente.
func (c *ContingencyCoordinator) Deactivate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Active {
		return false
	}
	since := c.state.EnteredAt
	c.state = entity.ContingencyState{}
	c.log.Info().Dur("duration", c.now().Sub(since)).Msg("contingencia desactivada")
	return true
}

// ── Cola ──────────────────────────────────────────────────────────────────────

// Enqueue activa la contingencia y encola el documento en la misma sección crítica.
// Un documento ya encolado no se duplica.
func (c *ContingencyCoordinator) Enqueue(ctx context.Context, doc *entity.FiscalDocument, reason string) (*entity.QueueEntry, error) {
	now := c.now()
	entry := &entity.QueueEntry{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		AccessKey:  doc.AccessKey,
		State:      entity.QueueAwaiting,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	mode := doc.EmissionMode
	if !mode.IsContingency() {
		mode = c.resolveMode(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.activateLocked(reason, mode)
	if err := c.queue.Enqueue(ctx, entry); err != nil {
		return nil, fmt.Errorf("contingencia: encolar %s: %w", doc.AccessKey, err)
	}
	c.log.Info().Str("access_key", doc.AccessKey).Str("entry_id", entry.ID).Msg("documento encolado")
	return entry, nil
}

// List entradas de la cola; includeDone incluye las ya transmitidas.
func (c *ContingencyCoordinator) List(ctx context.Context, includeDone bool) ([]*entity.QueueEntry, error) {
	return c.queue.List(ctx, includeDone)
}

// ForceRetry devuelve a AWAITING una entrada en ERROR, en espera o abandonada
// en TRANSMITTING, y reinicia su contador de intentos.
func (c *ContingencyCoordinator) ForceRetry(ctx context.Context, entryID string) (*entity.QueueEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	switch entry.State {
	case entity.QueueTransmitted:
		return nil, domain.NewPreconditionError("la entrada %s ya fue transmitida", entryID)
	case entity.QueueTransmitting:
		if !c.stale(entry) {
			return nil, domain.NewPreconditionError("la entrada %s se está transmitiendo", entryID)
		}
	}
	entry.State = entity.QueueAwaiting
	entry.Attempts = 0
	entry.LastError = ""
	entry.UpdatedAt = c.now()
	if err := c.queue.Update(ctx, entry); err != nil {
		return nil, err
	}
	c.log.Info().Str("entry_id", entryID).Msg("reintento forzado")
	return entry, nil
}

// stale indica si una entrada TRANSMITTING quedó abandonada (p. ej. el proceso
// terminó durante el envío).
func (c *ContingencyCoordinator) stale(entry *entity.QueueEntry) bool {
	return entry.State == entity.QueueTransmitting && !entry.UpdatedAt.After(c.now().Add(-c.cfg.StaleAfter))
}

func (c *ContingencyCoordinator) save(ctx context.Context, entry *entity.QueueEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.UpdatedAt = c.now()
	return c.queue.Update(ctx, entry)
}

// ── Sondeo y drenaje ─────────────────────────────────────────────────────────

// Probe consulta el status del servicio normal. Llamadas simultáneas comparten
// una sola consulta. 107 es online; cualquier otra respuesta o falla es offline.
func (c *ContingencyCoordinator) Probe(ctx context.Context) bool {
	v, _, _ := c.probes.Do("status", func() (any, error) {
		res, err := c.authority.QueryStatus(ctx, entity.EmissionNormal)
		if err != nil {
			c.log.Debug().Err(err).Msg("sondeo: SEFAZ sin respuesta")
			return false, nil
		}
		online := res.Outcome == entity.OutcomeServiceOnline
		c.log.Debug().Str("cstat", res.Code).Bool("online", online).Msg("sondeo de status")
		return online, nil
	})
	online, _ := v.(bool)
	return online
}

// Drain transmite las entradas pendientes de la más antigua a la más nueva.
// Si ya hay un drenaje en curso vuelve de inmediato con un reporte vacío.
func (c *ContingencyCoordinator) Drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport
	if !c.drainMu.TryLock() {
		return report, nil
	}
	defer c.drainMu.Unlock()

	c.mu.Lock()
	settler := c.settler
	c.mu.Unlock()
	if settler == nil {
		return report, errors.New("contingencia: coordinador sin settler")
	}

	// Entradas abandonadas en TRANSMITTING; transmit consulta antes de reenviar.
	now := c.now()
	recovered, err := c.queue.RequeueStale(ctx, now.Add(-c.cfg.StaleAfter), now)
	if err != nil {
		return report, fmt.Errorf("contingencia: recuperar entradas abandonadas: %w", err)
	}
	if recovered > 0 {
		c.log.Warn().Int64("entries", recovered).Msg("entradas TRANSMITTING abandonadas vuelven a la cola")
	}

	entries, err := c.queue.ListPending(ctx, c.cfg.DrainBatch)
	if err != nil {
		return report, fmt.Errorf("contingencia: listar cola: %w", err)
	}
	for i, entry := range entries {
		if i > 0 && c.cfg.DrainPause > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(c.cfg.DrainPause):
			}
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Processed++
		stop := c.transmit(ctx, settler, entry)
		switch entry.State {
		case entity.QueueTransmitted:
			report.Transmitted++
		case entity.QueueError:
			report.Failed++
		}
		if stop {
			report.Stopped = true
			break
		}
	}
	if report.Processed > 0 {
		c.log.Info().
			Int("processed", report.Processed).
			Int("transmitted", report.Transmitted).
			Int("failed", report.Failed).
			Bool("stopped", report.Stopped).
			Msg("drenaje de contingencia")
	}
	return report, nil
}

// transmit procesa una entrada. Devuelve true si el ciclo debe cortarse.
func (c *ContingencyCoordinator) transmit(ctx context.Context, settler DocumentSettler, entry *entity.QueueEntry) bool {
	now := c.now()
	entry.State = entity.QueueTransmitting
	entry.LastAttemptAt = &now
	if err := c.save(ctx, entry); err != nil {
		c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("no se pudo marcar la entrada")
		return true
	}

	doc, err := settler.QueuedDocument(ctx, entry.DocumentID)
	if err != nil {
		c.finish(ctx, entry, entity.QueueError, err.Error())
		return false
	}
	if doc.Status != entity.DocumentPending {
		c.finish(ctx, entry, entity.QueueTransmitted, "")
		return false
	}

	// Un envío previo con timeout pudo haber sido autorizado: se consulta antes de reenviar.
	if res, err := c.authority.QueryDocument(ctx, doc.AccessKey); err == nil {
		switch res.Outcome {
		case entity.OutcomeAuthorized, entity.OutcomeCancelled, entity.OutcomeDenied:
			return c.settle(ctx, settler, entry, res)
		}
	} else if domain.IsCommunication(err) {
		return c.communicationFailure(ctx, entry, err)
	}

	res, err := c.authority.Submit(ctx, doc.EmissionMode, []byte(doc.SignedXML), doc.AccessKey)
	if err != nil {
		if domain.IsCommunication(err) {
			return c.communicationFailure(ctx, entry, err)
		}
		c.finish(ctx, entry, entity.QueueError, err.Error())
		return false
	}
	return c.settle(ctx, settler, entry, res)
}

func (c *ContingencyCoordinator) settle(ctx context.Context, settler DocumentSettler, entry *entity.QueueEntry, res *entity.AuthorityResult) bool {
	if err := settler.SettleQueued(ctx, entry.DocumentID, res); err != nil {
		c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("no se pudo asentar el resultado")
		c.finish(ctx, entry, entity.QueueError, err.Error())
		return false
	}
	switch res.Outcome {
	case entity.OutcomeAuthorized, entity.OutcomeCancelled, entity.OutcomeDenied:
		c.finish(ctx, entry, entity.QueueTransmitted, "")
	default:
		c.finish(ctx, entry, entity.QueueError, fmt.Sprintf("[%s] %s", res.Code, res.Reason))
	}
	return false
}

// communicationFailure cuenta el intento, reactiva la contingencia y corta el ciclo.
func (c *ContingencyCoordinator) communicationFailure(ctx context.Context, entry *entity.QueueEntry, cause error) bool {
	entry.Attempts++
	state := entity.QueueAwaiting
	if entry.Attempts >= c.cfg.MaxAttempts {
		state = entity.QueueError
	}
	c.finish(ctx, entry, state, cause.Error())
	c.activate(ctx, reasonResendFailure+cause.Error())
	return true
}

func (c *ContingencyCoordinator) finish(ctx context.Context, entry *entity.QueueEntry, state entity.QueueEntryState, lastError string) {
	entry.State = state
	entry.LastError = lastError
	if err := c.save(ctx, entry); err != nil {
		c.log.Error().Err(err).Str("entry_id", entry.ID).Msg("no se pudo actualizar la entrada")
		return
	}
	ev := c.log.Info()
	if state == entity.QueueError {
		ev = c.log.Warn().Str("error", lastError)
	}
	ev.Str("entry_id", entry.ID).
		Str("access_key", entry.AccessKey).
		Str("state", string(state)).
		Int("attempts", entry.Attempts).
		Msg("entrada de contingencia procesada")
}

// Tick sondea el servicio. Offline entra en contingencia (idempotente);
// online sale de contingencia y drena la cola.
func (c *ContingencyCoordinator) Tick(ctx context.Context) (DrainReport, error) {
	if !c.Probe(ctx) {
		if err := ctx.Err(); err != nil {
			return DrainReport{}, err
		}
		c.activate(ctx, reasonProbeOffline)
		return DrainReport{}, nil
	}
	c.Deactivate()
	return c.Drain(ctx)
}

// Run ejecuta Tick cada ProbeInterval hasta que ctx se cancele.
func (c *ContingencyCoordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()
	c.log.Info().Dur("interval", c.cfg.ProbeInterval).Msg("coordinador de contingencia iniciado")
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("coordinador de contingencia detenido")
			return nil
		case <-ticker.C:
			if _, err := c.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error().Err(err).Msg("ciclo de contingencia con error")
			}
		}
	}
}
