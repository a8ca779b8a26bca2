package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
	"github.com/jhoicas/Fiscal-api/internal/infrastructure/sefaz"
	pkgnfe "github.com/jhoicas/Fiscal-api/pkg/nfe"
)

// ═══════════════════════════════════════════════════════════════════════════════
// Cancelamento
// ═══════════════════════════════════════════════════════════════════════════════

// Cancel registra el evento de cancelamento de un documento autorizado.
// Las precondiciones se verifican antes de cualquier llamada de red; el
// documento solo pasa a CANCELLED con cStat 135 o 155.
func (o *FiscalOrchestrator) Cancel(ctx context.Context, documentID, justification string) (*entity.Cancellation, error) {
	doc, err := o.repos.Documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != entity.DocumentAuthorized {
		return nil, domain.NewPreconditionError("solo se cancela un documento AUTHORIZED (estado %s)", doc.Status)
	}
	just := pkgnfe.SanitizeText(justification, 0)
	if n := pkgnfe.TextLength(just); n < pkgnfe.MinJustification {
		return nil, domain.NewPreconditionError("la justificativa requiere al menos %d caracteres", pkgnfe.MinJustification)
	} else if n > pkgnfe.MaxJustification {
		return nil, domain.NewValidationError("justification", "máximo %d caracteres", pkgnfe.MaxJustification)
	}
	now := o.now()
	if doc.AuthorizedAt == nil || now.Sub(*doc.AuthorizedAt) > entity.CancellationWindow {
		return nil, domain.NewPreconditionError("plazo de cancelamento de %s vencido", entity.CancellationWindow)
	}
	if _, err := o.repos.Cancellations.GetRegisteredByDocument(ctx, doc.ID); err == nil {
		return nil, domain.NewPreconditionError("el documento ya tiene un cancelamento registrado")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := o.credentials.Check(); err != nil {
		return nil, err
	}
	issuer, err := o.repos.Issuers.Get(ctx)
	if err != nil {
		return nil, err
	}

	unsigned, id, err := o.builder.BuildCancellationEvent(&sefaz.CancellationBuildContext{
		Issuer:        issuer,
		AccessKey:     doc.AccessKey,
		Protocol:      doc.Protocol,
		Justification: just,
		Sequence:      1,
		At:            now,
		Environment:   o.cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("fiscal: generar evento: %w", err)
	}
	signed, err := o.credentials.Sign(unsigned, id)
	if err != nil {
		return nil, err
	}

	c := &entity.Cancellation{
		ID:               uuid.New().String(),
		DocumentID:       doc.ID,
		AccessKey:        doc.AccessKey,
		OriginalProtocol: doc.Protocol,
		Justification:    just,
		Sequence:         1,
		Status:           entity.EventPending,
		EventXML:         string(signed),
		RequestedAt:      now,
		UpdatedAt:        now,
	}
	if err := o.repos.Cancellations.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("fiscal: persistir cancelamento: %w", err)
	}

	res, err := o.authority.Cancel(ctx, signed, doc.AccessKey)
	if err != nil {
		c.StatusReason = err.Error()
		o.saveCancellation(ctx, c)
		return c, err
	}
	c.StatusCode, c.StatusReason, c.ResponseXML = res.Code, res.Reason, res.ResponseXML

	if res.Outcome != entity.OutcomeEventRegistered {
		c.Status = entity.EventRejected
		o.saveCancellation(ctx, c)
		return c, &domain.AuthorityRejection{Code: res.Code, Reason: res.Reason}
	}

	at := o.now()
	if res.ReceivedAt != nil {
		at = *res.ReceivedAt
	}
	c.Status = entity.EventRegistered
	c.EventProtocol = res.Protocol
	c.RegisteredAt = &at
	if res.ProtocolXML != "" {
		c.EventXML = string(o.builder.BuildEventProc(signed, res.ProtocolXML))
	}
	o.saveCancellation(ctx, c)

	doc.Status = entity.DocumentCancelled
	doc.StatusCode, doc.StatusReason = res.Code, res.Reason
	o.persist(ctx, doc)
	o.log.Info().Str("access_key", doc.AccessKey).Str("protocol", res.Protocol).Msg("documento cancelado")
	return c, nil
}

func (o *FiscalOrchestrator) saveCancellation(ctx context.Context, c *entity.Cancellation) {
	c.UpdatedAt = o.now()
	if err := o.repos.Cancellations.Update(ctx, c); err != nil {
		o.log.Error().Err(err).Str("access_key", c.AccessKey).Msg("no se pudo actualizar el cancelamento")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// Inutilização
// ═══════════════════════════════════════════════════════════════════════════════

// VoidRange inutiliza la faja [start, end] de una serie. La validación ocurre
// antes de generar cualquier XML.
func (o *FiscalOrchestrator) VoidRange(ctx context.Context, req VoidRequest) (*entity.Inutilization, error) {
	model := req.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}
	just := pkgnfe.SanitizeText(req.Justification, 0)

	var errs []error
	if model != pkgnfe.ModelNFe && model != pkgnfe.ModelNFCe {
		errs = append(errs, domain.NewValidationError("model", "debe ser 55 o 65"))
	}
	if req.Series < 0 || req.Series > 999 {
		errs = append(errs, domain.NewValidationError("series", "fuera de rango 0..999"))
	}
	if req.Start < 1 || req.End < 1 || req.End > 999999999 {
		errs = append(errs, domain.NewValidationError("range", "los números deben estar entre 1 y 999999999"))
	} else if req.Start > req.End {
		errs = append(errs, domain.NewValidationError("range", "el inicio %d es mayor que el fin %d", req.Start, req.End))
	}
	if n := pkgnfe.TextLength(just); n < pkgnfe.MinJustification || n > pkgnfe.MaxJustification {
		errs = append(errs, domain.NewValidationError("justification", "debe tener entre %d y %d caracteres", pkgnfe.MinJustification, pkgnfe.MaxJustification))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	issuer, err := o.activeIssuer(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.credentials.Check(); err != nil {
		return nil, err
	}

	now := o.now()
	inut := &entity.Inutilization{
		ID:            uuid.New().String(),
		IssuerID:      issuer.ID,
		Model:         model,
		Series:        req.Series,
		Year:          now.In(sefaz.BrazilTime).Year() % 100,
		Start:         req.Start,
		End:           req.End,
		Justification: just,
		Status:        entity.EventPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	unsigned, id, err := o.builder.BuildInutilization(&sefaz.InutilizationBuildContext{
		Issuer:        issuer,
		Model:         model,
		Series:        req.Series,
		Year:          inut.Year,
		Start:         req.Start,
		End:           req.End,
		Justification: just,
		Environment:   o.cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("fiscal: generar inutilização: %w", err)
	}
	signed, err := o.credentials.Sign(unsigned, id)
	if err != nil {
		return nil, err
	}
	inut.RequestXML = string(signed)
	if err := o.repos.Inutilizations.Create(ctx, inut); err != nil {
		return nil, fmt.Errorf("fiscal: persistir inutilização: %w", err)
	}

	res, err := o.authority.Void(ctx, signed, model)
	if err != nil {
		inut.StatusReason = err.Error()
		o.saveInutilization(ctx, inut)
		return inut, err
	}
	inut.StatusCode, inut.StatusReason, inut.ResponseXML = res.Code, res.Reason, res.ResponseXML
	if res.Outcome != entity.OutcomeVoided {
		inut.Status = entity.EventRejected
		o.saveInutilization(ctx, inut)
		return inut, &domain.AuthorityRejection{Code: res.Code, Reason: res.Reason}
	}
	inut.Status = entity.EventRegistered
	inut.Protocol = res.Protocol
	o.saveInutilization(ctx, inut)
	o.log.Info().
		Str("model", model).
		Int("series", req.Series).
		Int64("start", req.Start).
		Int64("end", req.End).
		Str("protocol", res.Protocol).
		Msg("faja inutilizada")
	return inut, nil
}

func (o *FiscalOrchestrator) saveInutilization(ctx context.Context, inut *entity.Inutilization) {
	inut.UpdatedAt = o.now()
	if err := o.repos.Inutilizations.Update(ctx, inut); err != nil {
		o.log.Error().Err(err).Str("inutilization_id", inut.ID).Msg("no se pudo actualizar la inutilização")
	}
}

// ListInutilizations lista los pedidos de inutilização.
func (o *FiscalOrchestrator) ListInutilizations(ctx context.Context, limit, offset int) ([]*entity.Inutilization, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return o.repos.Inutilizations.List(ctx, limit, offset)
}
