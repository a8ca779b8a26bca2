package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/application/fiscal"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// ContingencyService estado de contingencia y cola de retransmisión.
type ContingencyService interface {
	State() entity.ContingencyState
	ActivateManual(justification string) error
	Deactivate() bool
	List(ctx context.Context, includeDone bool) ([]*entity.QueueEntry, error)
	ForceRetry(ctx context.Context, entryID string) (*entity.QueueEntry, error)
	Drain(ctx context.Context) (fiscal.DrainReport, error)
}

// ContingencyHandler operación manual de la contingencia.
type ContingencyHandler struct {
	svc ContingencyService
}

// NewContingencyHandler construye el handler.
func NewContingencyHandler(svc ContingencyService) *ContingencyHandler {
	return &ContingencyHandler{svc: svc}
}

// State godoc
// @Summary      Estado de contingencia
// @Tags         contingency
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.ContingencyStateResponse
// @Router       /api/fiscal/contingency [get]
func (h *ContingencyHandler) State(c *fiber.Ctx) error {
	return c.JSON(fiscal.ContingencyStateToResponse(h.svc.State()))
}

// Activate godoc
// @Summary      Activar contingencia manualmente
// @Tags         contingency
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.ActivateContingencyRequest  true  "justificativa (15 a 256 caracteres)"
// @Success      200   {object}  dto.ContingencyStateResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/fiscal/contingency/activate [post]
func (h *ContingencyHandler) Activate(c *fiber.Ctx) error {
	var in dto.ActivateContingencyRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := h.svc.ActivateManual(in.Justification); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.ContingencyStateToResponse(h.svc.State()))
}

// Deactivate godoc
// @Summary      Salir de contingencia
// @Description  Los documentos encolados se siguen transmitiendo en el próximo drenaje.
// @Tags         contingency
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.ContingencyStateResponse
// @Router       /api/fiscal/contingency/deactivate [post]
func (h *ContingencyHandler) Deactivate(c *fiber.Ctx) error {
	h.svc.Deactivate()
	return c.JSON(fiscal.ContingencyStateToResponse(h.svc.State()))
}

// Queue godoc
// @Summary      Cola de contingencia
// @Tags         contingency
// @Produce      json
// @Security     BearerAuth
// @Param        all  query  bool  false  "incluir las transmitidas"
// @Success      200  {array}  dto.QueueEntryResponse
// @Router       /api/fiscal/contingency/queue [get]
func (h *ContingencyHandler) Queue(c *fiber.Ctx) error {
	list, err := h.svc.List(c.UserContext(), c.QueryBool("all"))
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.QueueEntryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, fiscal.QueueEntryToResponse(e))
	}
	return c.JSON(out)
}

// Retry godoc
// @Summary      Reintentar entrada en ERROR
// @Tags         contingency
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID de la entrada"
// @Success      200  {object}  dto.QueueEntryResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/fiscal/contingency/queue/{id}/retry [post]
func (h *ContingencyHandler) Retry(c *fiber.Ctx) error {
	entry, err := h.svc.ForceRetry(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.QueueEntryToResponse(entry))
}

// Drain godoc
// @Summary      Drenar la cola ahora
// @Tags         contingency
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.DrainResponse
// @Router       /api/fiscal/contingency/drain [post]
func (h *ContingencyHandler) Drain(c *fiber.Ctx) error {
	report, err := h.svc.Drain(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.DrainReportToResponse(report))
}
