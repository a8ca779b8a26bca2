package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/application/fiscal"
	"github.com/jhoicas/Fiscal-api/internal/domain"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// DocumentService operaciones del orquestador expuestas por HTTP.
type DocumentService interface {
	Emit(ctx context.Context, req fiscal.EmitRequest) (*fiscal.EmissionResult, error)
	GetDocument(ctx context.Context, id string) (*entity.FiscalDocument, error)
	GetDocumentByKey(ctx context.Context, key string) (*entity.FiscalDocument, error)
	GetArtifact(ctx context.Context, key, kind string) (string, error)
	SyncDocument(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Cancel(ctx context.Context, documentID, justification string) (*entity.Cancellation, error)
	VoidRange(ctx context.Context, req fiscal.VoidRequest) (*entity.Inutilization, error)
	ListInutilizations(ctx context.Context, limit, offset int) ([]*entity.Inutilization, error)
}

// FiscalHandler emisión, consulta, cancelamento e inutilização.
type FiscalHandler struct {
	svc DocumentService
}

// NewFiscalHandler construye el handler.
func NewFiscalHandler(svc DocumentService) *FiscalHandler {
	return &FiscalHandler{svc: svc}
}

// Emit godoc
// @Summary      Emitir NF-e / NFC-e
// @Description  Numera, firma y transmite. Si la SEFAZ no responde el documento queda en contingencia (202).
// @Tags         fiscal
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.EmitDocumentRequest  true  "venta"
// @Success      201   {object}  dto.EmissionResponse
// @Success      202   {object}  dto.EmissionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      412   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents [post]
func (h *FiscalHandler) Emit(c *fiber.Ctx) error {
	var in dto.EmitDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.svc.Emit(c.UserContext(), fiscal.EmitRequestFromDTO(in))
	if err != nil {
		if res != nil && res.Document != nil {
			return writeError(c, err, "document_id="+res.Document.ID, "access_key="+res.Document.AccessKey)
		}
		return writeError(c, err)
	}
	status := fiber.StatusCreated
	if res.Contingency {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiscal.EmissionToResponse(res))
}

// GetByID godoc
// @Summary      Obtener documento fiscal
// @Tags         fiscal
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id} [get]
func (h *FiscalHandler) GetByID(c *fiber.Ctx) error {
	doc, err := h.svc.GetDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.DocumentToResponse(doc))
}

// GetByKey godoc
// @Summary      Obtener documento por chave de acesso
// @Tags         fiscal
// @Produce      json
// @Security     BearerAuth
// @Param        key  path  string  true  "chave de 44 dígitos"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal/keys/{key} [get]
func (h *FiscalHandler) GetByKey(c *fiber.Ctx) error {
	doc, err := h.svc.GetDocumentByKey(c.UserContext(), c.Params("key"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.DocumentToResponse(doc))
}

// Artifact godoc
// @Summary      Descargar XML
// @Description  kind: outgoing (firmado), response (retorno SEFAZ) o authorized (nfeProc).
// @Tags         fiscal
// @Produce      xml
// @Security     BearerAuth
// @Param        key   path  string  true  "chave de acesso"
// @Param        kind  path  string  true  "outgoing | response | authorized"
// @Success      200
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal/keys/{key}/xml/{kind} [get]
func (h *FiscalHandler) Artifact(c *fiber.Ctx) error {
	xml, err := h.svc.GetArtifact(c.UserContext(), c.Params("key"), c.Params("kind"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.SendString(xml)
}

// Sync godoc
// @Summary      Sincronizar con la SEFAZ
// @Description  Consulta el protocolo de un documento pendiente y aplica el resultado.
// @Tags         fiscal
// @Produce      json
// @Security     BearerAuth
// @Param        id   path  string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id}/sync [post]
func (h *FiscalHandler) Sync(c *fiber.Ctx) error {
	doc, err := h.svc.SyncDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.DocumentToResponse(doc))
}

// Cancel godoc
// @Summary      Cancelar documento autorizado
// @Tags         fiscal
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path  string                     true  "ID del documento"
// @Param        body  body  dto.CancelDocumentRequest  true  "justificativa (15 a 255 caracteres)"
// @Success      200   {object}  dto.CancellationResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/fiscal/documents/{id}/cancel [post]
func (h *FiscalHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.svc.Cancel(c.UserContext(), c.Params("id"), in.Justification)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiscal.CancellationToResponse(out))
}

// VoidRange godoc
// @Summary      Inutilizar faja de numeración
// @Tags         fiscal
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.VoidRangeRequest  true  "serie, faja y justificativa"
// @Success      201   {object}  dto.InutilizationResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/fiscal/inutilizations [post]
func (h *FiscalHandler) VoidRange(c *fiber.Ctx) error {
	var in dto.VoidRangeRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.svc.VoidRange(c.UserContext(), fiscal.VoidRequest{
		Model:         in.Model,
		Series:        in.Series,
		Start:         in.Start,
		End:           in.End,
		Justification: in.Justification,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiscal.InutilizationToResponse(out))
}

// ListInutilizations godoc
// @Summary      Listar inutilizações
// @Tags         fiscal
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "máximo 100"
// @Param        offset  query  int  false  "desplazamiento"
// @Success      200  {object}  dto.InutilizationListResponse
// @Router       /api/fiscal/inutilizations [get]
func (h *FiscalHandler) ListInutilizations(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return writeError(c, errors.Join(domain.ErrInvalidInput, err))
	}
	page.DefaultPage()
	if page.Limit > 100 {
		page.Limit = 100
	}
	list, err := h.svc.ListInutilizations(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return writeError(c, err)
	}
	out := dto.InutilizationListResponse{
		Items: make([]dto.InutilizationResponse, 0, len(list)),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}
	for _, i := range list {
		out.Items = append(out.Items, fiscal.InutilizationToResponse(i))
	}
	return c.JSON(out)
}
