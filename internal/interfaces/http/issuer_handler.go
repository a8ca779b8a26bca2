package http

import (
	"context"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/domain"
)

// IssuerService configuración del emisor y sus series.
type IssuerService interface {
	Configure(ctx context.Context, in dto.IssuerRequest) (*dto.IssuerResponse, error)
	Get(ctx context.Context) (*dto.IssuerResponse, error)
	SeedSeries(ctx context.Context, in dto.SeedSeriesRequest) (*dto.SeriesResponse, error)
}

// CertificateService carga y estado del certificado A1.
type CertificateService interface {
	Upload(ctx context.Context, bundle []byte, password string) (*dto.CertificateResponse, error)
	Status(ctx context.Context) (*dto.CertificateResponse, error)
}

// maxCertificateSize tamaño máximo aceptado para el .pfx.
const maxCertificateSize = 64 << 10

// IssuerHandler emisor y certificado digital.
type IssuerHandler struct {
	issuers IssuerService
	certs   CertificateService
}

// NewIssuerHandler construye el handler.
func NewIssuerHandler(issuers IssuerService, certs CertificateService) *IssuerHandler {
	return &IssuerHandler{issuers: issuers, certs: certs}
}

// Get godoc
// @Summary      Emisor configurado
// @Tags         issuer
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.IssuerResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/fiscal/issuer [get]
func (h *IssuerHandler) Get(c *fiber.Ctx) error {
	out, err := h.issuers.Get(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// Configure godoc
// @Summary      Configurar emisor
// @Tags         issuer
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.IssuerRequest  true  "datos fiscales del emisor"
// @Success      200   {object}  dto.IssuerResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/fiscal/issuer [put]
func (h *IssuerHandler) Configure(c *fiber.Ctx) error {
	var in dto.IssuerRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.issuers.Configure(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// SeedSeries godoc
// @Summary      Sembrar numeración de una serie
// @Description  Solo tiene efecto si la serie todavía no tiene contador.
// @Tags         issuer
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body  dto.SeedSeriesRequest  true  "modelo, serie y próximo número"
// @Success      200   {object}  dto.SeriesResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/fiscal/issuer/series [post]
func (h *IssuerHandler) SeedSeries(c *fiber.Ctx) error {
	var in dto.SeedSeriesRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	out, err := h.issuers.SeedSeries(c.UserContext(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// CertificateStatus godoc
// @Summary      Estado del certificado
// @Tags         certificate
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  dto.CertificateResponse
// @Router       /api/fiscal/certificate [get]
func (h *IssuerHandler) CertificateStatus(c *fiber.Ctx) error {
	out, err := h.certs.Status(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}

// UploadCertificate godoc
// @Summary      Cargar certificado A1
// @Tags         certificate
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        certificate  formData  file    true  "archivo .pfx / .p12"
// @Param        password     formData  string  true  "contraseña del archivo"
// @Success      200  {object}  dto.CertificateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      412  {object}  dto.ErrorResponse
// @Router       /api/fiscal/certificate [post]
func (h *IssuerHandler) UploadCertificate(c *fiber.Ctx) error {
	fh, err := c.FormFile("certificate")
	if err != nil {
		return writeError(c, domain.NewValidationError("certificate", "archivo requerido"))
	}
	if fh.Size > maxCertificateSize {
		return writeError(c, domain.NewValidationError("certificate", "archivo mayor a %d bytes", maxCertificateSize))
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, err)
	}
	defer f.Close()
	bundle, err := io.ReadAll(f)
	if err != nil {
		return writeError(c, err)
	}
	out, err := h.certs.Upload(c.UserContext(), bundle, c.FormValue("password"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(out)
}
