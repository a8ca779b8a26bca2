package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/domain"
)

// statusFor traduce la taxonomía de errores de dominio a código HTTP y código de error.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrEmailAlreadyExists):
		return fiber.StatusConflict, "EMAIL_EXISTS"
	case errors.Is(err, domain.ErrFailedPrecondition):
		return fiber.StatusConflict, "FAILED_PRECONDITION"
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrCredential):
		return fiber.StatusPreconditionFailed, "CREDENTIAL"
	case errors.Is(err, domain.ErrAuthorityRejection):
		return fiber.StatusUnprocessableEntity, "AUTHORITY_REJECTION"
	case errors.Is(err, domain.ErrCommunication):
		return fiber.StatusBadGateway, "AUTHORITY_UNAVAILABLE"
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, "FORBIDDEN"
	default:
		return fiber.StatusInternalServerError, "INTERNAL"
	}
}

// writeError responde el error con el cuerpo dto.ErrorResponse.
func writeError(c *fiber.Ctx, err error, details ...string) error {
	status, code := statusFor(err)
	body := dto.ErrorResponse{Code: code, Message: err.Error(), Details: details}
	switch code {
	case "VALIDATION":
		body.Details = append(validationDetails(err), details...)
	case "UNAUTHORIZED":
		body.Message = "credenciales inválidas"
	case "INTERNAL":
		log.Error().Err(err).Str("path", c.Path()).Msg("error interno")
		body.Message = "error interno"
	}
	var rejection *domain.AuthorityRejection
	if errors.As(err, &rejection) {
		body.Details = append([]string{"cStat=" + rejection.Code}, body.Details...)
	}
	return c.Status(status).JSON(body)
}

// validationDetails un mensaje por campo, también para errores unidos con errors.Join.
func validationDetails(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, validationDetails(e)...)
		}
		return out
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return []string{ve.Error()}
	}
	return nil
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
