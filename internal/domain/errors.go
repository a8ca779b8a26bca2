package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrUserNotFound       = errors.New("usuario no encontrado")
	ErrEmailAlreadyExists = errors.New("el email ya está registrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")
	ErrConflict           = errors.New("conflicto con el estado actual")
)

// Taxonomía de errores fiscales. Los tipos de fiscal_errors.go responden a
// errors.Is con estos centinelas.
var (
	// ErrValidation entrada mal formada; se rechaza antes de cualquier llamada de red.
	ErrValidation = errors.New("validación fallida")
	// ErrCredential certificado ausente, vencido o contraseña incorrecta; bloquea toda firma.
	ErrCredential = errors.New("credencial inválida")
	// ErrCommunication timeout, TLS o HTTP no 2xx contra la SEFAZ; activa contingencia.
	ErrCommunication = errors.New("falla de comunicación con la autoridad")
	// ErrAuthorityRejection respuesta 2xx con rechazo de negocio; no se reintenta solo.
	ErrAuthorityRejection = errors.New("rechazo de la autoridad")
	// ErrFailedPrecondition cancelación tardía, emisor inactivo, estado incompatible.
	ErrFailedPrecondition = errors.New("precondición no satisfecha")
)
