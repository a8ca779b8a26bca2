package domain

import (
	"errors"
	"fmt"
)

// ValidationError describe un campo inválido del documento o de la solicitud.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError construye un ValidationError con mensaje formateado.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validación: " + e.Message
	}
	return fmt.Sprintf("validación: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CredentialFailure motivo de un CredentialError.
type CredentialFailure string

const (
	CredentialWrongPassword     CredentialFailure = "WRONG_PASSWORD"
	CredentialMalformedBundle   CredentialFailure = "MALFORMED_BUNDLE"
	CredentialMissingPrivateKey CredentialFailure = "MISSING_PRIVATE_KEY"
	CredentialExpired           CredentialFailure = "EXPIRED"
	CredentialNotLoaded         CredentialFailure = "NOT_LOADED"
	CredentialSigningFailed     CredentialFailure = "SIGNING_FAILED"
)

// CredentialError falla al cargar o usar el certificado digital.
type CredentialError struct {
	Reason CredentialFailure
	Err    error
}

// NewCredentialError construye un CredentialError; err puede ser nil.
func NewCredentialError(reason CredentialFailure, err error) *CredentialError {
	return &CredentialError{Reason: reason, Err: err}
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credencial: %s", e.Reason)
	}
	return fmt.Sprintf("credencial: %s: %v", e.Reason, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Is(target error) bool { return target == ErrCredential }

// CommunicationError falla de transporte contra la SEFAZ (timeout, TLS, HTTP no 2xx).
type CommunicationError struct {
	Operation  string
	Endpoint   string
	StatusCode int // 0 si no hubo respuesta HTTP
	Timeout    bool
	Err        error
}

func (e *CommunicationError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("comunicación %s: timeout en %s: %v", e.Operation, e.Endpoint, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("comunicación %s: HTTP %d en %s", e.Operation, e.StatusCode, e.Endpoint)
	default:
		return fmt.Sprintf("comunicación %s: %s: %v", e.Operation, e.Endpoint, e.Err)
	}
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func (e *CommunicationError) Is(target error) bool { return target == ErrCommunication }

// AuthorityRejection la SEFAZ respondió con un cStat de rechazo. Reason es el xMotivo literal.
type AuthorityRejection struct {
	Code   string
	Reason string
}

func (e *AuthorityRejection) Error() string {
	return fmt.Sprintf("rechazo SEFAZ [%s]: %s", e.Code, e.Reason)
}

func (e *AuthorityRejection) Is(target error) bool { return target == ErrAuthorityRejection }

// PreconditionError la operación no aplica al estado actual.
type PreconditionError struct {
	Message string
}

// NewPreconditionError construye un PreconditionError con mensaje formateado.
func NewPreconditionError(format string, args ...any) *PreconditionError {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

func (e *PreconditionError) Error() string { return "precondición: " + e.Message }

func (e *PreconditionError) Is(target error) bool { return target == ErrFailedPrecondition }

// IsCommunication indica si err (o alguno de sus envueltos) es un CommunicationError.
func IsCommunication(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}
