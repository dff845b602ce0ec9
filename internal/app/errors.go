package app

import (
	"errors"
	"fmt"
	"net/http"

	"sheetkeeper/api/internal/auth"
	"sheetkeeper/api/internal/authpw"
	"sheetkeeper/api/internal/character"
	"sheetkeeper/api/internal/engine"
	"sheetkeeper/api/internal/export"
	"sheetkeeper/api/internal/portrait"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, engine.ErrNoIdentity):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN", err.Error(), nil
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Character not found", nil
	case errors.Is(err, engine.ErrPermissionDenied):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, engine.ErrNoSelection):
		return http.StatusConflict, "NO_SELECTION", "No character is open", nil
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, authpw.ErrInvalidInput), errors.Is(err, character.ErrUnknownField):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, portrait.ErrUnsupportedType), errors.Is(err, portrait.ErrEmpty):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, portrait.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "TOO_LARGE", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, engine.ErrTransient):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Store temporarily unavailable", nil
	case errors.Is(err, engine.ErrSessionClosed):
		return http.StatusGone, "SESSION_CLOSED", "Session closed", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
