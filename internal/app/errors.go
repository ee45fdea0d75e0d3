package app

import (
	"database/sql"
	"errors"
	"net/http"

	"portfolio/api/internal/auth"
	"portfolio/api/internal/nav"
)

// DomainError is an error with an HTTP status and a stable machine-readable
// code. Handlers pass errors through mapError; anything that is not a
// DomainError or a known sentinel becomes a 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string { return e.Message }

func domainError(status int, code, message string) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message}
}

func mapError(err error) (int, string, string, map[string]any) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Status, de.Code, de.Message, de.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, nav.ErrEvidenceNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil
	case errors.Is(err, nav.ErrLinkingInProgress), errors.Is(err, nav.ErrLinkingNotActive):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil
}
