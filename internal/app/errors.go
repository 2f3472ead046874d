package app

import (
	"errors"
	"fmt"
	"net/http"

	"catalog/api/internal/loader"
	"catalog/api/internal/sorting"
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

func invalidQuery(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_QUERY", message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var cfgErr *sorting.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusUnprocessableEntity, "UNSORTABLE_FIELD", cfgErr.Error(), map[string]any{"field": cfgErr.Field}
	}
	var netErr *loader.NetworkError
	var decodeErr *loader.DecodeError
	if errors.As(err, &netErr) || errors.As(err, &decodeErr) {
		return http.StatusBadGateway, "SOURCE_ERROR", "Catalog source unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
