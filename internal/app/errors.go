package app

import (
	"fmt"
	"net/http"
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

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func invalidArgument(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_ARGUMENT", message, nil)
}

func invalidState(message string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_STATE", message, nil)
}

func sessionExpired() *DomainError {
	return domainError(http.StatusGone, "SESSION_EXPIRED", "This session has expired", nil)
}

func upstreamUnavailable(message string) *DomainError {
	return domainError(http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", message, nil)
}

func resourceExhausted(message string) *DomainError {
	return domainError(http.StatusServiceUnavailable, "RESOURCE_EXHAUSTED", message, nil)
}
