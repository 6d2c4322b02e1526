package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode names a class of failure and the HTTP status it maps to.
type ErrorCode struct {
	Name       string
	StatusCode int
}

var (
	ErrorCodeParameterInvalid     = ErrorCode{Name: "PARAMETER_INVALID", StatusCode: http.StatusBadRequest}
	ErrorCodeResourceNotFound     = ErrorCode{Name: "RESOURCE_NOT_FOUND", StatusCode: http.StatusNotFound}
	ErrorCodeAuthPermissionDenied = ErrorCode{Name: "AUTH_PERMISSION_DENIED", StatusCode: http.StatusForbidden}
	ErrorCodeAuthNotAuthenticated = ErrorCode{Name: "AUTH_NOT_AUTHENTICATED", StatusCode: http.StatusUnauthorized}
	ErrorCodeInternalProcess      = ErrorCode{Name: "INTERNAL_PROCESS", StatusCode: http.StatusInternalServerError}
	ErrorCodeRemoteProcess        = ErrorCode{Name: "REMOTE_PROCESS_ERROR", StatusCode: http.StatusBadGateway}
)

// DomainError is the error type the handler layer knows how to render.
type DomainError struct {
	code      ErrorCode
	err       error
	clientMsg string
	detail    map[string]interface{}
}

type ErrorOption func(*DomainError)

// WithMsg sets the message shown to API clients.
func WithMsg(msg string) ErrorOption {
	return func(e *DomainError) {
		e.clientMsg = msg
	}
}

// WithDetail attaches structured detail, e.g. the offending field.
func WithDetail(detail map[string]interface{}) ErrorOption {
	return func(e *DomainError) {
		e.detail = detail
	}
}

func NewError(code ErrorCode, err error, opts ...ErrorOption) error {
	e := DomainError{code: code, err: err}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e DomainError) Error() string {
	if e.err == nil {
		return e.Name()
	}
	return fmt.Sprintf("%s: %s", e.Name(), e.err.Error())
}

func (e DomainError) Unwrap() error {
	return e.err
}

func (e DomainError) Name() string {
	if e.code.Name == "" {
		return "UNKNOWN_ERROR"
	}
	return e.code.Name
}

func (e DomainError) HTTPStatus() int {
	if e.code.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.code.StatusCode
}

func (e DomainError) ClientMsg() string {
	return e.clientMsg
}

func (e DomainError) Detail() map[string]interface{} {
	return e.detail
}
