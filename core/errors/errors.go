package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorCode string

const (
	ErrInternalServer             ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInvalidInput               ErrorCode = "INVALID_INPUT"
	ErrInvalidRequestData         ErrorCode = "INVALID_REQUEST_DATA"
	ErrUnauthorized               ErrorCode = "UNAUTHORIZED"
	ErrForbidden                  ErrorCode = "FORBIDDEN"
	ErrNotFound                   ErrorCode = "NOT_FOUND"
	ErrAlreadyExists              ErrorCode = "ALREADY_EXISTS"
	ErrTokenExpired               ErrorCode = "TOKEN_EXPIRED"
	ErrInvalidTokenFormat         ErrorCode = "INVALID_TOKEN_FORMAT"
	ErrMissingAuthorizationHeader ErrorCode = "MISSING_AUTHORIZATION_HEADER"

	// Engine-specific codes. Transient and stale-state are normal runtime
	// outcomes, not failures; callers decide severity.
	ErrTransient    ErrorCode = "TRANSIENT"
	ErrAuthRevoked  ErrorCode = "AUTH_REVOKED"
	ErrStaleState   ErrorCode = "STALE_STATE"
	ErrOfferExpired ErrorCode = "OFFER_EXPIRED"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is matches AppErrors by code so errors.Is works across wrapping.
func (e *AppError) Is(target error) bool {
	var ae *AppError
	if stderrors.As(target, &ae) {
		return ae.Code == e.Code
	}
	return false
}

func CodeOf(err error) ErrorCode {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return ErrInternalServer
}

func IsTransient(err error) bool {
	return CodeOf(err) == ErrTransient
}

func IsAuthRevoked(err error) bool {
	return CodeOf(err) == ErrAuthRevoked
}

func IsStaleState(err error) bool {
	return CodeOf(err) == ErrStaleState
}

func IsOfferExpired(err error) bool {
	return CodeOf(err) == ErrOfferExpired
}
