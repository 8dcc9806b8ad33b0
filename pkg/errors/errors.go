package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation      = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrConflict        = NewError("CONFLICT", "resource conflict", http.StatusConflict)
	ErrTransport       = NewError("TRANSPORT_ERROR", "internal server error", http.StatusInternalServerError)
	ErrInternal        = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	ErrTooManyRequests = NewError("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrUnavailable     = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
)

// Error is the application error carried up to the HTTP layer. Message and
// Details are safe to show to callers; Cause is only logged.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

type ErrorResponse struct {
	Error     string                 `json:"error"`
	ErrorCode string                 `json:"error_code"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches application errors by code so that errors.Is(err, ErrConflict)
// holds for any copy produced by WithCause or WithDetail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsValidation(err error) bool {
	return hasCode(err, ErrValidation.Code)
}

func IsConflict(err error) bool {
	return hasCode(err, ErrConflict.Code)
}

func IsTransport(err error) bool {
	return hasCode(err, ErrTransport.Code)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders err for callers. Anything that is not an *Error is
// reported as a generic internal error so transport details never leak.
func ToErrorResponse(err error) ErrorResponse {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal
	}

	response := ErrorResponse{
		Error:     appErr.Message,
		ErrorCode: appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response.Details = appErr.Details
	}

	return response
}
