package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

type AppError struct {
	Code    string
	Message string
	Fields  map[string]string
	Cause   error
}

func (e *AppError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, e.fieldSummary())
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so sentinel values work
// with errors.Is after New/Wrap produced a fresh instance.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) fieldSummary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrValidation = &AppError{Code: "VALID_001", Message: "validation failed"}

	ErrDuplicateUser = &AppError{Code: "USER_001", Message: "user already exists"}
	ErrUserNotFound  = &AppError{Code: "USER_002", Message: "user not found"}
	ErrNoActiveUser  = &AppError{Code: "USER_003", Message: "no active user selected"}

	ErrStorageUnavailable = &AppError{Code: "STORE_001", Message: "storage unavailable"}

	ErrScheduleNotFound = &AppError{Code: "SCHED_001", Message: "schedule not found"}

	ErrAlertDelivery = &AppError{Code: "ALERT_001", Message: "alert delivery failed"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

// Validation builds a VALID_001 error carrying per-field messages.
func Validation(fields map[string]string) *AppError {
	return &AppError{
		Code:    ErrValidation.Code,
		Message: ErrValidation.Message,
		Fields:  fields,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// FieldErrors returns the field map of the first AppError in the chain.
func FieldErrors(err error) map[string]string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Fields
	}
	return nil
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Storage wraps a backend failure as STORE_001.
func Storage(err error, op string) *AppError {
	return Wrap(err, ErrStorageUnavailable.Code, op)
}
