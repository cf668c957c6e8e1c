package runtime

import (
	"context"
	"errors"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
	"github.com/drblury/runtimeclient/internal/runtime/handlers"
)

type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryTransport  ErrorCategory = "transport"
	ErrorCategoryDownstream ErrorCategory = "downstream"
	ErrorCategoryOther      ErrorCategory = "other"
)

// ErrorClassifier sorts handler errors into the buckets of ErrorBreakdown.
type ErrorClassifier func(error) ErrorCategory

// ErrorBreakdown counts failed requests per ErrorCategory.
type ErrorBreakdown struct {
	Validation uint64 `json:"validation"`
	Transport  uint64 `json:"transport"`
	Downstream uint64 `json:"downstream"`
	Other      uint64 `json:"other"`
	LastError  string `json:"last_error,omitempty"`
}

// Record counts err under category. Nil errors are ignored; an error
// classified as none or as an unknown category counts as other.
func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	if err == nil {
		return
	}
	e.LastError = err.Error()
	switch category {
	case ErrorCategoryValidation:
		e.Validation++
	case ErrorCategoryTransport:
		e.Transport++
	case ErrorCategoryDownstream:
		e.Downstream++
	default:
		e.Other++
	}
}

// defaultErrorClassifier treats undecodable events as validation failures,
// lost Runtime connections as transport failures and expired contexts as
// slow dependencies.
func defaultErrorClassifier(err error) ErrorCategory {
	var unprocessable *handlers.UnprocessableEventError
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.As(err, &unprocessable):
		return ErrorCategoryValidation
	case errors.Is(err, errpkg.ErrCouldNotConnect), errors.Is(err, errpkg.ErrPingTimedOut):
		return ErrorCategoryTransport
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryDownstream
	default:
		return ErrorCategoryOther
	}
}
