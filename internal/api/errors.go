package api

import (
	"context"
	"errors"
	"net/http"

	triagectx "github.com/davidahmann/licensetriage/internal/context"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/ledger"
	"github.com/davidahmann/licensetriage/internal/orchestrator"
	"github.com/davidahmann/licensetriage/internal/schema"
	"github.com/davidahmann/licensetriage/internal/template"
)

// StatusFor maps pipeline and ledger errors to HTTP status codes.
func StatusFor(err error) int {
	var validation *schema.ValidationError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidCorrection):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrDigestMismatch), errors.Is(err, ledger.ErrSignature), errors.Is(err, ledger.ErrUnknownKey):
		return http.StatusConflict
	case errors.As(err, &validation),
		errors.Is(err, template.ErrMissingTemplate),
		errors.Is(err, template.ErrMissingBinding),
		errors.Is(err, triagectx.ErrBudgetExceeded),
		errors.Is(err, triagectx.ErrInvalidBudget),
		errors.Is(err, orchestrator.ErrInvalidPipeline):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generation.ErrRetriesExhausted),
		errors.Is(err, generation.ErrTransient),
		errors.Is(err, generation.ErrFatal):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
