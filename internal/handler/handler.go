package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/trocopix/trocopix/internal/errHandler"
	"github.com/trocopix/trocopix/internal/payout"
	"github.com/trocopix/trocopix/internal/response"
)

const ServiceName = "trocopix"

// respondPayoutError translates the orchestrator's typed errors into
// HTTP responses. Unknown errors fall through to a 500.
func respondPayoutError(eh *errHandler.ErrorHandler, w http.ResponseWriter, r *http.Request, err error) {
	var valErr *payout.ValidationError
	var polErr *payout.PolicyError
	var trErr *payout.TransitionError

	switch {
	case errors.As(err, &valErr):
		eh.UnprocessableEntity(w, r, valErr.Message, map[string]string{"code": valErr.Code})

	case errors.As(err, &polErr):
		eh.UnprocessableEntity(w, r, "Payout not allowed", map[string]string{"code": string(polErr.Reason)})

	case errors.As(err, &trErr):
		eh.Conflict(w, r, trErr.Error())

	case errors.Is(err, payout.ErrNotFound):
		eh.NotFound(w, r)

	case errors.Is(err, payout.ErrTransient):
		eh.Conflict(w, r, "The operation conflicted with a concurrent update, please retry")

	default:
		eh.ServerError(w, r, err)
	}
}

func nullablePhone(phone string) sql.NullString {
	return sql.NullString{String: phone, Valid: phone != ""}
}

func jsonOk(eh *errHandler.ErrorHandler, w http.ResponseWriter, r *http.Request, data any, message string) {
	err := response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		eh.ServerError(w, r, err)
	}
}
