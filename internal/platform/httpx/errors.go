// Package httpx provides the outbound result envelope and status mapping.
package httpx

import (
	"net/http"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

// StatusFor maps the core error taxonomy onto the fixed status code set.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch shared.KindOf(err) {
	case shared.KindValidation, shared.KindUnbalanced, shared.KindPeriodClosed, shared.KindInsufficientStock:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict, shared.KindAlreadyPosted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides storage details from callers.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if StatusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// RespondError writes err as a failed envelope.
func RespondError(w http.ResponseWriter, err error) {
	res := Fail[struct{}](err)
	JSON(w, res.StatusCode, res)
}
