package httpx

import (
	"net/http"

	"github.com/athitex/fabricledger/internal/shared"
)

// RespondError maps ledger errors to HTTP responses using RFC7807. Capacity,
// claim and state conflicts all answer 409; the message carries the computed
// ceiling or conflicting entity so the caller can show the exact cause.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.KindCapacity:
		Problem(w, http.StatusConflict, "Capacity Exceeded", err.Error())
	case shared.KindClaimConflict:
		Problem(w, http.StatusConflict, "Claim Conflict", err.Error())
	case shared.KindStateConflict:
		Problem(w, http.StatusConflict, "State Conflict", err.Error())
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.KindUnavailable:
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
