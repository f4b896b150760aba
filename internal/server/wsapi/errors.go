package wsapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

// statusFor maps a service error to an HTTP status. Soft failures
// (unknown token, throttling, taken address) stay 200 and are reported
// as success=false so they cannot be told apart.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrorPasswordLength),
		errors.Is(err, common.ErrorMalformedAddress),
		errors.Is(err, common.ErrorUnknownPurpose),
		errors.Is(err, common.ErrorMalformedBundle):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorForbidden),
		errors.Is(err, common.ErrorSameAccount),
		errors.Is(err, common.ErrorUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrorThrottled),
		errors.Is(err, common.ErrorDuplicateAddress):
		return http.StatusOK
	case errors.Is(err, common.ErrorServerBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type failure struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// failureBody hides details of soft failures and internal errors.
func failureBody(code int, err error) failure {
	switch code {
	case http.StatusOK, http.StatusInternalServerError:
		return failure{}
	default:
		return failure{Reason: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
