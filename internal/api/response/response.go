package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/deliverability/internal/core"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// ErrorBody is the payload written for service errors.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case core.KindSuppressed:
		return http.StatusUnprocessableEntity
	case core.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case core.KindProvisionerUnavailable:
		return http.StatusServiceUnavailable
	case core.KindTransientSendFailure, core.KindPermanentSendFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with the status derived from its kind.
// Internal errors are reported without their wrapped detail.
func WriteServiceError(w http.ResponseWriter, err error) {
	kind := core.KindOf(err)
	msg := core.MessageOf(err)
	if kind == core.KindInternal {
		msg = "internal error"
	}
	WriteJSON(w, StatusForKind(kind), ErrorBody{Error: msg, Kind: string(kind)})
}

// WriteValidationError writes a 400 for a request that failed decoding.
func WriteValidationError(w http.ResponseWriter, err error) {
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error(), Kind: string(core.KindValidation)})
}

// ListResponse wraps a list.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

// WriteList writes items with their count. A nil slice is written as [].
func WriteList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, http.StatusOK, ListResponse{Items: items, Count: len(items)})
}
