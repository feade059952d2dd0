package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
)

const (
	defaultBounceThreshold    = 0.05
	defaultComplaintThreshold = 0.001
)

// urlID reads a required chi URL parameter, writing a 400 when it is empty.
func urlID(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	id, err := request.RequireID(chi.URLParam(r, key))
	if err != nil {
		response.WriteValidationError(w, err)
		return "", false
	}
	return id, true
}

// decode reads and validates a JSON body, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := request.Decode(r, v); err != nil {
		response.WriteValidationError(w, err)
		return false
	}
	return true
}
