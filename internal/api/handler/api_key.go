package handler

import (
	"net/http"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/model"
)

// APIKey handles API key management endpoints.
type APIKey struct {
	svc APIKeyService
}

func NewAPIKey(svc APIKeyService) *APIKey {
	return &APIKey{svc: svc}
}

type createdAPIKey struct {
	model.APIKey
	Key string `json:"key"`
}

// Create generates a new API key. The raw key is returned once in the response.
//
//	@Summary		Create an API key
//	@Tags			API keys
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateAPIKey true "Key"
//	@Success		201 {object} createdAPIKey
//	@Router			/api-keys [post]
func (h *APIKey) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateAPIKey
	if !decode(w, r, &req) {
		return
	}
	key, raw, err := h.svc.Create(r.Context(), req.Name)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, createdAPIKey{APIKey: *key, Key: raw})
}

// List godoc
//
//	@Summary		List API keys
//	@Tags			API keys
//	@Security		ApiKeyAuth
//	@Success		200 {object} response.ListResponse{items=[]model.APIKey}
//	@Router			/api-keys [get]
func (h *APIKey) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, keys)
}

// Revoke godoc
//
//	@Summary		Revoke an API key
//	@Tags			API keys
//	@Security		ApiKeyAuth
//	@Param			keyID path string true "Key ID"
//	@Success		204
//	@Router			/api-keys/{keyID} [delete]
func (h *APIKey) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "keyID")
	if !ok {
		return
	}
	if err := h.svc.Revoke(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
