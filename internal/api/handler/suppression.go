package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
)

type Suppression struct {
	svc SuppressionService
}

func NewSuppression(svc SuppressionService) *Suppression {
	return &Suppression{svc: svc}
}

// List godoc
//
//	@Summary		List suppressed addresses
//	@Tags			Suppressions
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} response.ListResponse{items=[]model.Suppression}
//	@Router			/domains/{domainID}/suppressions [get]
func (h *Suppression) List(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	items, err := h.svc.List(r.Context(), domainID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, items)
}

// Add godoc
//
//	@Summary		Suppress an address
//	@Description	Upserts: an existing entry has its type and reason replaced.
//	@Tags			Suppressions
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.AddSuppression true "Suppression"
//	@Success		201 {object} model.Suppression
//	@Failure		400 {object} response.ErrorBody
//	@Router			/domains/{domainID}/suppressions [post]
func (h *Suppression) Add(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.AddSuppression
	if !decode(w, r, &req) {
		return
	}
	sup, err := h.svc.Add(r.Context(), domainID, req.EmailAddress, req.SuppressionType, req.Reason)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, sup)
}

// Check godoc
//
//	@Summary		Check whether an address is suppressed
//	@Tags			Suppressions
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			email query string true "Address"
//	@Success		200 {object} map[string]any
//	@Router			/domains/{domainID}/suppressions/check [get]
func (h *Suppression) Check(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	email := r.URL.Query().Get("email")
	if email == "" {
		response.WriteServiceError(w, &core.Error{Kind: core.KindValidation, Message: "email query parameter is required"})
		return
	}
	suppressed, err := h.svc.IsSuppressed(r.Context(), domainID, email)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"email_address": core.NormalizeAddress(email),
		"suppressed":    suppressed,
	})
}

// Remove godoc
//
//	@Summary		Remove a suppression
//	@Tags			Suppressions
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			email path string true "Address"
//	@Success		204
//	@Failure		404 {object} response.ErrorBody
//	@Router			/domains/{domainID}/suppressions/{email} [delete]
func (h *Suppression) Remove(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	email := chi.URLParam(r, "email")
	if email == "" {
		response.WriteServiceError(w, &core.Error{Kind: core.KindValidation, Message: "missing email address"})
		return
	}
	if err := h.svc.Remove(r.Context(), domainID, email); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
