package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deliverability/internal/api/response"
)

type Blacklist struct {
	checker BlacklistChecker
}

func NewBlacklist(checker BlacklistChecker) *Blacklist {
	return &Blacklist{checker: checker}
}

// Check godoc
//
//	@Summary		Query DNSBL providers for an IP address
//	@Tags			Reputation
//	@Security		ApiKeyAuth
//	@Param			ip path string true "IP address"
//	@Success		200 {object} model.BlacklistStatus
//	@Failure		400 {object} response.ErrorBody
//	@Router			/blacklist/{ip} [get]
func (h *Blacklist) Check(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	st, err := h.checker.CheckBlacklist(r.Context(), ip)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}
