package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/model"
)

type RateLimit struct {
	svc RateLimitService
}

func NewRateLimit(svc RateLimitService) *RateLimit {
	return &RateLimit{svc: svc}
}

// Status godoc
//
//	@Summary		Current usage of a rate-limit window
//	@Tags			Rate limits
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			limitType path string true "daily, hourly or per_minute"
//	@Param			account_id query string false "Account ID"
//	@Success		200 {object} model.RateLimitStatus
//	@Router			/domains/{domainID}/rate-limits/{limitType} [get]
func (h *RateLimit) Status(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	limitType := chi.URLParam(r, "limitType")
	if !model.ValidLimitType(limitType) {
		response.WriteServiceError(w, &core.Error{Kind: core.KindValidation, Message: "invalid limit type " + limitType})
		return
	}
	st, err := h.svc.Status(r.Context(), domainID, request.OptionalQuery(r, "account_id"), limitType)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, st)
}

// Set godoc
//
//	@Summary		Set a rate-limit ceiling
//	@Tags			Rate limits
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.SetRateLimit true "Limit"
//	@Success		200 {object} model.RateLimit
//	@Router			/domains/{domainID}/rate-limits [put]
func (h *RateLimit) Set(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.SetRateLimit
	if !decode(w, r, &req) {
		return
	}
	rl, err := h.svc.SetLimit(r.Context(), domainID, req.EmailAccountID, req.LimitType, req.LimitValue)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rl)
}
