package handler

import (
	"net/http"
	"time"

	"github.com/edvin/deliverability/internal/api/response"
)

type Reputation struct {
	svc ReputationService
	now func() time.Time
}

func NewReputation(svc ReputationService) *Reputation {
	return &Reputation{svc: svc, now: time.Now}
}

// Summary godoc
//
//	@Summary		Today's reputation for a domain
//	@Tags			Reputation
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.ReputationSummary
//	@Router			/domains/{domainID}/reputation [get]
func (h *Reputation) Summary(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	sum, err := h.svc.Summary(r.Context(), domainID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, sum)
}

// Thresholds godoc
//
//	@Summary		Reputation threshold report
//	@Tags			Reputation
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.ThresholdReport
//	@Router			/domains/{domainID}/reputation/thresholds [get]
func (h *Reputation) Thresholds(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	rep, err := h.svc.CheckThresholds(r.Context(), domainID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, rep)
}

// Recompute godoc
//
//	@Summary		Recompute today's reputation now
//	@Tags			Reputation
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.ReputationMetric
//	@Router			/domains/{domainID}/reputation/recompute [post]
func (h *Reputation) Recompute(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	m, err := h.svc.Recompute(r.Context(), domainID, h.now())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, m)
}
