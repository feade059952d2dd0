package handler

import (
	"net/http"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
)

type Bounce struct {
	svc  BounceService
	send SendService
}

func NewBounce(svc BounceService, send SendService) *Bounce {
	return &Bounce{svc: svc, send: send}
}

func bounceInput(domainID string, req request.CreateBounce) core.BounceInput {
	return core.BounceInput{
		EmailDomainID:  domainID,
		EmailAccountID: req.EmailAccountID,
		RecipientEmail: req.RecipientEmail,
		BounceType:     req.BounceType,
		BounceCode:     req.BounceCode,
		BounceMessage:  req.BounceMessage,
	}
}

// Create godoc
//
//	@Summary		Record a bounce
//	@Description	Hard bounces suppress the recipient. The domain's reputation is recomputed.
//	@Tags			Bounces
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.CreateBounce true "Bounce"
//	@Success		201 {object} model.Bounce
//	@Router			/domains/{domainID}/bounces [post]
func (h *Bounce) Create(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.CreateBounce
	if !decode(w, r, &req) {
		return
	}
	b, err := h.svc.ProcessBounce(r.Context(), bounceInput(domainID, req))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, b)
}

// Callback godoc
//
//	@Summary		Bounce notification from the mail server
//	@Description	Records the bounce and marks the matching sending-log entry bounced.
//	@Tags			Bounces
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.BounceCallback true "Bounce"
//	@Success		201 {object} model.Bounce
//	@Router			/domains/{domainID}/bounces/callback [post]
func (h *Bounce) Callback(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.BounceCallback
	if !decode(w, r, &req) {
		return
	}
	b, err := h.send.ProcessBounceAndUpdateLog(r.Context(), core.BounceCallback{
		BounceInput: bounceInput(domainID, req.CreateBounce),
		MessageID:   req.MessageID,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, b)
}

// List godoc
//
//	@Summary		List recent bounces
//	@Tags			Bounces
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			limit query int false "Maximum rows" default(100)
//	@Success		200 {object} response.ListResponse{items=[]model.Bounce}
//	@Router			/domains/{domainID}/bounces [get]
func (h *Bounce) List(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	items, err := h.svc.ListBounces(r.Context(), domainID, request.ParseLimit(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, items)
}

// Threshold godoc
//
//	@Summary		Compare today's bounce rate with a threshold
//	@Tags			Bounces
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			threshold query number false "Fraction" default(0.05)
//	@Success		200 {object} model.ThresholdResult
//	@Router			/domains/{domainID}/bounces/threshold [get]
func (h *Bounce) Threshold(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	threshold, err := request.ParseThreshold(r, defaultBounceThreshold)
	if err != nil {
		response.WriteValidationError(w, err)
		return
	}
	res, err := h.svc.CheckBounceRateThreshold(r.Context(), domainID, threshold)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}
