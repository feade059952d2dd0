package handler

import (
	"net/http"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
)

type Complaint struct {
	svc ComplaintService
}

func NewComplaint(svc ComplaintService) *Complaint {
	return &Complaint{svc: svc}
}

// Create godoc
//
//	@Summary		Record a spam complaint
//	@Description	Always suppresses the recipient and recomputes reputation.
//	@Tags			Complaints
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.CreateComplaint true "Complaint"
//	@Success		201 {object} model.Complaint
//	@Router			/domains/{domainID}/complaints [post]
func (h *Complaint) Create(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.CreateComplaint
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.ProcessComplaint(r.Context(), core.ComplaintInput{
		EmailDomainID:  domainID,
		RecipientEmail: req.RecipientEmail,
		Source:         req.Source,
		MessageID:      req.MessageID,
		Details:        req.Details,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

// AbuseReport godoc
//
//	@Summary		Record a manual abuse report
//	@Tags			Complaints
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.CreateAbuseReport true "Report"
//	@Success		201 {object} model.Complaint
//	@Router			/domains/{domainID}/abuse-reports [post]
func (h *Complaint) AbuseReport(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.CreateAbuseReport
	if !decode(w, r, &req) {
		return
	}
	c, err := h.svc.ProcessAbuseReport(r.Context(), domainID, req.RecipientEmail, req.Details)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

// List godoc
//
//	@Summary		List recent complaints
//	@Tags			Complaints
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			limit query int false "Maximum rows" default(100)
//	@Success		200 {object} response.ListResponse{items=[]model.Complaint}
//	@Router			/domains/{domainID}/complaints [get]
func (h *Complaint) List(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	items, err := h.svc.ListComplaints(r.Context(), domainID, request.ParseLimit(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, items)
}

// Threshold godoc
//
//	@Summary		Compare today's complaint rate with a threshold
//	@Tags			Complaints
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			threshold query number false "Fraction" default(0.001)
//	@Success		200 {object} model.ThresholdResult
//	@Router			/domains/{domainID}/complaints/threshold [get]
func (h *Complaint) Threshold(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	threshold, err := request.ParseThreshold(r, defaultComplaintThreshold)
	if err != nil {
		response.WriteValidationError(w, err)
		return
	}
	res, err := h.svc.CheckComplaintRateThreshold(r.Context(), domainID, threshold)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}
