package handler

import (
	"net/http"
	"time"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/compliance"
	"github.com/edvin/deliverability/internal/model"
)

type Send struct {
	svc SendService
	log SendLogService
	now func() time.Time
}

func NewSend(svc SendService, log SendLogService) *Send {
	return &Send{svc: svc, log: log, now: time.Now}
}

// Send godoc
//
//	@Summary		Send one message through the governance pipeline
//	@Description	Suppression, rate limits and header compliance are enforced before dispatch.
//	@Tags			Send
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.SendEmail true "Message"
//	@Success		200 {object} model.SendResult
//	@Failure		422 {object} response.ErrorBody "Recipient suppressed"
//	@Failure		429 {object} response.ErrorBody "Rate limit exceeded"
//	@Failure		502 {object} response.ErrorBody "Dispatch failed"
//	@Router			/domains/{domainID}/send [post]
func (h *Send) Send(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.SendEmail
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Send(r.Context(), model.SendRequest{
		EmailDomainID:  domainID,
		EmailAccountID: req.EmailAccountID,
		Recipient:      req.Recipient,
		Subject:        req.Subject,
		Body:           req.Body,
		Headers:        req.Headers,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// SendLog godoc
//
//	@Summary		Recent sending-log entries
//	@Tags			Send
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			limit query int false "Maximum rows" default(100)
//	@Success		200 {object} response.ListResponse{items=[]model.SendLogEntry}
//	@Router			/domains/{domainID}/send-log [get]
func (h *Send) SendLog(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	items, err := h.log.ListByDomain(r.Context(), domainID, request.ParseLimit(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, items)
}

type headerValidation struct {
	compliance.ValidationResult
	Prepared map[string]string `json:"prepared,omitempty"`
}

// ValidateHeaders godoc
//
//	@Summary		Check a header set for compliance
//	@Description	With ?domain=, the response also carries the headers with defaults filled in.
//	@Tags			Send
//	@Security		ApiKeyAuth
//	@Param			domain query string false "Sending domain used for defaults"
//	@Param			body body request.ValidateHeaders true "Headers"
//	@Success		200 {object} compliance.ValidationResult
//	@Router			/headers/validate [post]
func (h *Send) ValidateHeaders(w http.ResponseWriter, r *http.Request) {
	var req request.ValidateHeaders
	if !decode(w, r, &req) {
		return
	}
	hdrs := compliance.FromMap(req.Headers)
	out := headerValidation{ValidationResult: compliance.Validate(hdrs)}
	if domain := r.URL.Query().Get("domain"); domain != "" {
		out.Prepared = compliance.AddDefaults(hdrs, domain, h.now()).Map()
	}
	response.WriteJSON(w, http.StatusOK, out)
}
