package handler

import (
	"net/http"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
)

type Domain struct {
	svc DomainService
}

func NewDomain(svc DomainService) *Domain {
	return &Domain{svc: svc}
}

// List godoc
//
//	@Summary		List sending domains
//	@Tags			Domains
//	@Security		ApiKeyAuth
//	@Success		200 {object} response.ListResponse{items=[]model.EmailDomain}
//	@Failure		500 {object} response.ErrorBody
//	@Router			/domains [get]
func (h *Domain) List(w http.ResponseWriter, r *http.Request) {
	domains, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, domains)
}

// Create godoc
//
//	@Summary		Register a sending domain
//	@Description	Creates the domain in pending state and requests a DKIM key from the mail server.
//	@Tags			Domains
//	@Security		ApiKeyAuth
//	@Param			body body request.CreateDomain true "Domain details"
//	@Success		201 {object} model.EmailDomain
//	@Failure		400 {object} response.ErrorBody
//	@Router			/domains [post]
func (h *Domain) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateDomain
	if !decode(w, r, &req) {
		return
	}

	d, err := h.svc.Create(r.Context(), core.CreateDomainInput{
		Name:         req.Name,
		MailServerIP: req.MailServerIP,
		MXPriority:   req.MXPriority,
		DKIMSelector: req.DKIMSelector,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, d)
}

// Get godoc
//
//	@Summary		Get a sending domain
//	@Tags			Domains
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.EmailDomain
//	@Failure		404 {object} response.ErrorBody
//	@Router			/domains/{domainID} [get]
func (h *Domain) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	d, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, d)
}

// GenerateDKIM godoc
//
//	@Summary		Generate a DKIM key
//	@Tags			Domains
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.DKIMSetup
//	@Failure		503 {object} response.ErrorBody
//	@Router			/domains/{domainID}/dkim [post]
func (h *Domain) GenerateDKIM(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	setup, err := h.svc.GenerateDKIM(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, setup)
}

// DNSRecords godoc
//
//	@Summary		DNS records to publish
//	@Tags			Domains
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.DNSRecordSet
//	@Router			/domains/{domainID}/dns-records [get]
func (h *Domain) DNSRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	set, err := h.svc.DNSRecords(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, set)
}

// Verify godoc
//
//	@Summary		Verify published DNS records
//	@Description	Checks MX, SPF, DKIM and DMARC. The domain becomes active when all pass.
//	@Tags			Domains
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} model.DNSVerification
//	@Router			/domains/{domainID}/verify [post]
func (h *Domain) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	v, err := h.svc.Verify(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}
