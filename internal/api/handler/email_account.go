package handler

import (
	"net/http"

	"github.com/edvin/deliverability/internal/api/request"
	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
)

type EmailAccount struct {
	svc EmailAccountService
}

func NewEmailAccount(svc EmailAccountService) *EmailAccount {
	return &EmailAccount{svc: svc}
}

// ListByDomain godoc
//
//	@Summary		List mailboxes of a domain
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Success		200 {object} response.ListResponse{items=[]model.EmailAccount}
//	@Router			/domains/{domainID}/mailboxes [get]
func (h *EmailAccount) ListByDomain(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	items, err := h.svc.ListByDomain(r.Context(), domainID)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteList(w, items)
}

// Create godoc
//
//	@Summary		Create a mailbox
//	@Description	The domain must have passed DNS verification and the mail server must be healthy.
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			domainID path string true "Domain ID"
//	@Param			body body request.CreateEmailAccount true "Mailbox"
//	@Success		201 {object} model.EmailAccount
//	@Failure		412 {object} response.ErrorBody "Domain not verified"
//	@Failure		503 {object} response.ErrorBody "Mail server unavailable"
//	@Router			/domains/{domainID}/mailboxes [post]
func (h *EmailAccount) Create(w http.ResponseWriter, r *http.Request) {
	domainID, ok := urlID(w, r, "domainID")
	if !ok {
		return
	}
	var req request.CreateEmailAccount
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.svc.Create(r.Context(), core.CreateMailboxInput{
		EmailDomainID: domainID,
		LocalPart:     req.LocalPart,
		DisplayName:   req.DisplayName,
		QuotaBytes:    req.QuotaBytes,
		Password:      req.Password,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, acct)
}

// Get godoc
//
//	@Summary		Get a mailbox
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			accountID path string true "Mailbox ID"
//	@Success		200 {object} model.EmailAccount
//	@Failure		404 {object} response.ErrorBody
//	@Router			/mailboxes/{accountID} [get]
func (h *EmailAccount) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "accountID")
	if !ok {
		return
	}
	acct, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, acct)
}

// Delete godoc
//
//	@Summary		Delete a mailbox
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			accountID path string true "Mailbox ID"
//	@Success		204
//	@Router			/mailboxes/{accountID} [delete]
func (h *EmailAccount) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "accountID")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePassword godoc
//
//	@Summary		Change a mailbox password
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			accountID path string true "Mailbox ID"
//	@Param			body body request.UpdateEmailAccountPassword true "Password"
//	@Success		204
//	@Router			/mailboxes/{accountID}/password [put]
func (h *EmailAccount) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "accountID")
	if !ok {
		return
	}
	var req request.UpdateEmailAccountPassword
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.UpdatePassword(r.Context(), id, req.Password); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetQuota godoc
//
//	@Summary		Set a mailbox quota
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			accountID path string true "Mailbox ID"
//	@Param			body body request.SetEmailAccountQuota true "Quota"
//	@Success		200 {object} model.EmailAccount
//	@Router			/mailboxes/{accountID}/quota [put]
func (h *EmailAccount) SetQuota(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "accountID")
	if !ok {
		return
	}
	var req request.SetEmailAccountQuota
	if !decode(w, r, &req) {
		return
	}
	acct, err := h.svc.SetQuota(r.Context(), id, req.QuotaBytes)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, acct)
}

// AddAlias godoc
//
//	@Summary		Add an alias address
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			accountID path string true "Mailbox ID"
//	@Param			body body request.AddEmailAlias true "Alias"
//	@Success		204
//	@Router			/mailboxes/{accountID}/aliases [post]
func (h *EmailAccount) AddAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "accountID")
	if !ok {
		return
	}
	var req request.AddEmailAlias
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.AddAlias(r.Context(), id, req.Alias); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfigureForwarding godoc
//
//	@Summary		Replace a mailbox's forwarding rules
//	@Description	An empty target list removes forwarding.
//	@Tags			Mailboxes
//	@Security		ApiKeyAuth
//	@Param			accountID path string true "Mailbox ID"
//	@Param			body body request.ConfigureForwarding true "Forwarding"
//	@Success		204
//	@Router			/mailboxes/{accountID}/forwarding [put]
func (h *EmailAccount) ConfigureForwarding(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "accountID")
	if !ok {
		return
	}
	var req request.ConfigureForwarding
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ConfigureForwarding(r.Context(), id, req.Targets, req.KeepCopy); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
