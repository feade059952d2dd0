package handler

import (
	"io"
	"net/http"

	"github.com/edvin/deliverability/internal/api/response"
)

// maxARFBytes bounds an ingested feedback report.
const maxARFBytes = 10 << 20

type Feedback struct {
	svc FeedbackService
}

func NewFeedback(svc FeedbackService) *Feedback {
	return &Feedback{svc: svc}
}

// ARF godoc
//
//	@Summary		Ingest an ARF feedback-loop report
//	@Description	The body is the raw report. Unparseable or unmatched reports return processed=false with 200.
//	@Tags			Complaints
//	@Security		ApiKeyAuth
//	@Accept			plain
//	@Success		200 {object} model.FeedbackResult
//	@Failure		413 {object} response.ErrorBody
//	@Router			/feedback/arf [post]
func (h *Feedback) ARF(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxARFBytes))
	if err != nil {
		response.WriteError(w, http.StatusRequestEntityTooLarge, "report too large")
		return
	}
	response.WriteJSON(w, http.StatusOK, h.svc.ParseAndProcess(r.Context(), string(body)))
}
