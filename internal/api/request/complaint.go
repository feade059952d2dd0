package request

import "github.com/edvin/deliverability/internal/model"

type CreateComplaint struct {
	RecipientEmail string                  `json:"recipient_email" validate:"required,email"`
	Source         string                  `json:"source" validate:"omitempty,complaint_source"`
	MessageID      *string                 `json:"message_id"`
	Details        *model.ComplaintDetails `json:"details"`
}

type CreateAbuseReport struct {
	RecipientEmail string            `json:"recipient_email" validate:"required,email"`
	Details        map[string]string `json:"details"`
}
