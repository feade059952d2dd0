package request

type CreateBounce struct {
	EmailAccountID *string `json:"email_account_id"`
	RecipientEmail string  `json:"recipient_email" validate:"required,email"`
	BounceType     string  `json:"bounce_type" validate:"required,bounce_type"`
	BounceCode     *string `json:"bounce_code" validate:"omitempty,max=32"`
	BounceMessage  *string `json:"bounce_message"`
}

// BounceCallback is posted by the mail server when a sent message bounces.
type BounceCallback struct {
	CreateBounce
	MessageID *string `json:"message_id"`
}
