package request

type SendEmail struct {
	EmailAccountID *string           `json:"email_account_id"`
	Recipient      string            `json:"recipient" validate:"required,email"`
	Subject        string            `json:"subject" validate:"max=998"`
	Body           string            `json:"body"`
	Headers        map[string]string `json:"headers"`
	MaxRetries     int               `json:"max_retries" validate:"gte=0,lte=10"`
}

type ValidateHeaders struct {
	Headers map[string]string `json:"headers" validate:"required"`
}
