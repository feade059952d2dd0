package request

type SetRateLimit struct {
	EmailAccountID *string `json:"email_account_id"`
	LimitType      string  `json:"limit_type" validate:"required,limit_type"`
	LimitValue     int     `json:"limit_value" validate:"gte=0"`
}
