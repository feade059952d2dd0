package request

type AddSuppression struct {
	EmailAddress    string  `json:"email_address" validate:"required,email"`
	SuppressionType string  `json:"suppression_type" validate:"required,suppression_type"`
	Reason          *string `json:"reason" validate:"omitempty,max=1000"`
}
