package request

type CreateDomain struct {
	Name         string  `json:"name" validate:"required,fqdn"`
	MailServerIP *string `json:"mail_server_ip" validate:"omitempty,ip"`
	MXPriority   *int    `json:"mx_priority" validate:"omitempty,gte=0,lte=65535"`
	DKIMSelector *string `json:"dkim_selector" validate:"omitempty,min=1,max=63"`
}
