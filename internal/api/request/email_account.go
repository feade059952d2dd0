package request

type CreateEmailAccount struct {
	LocalPart   string `json:"local_part" validate:"required,max=64"`
	DisplayName string `json:"display_name" validate:"max=255"`
	QuotaBytes  int64  `json:"quota_bytes" validate:"gte=0"`
	Password    string `json:"password" validate:"required,min=8"`
}

type UpdateEmailAccountPassword struct {
	Password string `json:"password" validate:"required,min=8"`
}

type SetEmailAccountQuota struct {
	QuotaBytes int64 `json:"quota_bytes" validate:"gte=0"`
}

type AddEmailAlias struct {
	Alias string `json:"alias" validate:"required,email"`
}

type ConfigureForwarding struct {
	Targets  []string `json:"targets" validate:"omitempty,dive,email"`
	KeepCopy bool     `json:"keep_copy"`
}
