package stalwart

type CreateAccountParams struct {
	Address     string
	DisplayName string
	QuotaBytes  int64
	// PasswordHash is a crypt-style hash; the server stores it as-is.
	PasswordHash string
}

type Account struct {
	PrincipalID uint32
	Address     string
	DisplayName string
	QuotaBytes  int64
	Emails      []string
}

type PatchOp struct {
	Action string `json:"action"` // "set", "addItem", "removeItem"
	Field  string `json:"field"`
	Value  any    `json:"value"`
}

// DNSRecord is one entry from the server's suggested DNS zone.
type DNSRecord struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ForwardRule is one redirect in a forwarding Sieve script.
type ForwardRule struct {
	Destination string
	KeepCopy    bool
}
