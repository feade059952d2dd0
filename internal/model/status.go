package model

// Domain status constants.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusFailed    = "failed"
)

// Send log status constants.
const (
	SendStatusSent      = "sent"
	SendStatusDelivered = "delivered"
	SendStatusBounced   = "bounced"
	SendStatusFailed    = "failed"
	SendStatusDeferred  = "deferred"
)

// IsTerminalSendStatus reports whether a send log entry in this status will
// never change again.
func IsTerminalSendStatus(status string) bool {
	switch status {
	case SendStatusDelivered, SendStatusBounced, SendStatusFailed:
		return true
	}
	return false
}
