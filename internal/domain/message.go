package domain

import "time"

type Role string

const (
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
)

// MessageRecord is one normalized conversation turn. Records are
// recomputed on every extraction pass and never persisted.
type MessageRecord struct {
	Role      Role
	Text      string
	Timestamp time.Time
	Model     string
}
