package domain

import "time"

type SessionKey string

// Session is a descriptor owned by the external gateway. The core only
// observes it via the registry query and mutates it via an explicit
// rotate command.
type Session struct {
	Key          SessionKey
	RotatingID   string
	TokenCount   int64
	LastModified time.Time
	ByteSize     int64
}

func (s Session) OverThreshold(threshold int64) bool {
	return threshold > 0 && s.TokenCount >= threshold
}
