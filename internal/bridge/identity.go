package bridge

import "github.com/google/uuid"

const sessionIDPrefix = "sidebar-term-"

// NewSessionID returns a fresh session token. The random part is a version 4
// UUID.
func NewSessionID() string {
	return sessionIDPrefix + uuid.NewString()
}
