package models

import "time"

// Session is the server-side record behind a bearer token. The token itself
// is a signed JWT carrying the session ID; deleting the row revokes the
// token regardless of its embedded expiry.
type Session struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
