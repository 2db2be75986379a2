package models

import (
	"encoding/json"
	"time"
)

// Verification scopes, prefixed onto the identifier column. A row keyed
// "invitation:bob@example.com" is an invitation for that address.
const (
	ScopeInvitation    = "invitation"
	ScopeEmailVerify   = "email-verify"
	ScopePasswordReset = "password-reset"
	ScopeOAuthState    = "oauth-state"
)

// Verification is a single-use, time-limited token record. Only the SHA-256
// fingerprint of the raw token is stored; consumption deletes the row.
type Verification struct {
	ID         string          `json:"id"`
	Identifier string          `json:"identifier"`
	TokenHash  string          `json:"-"`
	Value      json.RawMessage `json:"value,omitempty"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (v *Verification) Expired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// InvitationPayload is the JSON stored in the Value column of rows in the
// invitation scope.
type InvitationPayload struct {
	Email       string    `json:"email"`
	Role        UserRole  `json:"role"`
	InviterID   int       `json:"inviter_id"`
	InviterName string    `json:"inviter_name"`
	InvitedAt   time.Time `json:"invited_at"`
}

// Invitation is the admin-facing view of an invitation verification row.
type Invitation struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Role        UserRole  `json:"role"`
	InviterID   int       `json:"inviter_id"`
	InviterName string    `json:"inviter_name"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
