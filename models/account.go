package models

import "time"

// Account links a user to an external identity provider. A user may hold
// one account per provider in addition to (or instead of) a password.
type Account struct {
	ID                int       `json:"id"`
	UserID            int       `json:"user_id"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	CreatedAt         time.Time `json:"created_at"`
}
