package models

import (
	"encoding/json"
	"time"
)

// Preferences is the per-user settings row seeded after account creation.
type Preferences struct {
	UserID             int             `json:"user_id"`
	Theme              string          `json:"theme"`
	Locale             string          `json:"locale"`
	EmailNotifications bool            `json:"email_notifications"`
	Digest             json.RawMessage `json:"digest,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DefaultPreferences returns the values seeded for a new user.
func DefaultPreferences(userID int, locale string) Preferences {
	if locale == "" {
		locale = "en"
	}
	return Preferences{
		UserID:             userID,
		Theme:              "system",
		Locale:             locale,
		EmailNotifications: true,
	}
}
