package models

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// ValidRole reports whether the given role is one this system assigns.
func ValidRole(r UserRole) bool {
	return r == RoleAdmin || r == RoleMember
}

type User struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  *string   `json:"-"`
	Role          UserRole  `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	Image         *string   `json:"-"`
	ImageURL      *string   `json:"image_url,omitempty"`
	Bio           *string   `json:"bio,omitempty"`
	Locale        string    `json:"locale"`
	Banned        bool      `json:"banned"`
	BanReason     *string   `json:"ban_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserFilter narrows admin user listings. Page is 1-based.
type UserFilter struct {
	Search string
	Role   *UserRole
	Banned *bool
	Page   int
	Limit  int
}

type UserListResult struct {
	Users      []User `json:"users"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}
