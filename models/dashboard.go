package models

// UserCounts aggregates the user table counters shown on the dashboard.
type UserCounts struct {
	Total        int
	Banned       int
	Verified     int
	CreatedSince int
}

type DashboardStats struct {
	UsersTotal         int `json:"users_total"`
	BannedUsers        int `json:"banned_users"`
	VerifiedUsers      int `json:"verified_users"`
	ActiveSessions     int `json:"active_sessions"`
	PendingInvitations int `json:"pending_invitations"`
	FlagsTotal         int `json:"flags_total"`
	FlagsEnabled       int `json:"flags_enabled"`
	SignupsLastWeek    int `json:"signups_last_week"`
}
