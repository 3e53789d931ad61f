package groups

import "time"

// Group is a collection of users within a team, the unit roles attach to.
type Group struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSummary is the trimmed user shape in group projections.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RoleSummary is the trimmed role shape in group projections.
type RoleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GroupWithMembers is a group expanded with its members and attached roles.
type GroupWithMembers struct {
	Group
	Members []UserSummary `json:"members"`
	Roles   []RoleSummary `json:"roles"`
}

// Membership is the result of adding a user to a group.
type Membership struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}
