package teams

import "time"

// Team is a subdivision of a tenant. It owns groups and has member users.
type Team struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSummary is the trimmed user shape embedded in team projections.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RoleSummary is the trimmed role shape embedded in group projections.
type RoleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GroupDetail is a group with its members and attached roles.
type GroupDetail struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Members []UserSummary `json:"members"`
	Roles   []RoleSummary `json:"roles"`
}

// TeamDetail is the deep projection of a team: its users and its groups with
// members and roles.
type TeamDetail struct {
	Team
	Users  []UserSummary `json:"users"`
	Groups []GroupDetail `json:"groups"`
}
