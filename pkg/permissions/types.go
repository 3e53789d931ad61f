package permissions

import "time"

// Module identifies the area of the product a permission applies to.
type Module string

// Action is the operation a permission grants within a module.
type Action string

const (
	ModuleUsers      Module = "USERS"
	ModuleFinancials Module = "FINANCIALS"
	ModuleReporting  Module = "REPORTING"
	ModuleVault      Module = "VAULT"

	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// AllModules lists every module, in seed order.
func AllModules() []Module {
	return []Module{ModuleUsers, ModuleFinancials, ModuleReporting, ModuleVault}
}

// AllActions lists every action, in seed order.
func AllActions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// Valid reports whether the module is one of the known values.
func (m Module) Valid() bool {
	switch m {
	case ModuleUsers, ModuleFinancials, ModuleReporting, ModuleVault:
		return true
	}
	return false
}

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Permission is an atomic (module, action) capability grant.
type Permission struct {
	ID          string    `json:"id"`
	Module      Module    `json:"module"`
	Action      Action    `json:"action"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
