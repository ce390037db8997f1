package rbac

import "time"

// PermissionView is the wire shape of a catalog entry. The key always
// carries the resource:action:scope triple.
type PermissionView struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
}

// RoleView is the wire shape of a role. Name and is_system are always
// present in any serialization.
type RoleView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	IsSystem    bool             `json:"is_system"`
	Permissions []PermissionView `json:"permissions"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewPermissionView maps a permission to its wire shape.
func NewPermissionView(p Permission) PermissionView {
	return PermissionView{
		ID:       p.ID.String(),
		Key:      p.Key(),
		Resource: p.Resource,
		Action:   p.Action,
		Scope:    p.Scope,
	}
}

// NewRoleView maps a role to its wire shape.
func NewRoleView(role Role) RoleView {
	perms := make([]PermissionView, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, NewPermissionView(p))
	}
	return RoleView{
		ID:          role.ID.String(),
		Name:        role.Name,
		Description: role.Description,
		IsSystem:    role.IsSystem,
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}
