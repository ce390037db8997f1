package rbac

import (
	"time"

	"github.com/google/uuid"
)

// ScopeAll is the reserved top scope. A permission granted with scope "all"
// satisfies a check for any scope on the same resource/action pair.
const ScopeAll = "all"

// Permission is the atomic grantable capability, identified by its
// resource:action:scope triple.
type Permission struct {
	ID       uuid.UUID
	Resource string
	Action   string
	Scope    string
}

// Key returns the canonical resource:action:scope identifier.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action + ":" + p.Scope
}

// Matches reports whether the permission satisfies a check for the given
// resource, action and scope. An empty scope matches any grant; a grant with
// ScopeAll matches any requested scope.
func (p Permission) Matches(resource, action, scope string) bool {
	if p.Resource != resource || p.Action != action {
		return false
	}
	return scope == "" || p.Scope == scope || p.Scope == ScopeAll
}

// Role bundles permissions under a unique, case-sensitive name. System roles
// are seeded by the platform and reject every mutation.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	IsSystem    bool
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRoleBinding links a user to a role. The pair is unique; re-assigning
// an already-held role is a no-op.
type UserRoleBinding struct {
	UserID    string
	RoleID    uuid.UUID
	CreatedAt time.Time
}

// Check is a single permission query. Scope may be empty to match any scope.
type Check struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Scope    string `json:"scope,omitempty"`
}

// BulkAssignResult reports the outcome of a bulk assignment. Every input
// user id appears exactly once, either in Succeeded or as a key in Failed.
type BulkAssignResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Snapshot is a point-in-time copy of the role table and assignment graph.
type Snapshot struct {
	Roles    []Role
	Bindings []UserRoleBinding
}
