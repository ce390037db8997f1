package rbac

import (
	"context"
	"fmt"
)

// Resolver supplies the effective role and permission sets the engine
// evaluates. The store satisfies it directly; the permission cache wraps it.
type Resolver interface {
	PermissionsOf(ctx context.Context, userID string) ([]Permission, error)
	RolesOf(ctx context.Context, userID string) ([]Role, error)
}

// DecisionRecorder observes engine outcomes, typically for metrics.
type DecisionRecorder func(allowed bool)

// Engine answers access queries over the resolved snapshot of a user's
// roles and permissions. Queries are stateless reads: an unknown user id
// resolves to an empty permission set and every check answers false, so
// callers default to deny on missing identity.
type Engine struct {
	resolver Resolver
	record   DecisionRecorder
}

// NewEngine constructs an engine over the given resolver.
func NewEngine(resolver Resolver, record DecisionRecorder) *Engine {
	if record == nil {
		record = func(bool) {}
	}
	return &Engine{resolver: resolver, record: record}
}

// HasPermission reports whether the user holds a grant matching the
// resource/action pair. An empty scope matches any grant; a grant with scope
// "all" matches any requested scope.
func (e *Engine) HasPermission(ctx context.Context, userID, resource, action, scope string) (bool, error) {
	allowed, err := e.hasPermission(ctx, userID, resource, action, scope)
	if err != nil {
		return false, err
	}
	e.record(allowed)
	return allowed, nil
}

// HasAnyPermission reports whether at least one check passes. The result is
// independent of check order.
func (e *Engine) HasAnyPermission(ctx context.Context, userID string, checks []Check) (bool, error) {
	for _, c := range checks {
		ok, err := e.hasPermission(ctx, userID, c.Resource, c.Action, c.Scope)
		if err != nil {
			return false, err
		}
		if ok {
			e.record(true)
			return true, nil
		}
	}
	e.record(false)
	return false, nil
}

// HasAllPermissions reports whether every check passes. An empty check list
// is vacuously true.
func (e *Engine) HasAllPermissions(ctx context.Context, userID string, checks []Check) (bool, error) {
	for _, c := range checks {
		ok, err := e.hasPermission(ctx, userID, c.Resource, c.Action, c.Scope)
		if err != nil {
			return false, err
		}
		if !ok {
			e.record(false)
			return false, nil
		}
	}
	e.record(true)
	return true, nil
}

// HasRole reports whether the user holds a role with the exact name.
func (e *Engine) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	names, err := e.roleNames(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := names[roleName]
	e.record(ok)
	return ok, nil
}

// HasAnyRole reports whether the user holds at least one of the named roles.
func (e *Engine) HasAnyRole(ctx context.Context, userID string, roleNames []string) (bool, error) {
	names, err := e.roleNames(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, name := range roleNames {
		if _, ok := names[name]; ok {
			e.record(true)
			return true, nil
		}
	}
	e.record(false)
	return false, nil
}

// HasAllRoles reports whether the user holds every named role. An empty
// list is vacuously true.
func (e *Engine) HasAllRoles(ctx context.Context, userID string, roleNames []string) (bool, error) {
	names, err := e.roleNames(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, name := range roleNames {
		if _, ok := names[name]; !ok {
			e.record(false)
			return false, nil
		}
	}
	e.record(true)
	return true, nil
}

func (e *Engine) hasPermission(ctx context.Context, userID, resource, action, scope string) (bool, error) {
	perms, err := e.resolver.PermissionsOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("rbac: resolve permissions: %w", err)
	}
	for _, p := range perms {
		if p.Matches(resource, action, scope) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) roleNames(ctx context.Context, userID string) (map[string]struct{}, error) {
	roles, err := e.resolver.RolesOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve roles: %w", err)
	}
	names := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		names[r.Name] = struct{}{}
	}
	return names, nil
}
