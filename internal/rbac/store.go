package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-rbac/warden/internal/shared"
)

// Store holds the mutable authorization state: the role table and the
// user-role assignment graph. All mutation goes through its methods, which is
// the sole serialization boundary.
//
// Locking: mu guards the role table and is held for the whole of every role
// mutation, so readers always observe whole-operation snapshots. Bindings are
// kept per user behind their own lock, so bulk assignment never serializes
// across users. Lock order is always mu, then bindMu, then a binding set.
type Store struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]*Role

	bindMu   sync.RWMutex
	bindings map[string]*bindingSet
}

type bindingSet struct {
	mu    sync.RWMutex
	roles map[uuid.UUID]time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		roles:    make(map[uuid.UUID]*Role),
		bindings: make(map[string]*bindingSet),
	}
}

// CreateRole inserts a custom role with an empty permission set.
func (s *Store) CreateRole(name, description string) (Role, error) {
	return s.createRole(uuid.Nil, name, description, false, nil)
}

// SeedRole inserts a role verbatim, including system roles and pre-resolved
// permission grants. Used by startup seeding.
func (s *Store) SeedRole(role Role) (Role, error) {
	return s.createRole(role.ID, role.Name, role.Description, role.IsSystem, role.Permissions)
}

func (s *Store) createRole(id uuid.UUID, name, description string, system bool, perms []Permission) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required: %w", shared.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if existing.Name == name {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicateName)
		}
	}

	if id == uuid.Nil {
		id = uuid.New()
	} else if _, ok := s.roles[id]; ok {
		return Role{}, fmt.Errorf("rbac: role id %s taken: %w", id, shared.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	role := &Role{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		IsSystem:    system,
		Permissions: mergePermissions(nil, perms),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.roles[role.ID] = role
	return copyRole(role), nil
}

// GetRole fetches a role by id.
func (s *Store) GetRole(id uuid.UUID) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
	}
	return copyRole(role), nil
}

// GetRoleByName fetches a role by its exact, case-sensitive name.
func (s *Store) GetRoleByName(name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.Name == name {
			return copyRole(role), nil
		}
	}
	return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrNotFound)
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles() []Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, copyRole(role))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// UpdateRoleParams carries a partial role update; nil fields are unchanged.
type UpdateRoleParams struct {
	Name        *string
	Description *string
}

// UpdateRole applies a partial update to a custom role.
func (s *Store) UpdateRole(id uuid.UUID, params UpdateRoleParams) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
	}
	if role.IsSystem {
		return Role{}, fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrImmutableRole)
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return Role{}, fmt.Errorf("rbac: role name required: %w", shared.ErrInvalidArgument)
		}
		for otherID, other := range s.roles {
			if otherID != id && other.Name == name {
				return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicateName)
			}
		}
		role.Name = name
	}
	if params.Description != nil {
		role.Description = strings.TrimSpace(*params.Description)
	}
	role.UpdatedAt = time.Now().UTC()
	return copyRole(role), nil
}

// DeleteRole removes a custom role and cascades the removal of every binding
// referencing it. The cascade is atomic: both write locks are held until the
// role and all its bindings are gone. The returned ids are exactly the users
// whose bindings the cascade removed, so callers can invalidate caches
// without a separate lookup that could miss a concurrent assignment.
func (s *Store) DeleteRole(id uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
	}
	if role.IsSystem {
		return nil, fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrImmutableRole)
	}
	delete(s.roles, id)

	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	var affected []string
	for userID, set := range s.bindings {
		set.mu.Lock()
		if _, held := set.roles[id]; held {
			delete(set.roles, id)
			affected = append(affected, userID)
		}
		empty := len(set.roles) == 0
		set.mu.Unlock()
		if empty {
			delete(s.bindings, userID)
		}
	}
	sort.Strings(affected)
	return affected, nil
}

// GrantPermissions unions the given permissions into the role's set. The
// caller resolves ids against the registry first, so the grant is
// all-or-nothing by construction.
func (s *Store) GrantPermissions(id uuid.UUID, perms []Permission) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
	}
	if role.IsSystem {
		return Role{}, fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrImmutableRole)
	}
	role.Permissions = mergePermissions(role.Permissions, perms)
	role.UpdatedAt = time.Now().UTC()
	return copyRole(role), nil
}

// RevokePermission removes a single grant. Revoking a permission the role
// does not hold is a no-op.
func (s *Store) RevokePermission(id, permissionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[id]
	if !ok {
		return fmt.Errorf("rbac: role %s: %w", id, shared.ErrNotFound)
	}
	if role.IsSystem {
		return fmt.Errorf("rbac: role %q: %w", role.Name, shared.ErrImmutableRole)
	}
	for i, p := range role.Permissions {
		if p.ID == permissionID {
			role.Permissions = append(role.Permissions[:i:i], role.Permissions[i+1:]...)
			role.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return nil
}

// AssignRole binds a role to a user. Re-assigning an already-held role is a
// no-op. The role must exist; user existence is the service's concern.
func (s *Store) AssignRole(userID string, roleID uuid.UUID) error {
	if userID == "" {
		return fmt.Errorf("rbac: user id required: %w", shared.ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return fmt.Errorf("rbac: role %s: %w", roleID, shared.ErrNotFound)
	}

	set := s.bindingSetFor(userID)
	set.mu.Lock()
	if _, held := set.roles[roleID]; !held {
		set.roles[roleID] = time.Now().UTC()
	}
	set.mu.Unlock()
	return nil
}

// RemoveRole unbinds a role from a user. Removing an unheld role is a no-op.
func (s *Store) RemoveRole(userID string, roleID uuid.UUID) {
	s.bindMu.RLock()
	set, ok := s.bindings[userID]
	s.bindMu.RUnlock()
	if !ok {
		return
	}
	set.mu.Lock()
	delete(set.roles, roleID)
	set.mu.Unlock()
}

// RolesOf returns the roles currently bound to the user, ordered by name.
// Unknown users hold no roles.
func (s *Store) RolesOf(ctx context.Context, userID string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.boundRoleIDs(userID)
	roles := make([]Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := s.roles[id]; ok {
			roles = append(roles, copyRole(role))
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

// PermissionsOf returns the deduplicated union of permissions over the
// user's roles. Unknown users yield an empty set, never an error.
func (s *Store) PermissionsOf(ctx context.Context, userID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var perms []Permission
	for _, id := range s.boundRoleIDs(userID) {
		role, ok := s.roles[id]
		if !ok {
			continue
		}
		for _, p := range role.Permissions {
			if _, dup := seen[p.Key()]; dup {
				continue
			}
			seen[p.Key()] = struct{}{}
			perms = append(perms, p)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key() < perms[j].Key() })
	return perms, nil
}

// UsersOf returns the ids of users bound to the role, sorted. A deleted or
// unknown role has no users.
func (s *Store) UsersOf(roleID uuid.UUID) []string {
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()

	var users []string
	for userID, set := range s.bindings {
		set.mu.RLock()
		_, held := set.roles[roleID]
		set.mu.RUnlock()
		if held {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// Snapshot captures the full store state for persistence.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()

	snap := Snapshot{}
	for _, role := range s.roles {
		snap.Roles = append(snap.Roles, copyRole(role))
	}
	sort.Slice(snap.Roles, func(i, j int) bool { return snap.Roles[i].Name < snap.Roles[j].Name })

	for userID, set := range s.bindings {
		set.mu.RLock()
		for roleID, at := range set.roles {
			snap.Bindings = append(snap.Bindings, UserRoleBinding{UserID: userID, RoleID: roleID, CreatedAt: at})
		}
		set.mu.RUnlock()
	}
	sort.Slice(snap.Bindings, func(i, j int) bool {
		a, b := snap.Bindings[i], snap.Bindings[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.RoleID.String() < b.RoleID.String()
	})
	return snap
}

// Restore replaces the store state wholesale. Intended for boot-time loads
// before the store is shared.
func (s *Store) Restore(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	roles := make(map[uuid.UUID]*Role, len(snap.Roles))
	names := make(map[string]struct{}, len(snap.Roles))
	for _, role := range snap.Roles {
		if role.ID == uuid.Nil || role.Name == "" {
			return fmt.Errorf("rbac: restore role %q: %w", role.Name, shared.ErrInvalidArgument)
		}
		if _, dup := names[role.Name]; dup {
			return fmt.Errorf("rbac: restore role %q: %w", role.Name, shared.ErrDuplicateName)
		}
		names[role.Name] = struct{}{}
		stored := copyRole(&role)
		roles[role.ID] = &stored
	}

	bindings := make(map[string]*bindingSet)
	for _, b := range snap.Bindings {
		if _, ok := roles[b.RoleID]; !ok {
			return fmt.Errorf("rbac: restore binding for role %s: %w", b.RoleID, shared.ErrNotFound)
		}
		set, ok := bindings[b.UserID]
		if !ok {
			set = &bindingSet{roles: make(map[uuid.UUID]time.Time)}
			bindings[b.UserID] = set
		}
		set.roles[b.RoleID] = b.CreatedAt
	}

	s.roles = roles
	s.bindings = bindings
	return nil
}

// bindingSetFor returns the user's binding set, creating it on first use.
// Callers must not hold bindMu.
func (s *Store) bindingSetFor(userID string) *bindingSet {
	s.bindMu.RLock()
	set, ok := s.bindings[userID]
	s.bindMu.RUnlock()
	if ok {
		return set
	}
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	if set, ok = s.bindings[userID]; ok {
		return set
	}
	set = &bindingSet{roles: make(map[uuid.UUID]time.Time)}
	s.bindings[userID] = set
	return set
}

func (s *Store) boundRoleIDs(userID string) []uuid.UUID {
	s.bindMu.RLock()
	set, ok := s.bindings[userID]
	s.bindMu.RUnlock()
	if !ok {
		return nil
	}
	set.mu.RLock()
	defer set.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(set.roles))
	for id := range set.roles {
		ids = append(ids, id)
	}
	return ids
}

func copyRole(role *Role) Role {
	out := *role
	out.Permissions = make([]Permission, len(role.Permissions))
	copy(out.Permissions, role.Permissions)
	return out
}

// mergePermissions unions two grant lists, deduplicating by triple and
// keeping the result sorted by key.
func mergePermissions(existing, extra []Permission) []Permission {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	merged := make([]Permission, 0, len(existing)+len(extra))
	for _, p := range existing {
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		seen[p.Key()] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range extra {
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		seen[p.Key()] = struct{}{}
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Key() < merged[j].Key() })
	return merged
}
