package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/warden-rbac/warden/internal/shared"
)

// UserDirectory answers whether a user id refers to a known principal.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Invalidator drops cached effective-permission entries for the given users.
type Invalidator interface {
	Invalidate(ctx context.Context, userIDs ...string)
}

// Service orchestrates the administrative operations: role lifecycle,
// permission grants and user-role assignment. Every mutation invalidates the
// decision cache for the affected users.
type Service struct {
	store    *Store
	registry *Registry
	users    UserDirectory
	cache    Invalidator
	logger   *slog.Logger
}

// NewService constructs a Service. The cache may be nil when no decision
// cache is configured.
func NewService(store *Store, registry *Registry, users UserDirectory, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, registry: registry, users: users, cache: cache, logger: logger}
}

// ListPermissions returns the full catalog, grouped by resource.
func (s *Service) ListPermissions(ctx context.Context) []Permission {
	return s.registry.ListPermissions()
}

// GetPermission resolves a catalog entry by id.
func (s *Service) GetPermission(ctx context.Context, id uuid.UUID) (Permission, error) {
	return s.registry.GetPermission(id)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) []Role {
	return s.store.ListRoles()
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.store.GetRole(id)
}

// CreateRole inserts a custom role with an empty permission set.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	role, err := s.store.CreateRole(name, description)
	if err != nil {
		return Role{}, err
	}
	s.logger.Info("role created", slog.String("role", role.Name), slog.String("id", role.ID.String()))
	return role, nil
}

// UpdateRole applies a partial name/description update to a custom role.
// A rename changes HasRole answers, so bindings for the role are invalidated.
func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, params UpdateRoleParams) (Role, error) {
	role, err := s.store.UpdateRole(id, params)
	if err != nil {
		return Role{}, err
	}
	if params.Name != nil {
		s.invalidate(ctx, s.store.UsersOf(id)...)
	}
	s.logger.Info("role updated", slog.String("role", role.Name))
	return role, nil
}

// DeleteRole removes a custom role and cascades its bindings. The store
// reports which users the cascade touched, so the invalidation set cannot
// miss an assignment racing with the delete.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	affected, err := s.store.DeleteRole(id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, affected...)
	s.logger.Info("role deleted", slog.String("id", id.String()), slog.Int("bindings_removed", len(affected)))
	return nil
}

// GrantPermissions unions the identified catalog entries into the role's
// set. Any unknown id aborts the whole grant.
func (s *Service) GrantPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) (Role, error) {
	perms, err := s.registry.Resolve(permissionIDs)
	if err != nil {
		return Role{}, err
	}
	role, err := s.store.GrantPermissions(roleID, perms)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, s.store.UsersOf(roleID)...)
	s.logger.Info("permissions granted", slog.String("role", role.Name), slog.Int("count", len(perms)))
	return role, nil
}

// RevokePermission removes a single grant from a custom role. Revoking a
// permission the role does not hold is a no-op.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	if err := s.store.RevokePermission(roleID, permissionID); err != nil {
		return err
	}
	s.invalidate(ctx, s.store.UsersOf(roleID)...)
	return nil
}

// AssignRole binds a role to a user. Both must exist; re-assigning an
// already-held role is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID string, roleID uuid.UUID) error {
	known, err := s.users.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("rbac: lookup user %s: %w", userID, err)
	}
	if !known {
		return fmt.Errorf("rbac: user %s: %w", userID, shared.ErrNotFound)
	}
	if err := s.store.AssignRole(userID, roleID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// RemoveRole unbinds a role from a user. Removing an unheld role is a no-op.
func (s *Service) RemoveRole(ctx context.Context, userID string, roleID uuid.UUID) error {
	s.store.RemoveRole(userID, roleID)
	s.invalidate(ctx, userID)
	return nil
}

// BulkAssignRole assigns the role to each user independently: one user's
// failure never aborts the rest, and every distinct input id is reported
// exactly once.
func (s *Service) BulkAssignRole(ctx context.Context, userIDs []string, roleID uuid.UUID) BulkAssignResult {
	result := BulkAssignResult{Failed: make(map[string]error)}
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if err := s.AssignRole(ctx, userID, roleID); err != nil {
			result.Failed[userID] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, userID)
	}
	s.logger.Info("bulk assign",
		slog.String("role_id", roleID.String()),
		slog.Int("succeeded", len(result.Succeeded)),
		slog.Int("failed", len(result.Failed)))
	return result
}

// RolesOf returns the roles currently bound to the user.
func (s *Service) RolesOf(ctx context.Context, userID string) ([]Role, error) {
	return s.store.RolesOf(ctx, userID)
}

// UsersOf returns the ids of users bound to the role.
func (s *Service) UsersOf(ctx context.Context, roleID uuid.UUID) []string {
	return s.store.UsersOf(roleID)
}

// Snapshot captures the current store state for persistence.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	return s.store.Snapshot()
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil || len(userIDs) == 0 {
		return
	}
	s.cache.Invalidate(ctx, userIDs...)
}

// IsNotFound reports whether the error maps to the NotFound kind. Bulk
// assignment callers use it to classify per-item failures.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
