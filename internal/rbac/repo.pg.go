package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-rbac/warden/internal/platform/db"
	"github.com/warden-rbac/warden/internal/shared"
)

const uniqueViolation = "23505"

// Repository persists store snapshots in PostgreSQL. It is only touched at
// the edges of the process: a load at startup and saves from the background
// worker. The in-memory store stays authoritative between snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a snapshot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Load reads the last persisted snapshot. An empty database yields an empty
// snapshot so first boot falls through to seeding.
func (r *Repository) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, is_system, created_at, updated_at
		FROM rbac_roles ORDER BY name`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rbac: load roles: %w", err)
	}
	defer rows.Close()
	byID := make(map[string]*Role)
	var order []string
	for rows.Next() {
		role := new(Role)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return Snapshot{}, fmt.Errorf("rbac: scan role: %w", err)
		}
		byID[role.ID.String()] = role
		order = append(order, role.ID.String())
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("rbac: load roles: %w", err)
	}

	permRows, err := r.pool.Query(ctx, `
		SELECT role_id, permission_id, resource, action, scope
		FROM rbac_role_permissions ORDER BY role_id, resource, action, scope`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rbac: load grants: %w", err)
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID string
		var p Permission
		if err := permRows.Scan(&roleID, &p.ID, &p.Resource, &p.Action, &p.Scope); err != nil {
			return Snapshot{}, fmt.Errorf("rbac: scan grant: %w", err)
		}
		role, ok := byID[roleID]
		if !ok {
			return Snapshot{}, fmt.Errorf("rbac: grant for role %s: %w", roleID, shared.ErrNotFound)
		}
		role.Permissions = append(role.Permissions, p)
	}
	if err := permRows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("rbac: load grants: %w", err)
	}
	for _, id := range order {
		snap.Roles = append(snap.Roles, *byID[id])
	}

	bindRows, err := r.pool.Query(ctx, `
		SELECT user_id, role_id, created_at
		FROM rbac_user_roles ORDER BY user_id, role_id`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rbac: load bindings: %w", err)
	}
	defer bindRows.Close()
	for bindRows.Next() {
		var b UserRoleBinding
		if err := bindRows.Scan(&b.UserID, &b.RoleID, &b.CreatedAt); err != nil {
			return Snapshot{}, fmt.Errorf("rbac: scan binding: %w", err)
		}
		snap.Bindings = append(snap.Bindings, b)
	}
	if err := bindRows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("rbac: load bindings: %w", err)
	}

	return snap, nil
}

// Save replaces the persisted snapshot atomically.
func (r *Repository) Save(ctx context.Context, snap Snapshot) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"rbac_user_roles", "rbac_role_permissions", "rbac_roles"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("rbac: clear %s: %w", table, err)
			}
		}

		for _, role := range snap.Roles {
			_, err := tx.Exec(ctx, `
				INSERT INTO rbac_roles (id, name, description, is_system, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				role.ID, role.Name, role.Description, role.IsSystem, role.CreatedAt, role.UpdatedAt)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
					return fmt.Errorf("rbac: save role %q: %w", role.Name, shared.ErrDuplicateName)
				}
				return fmt.Errorf("rbac: save role %q: %w", role.Name, err)
			}
			for _, p := range role.Permissions {
				if _, err := tx.Exec(ctx, `
					INSERT INTO rbac_role_permissions (role_id, permission_id, resource, action, scope)
					VALUES ($1, $2, $3, $4, $5)`,
					role.ID, p.ID, p.Resource, p.Action, p.Scope); err != nil {
					return fmt.Errorf("rbac: save grant %q: %w", p.Key(), err)
				}
			}
		}

		for _, b := range snap.Bindings {
			if _, err := tx.Exec(ctx, `
				INSERT INTO rbac_user_roles (user_id, role_id, created_at)
				VALUES ($1, $2, $3)`,
				b.UserID, b.RoleID, b.CreatedAt); err != nil {
				return fmt.Errorf("rbac: save binding %s/%s: %w", b.UserID, b.RoleID, err)
			}
		}
		return nil
	})
}
