package rbac

import (
	"fmt"

	"github.com/google/uuid"
)

// Permission ids are derived from the triple so the catalog is stable across
// restarts and deployments.
var permissionNamespace = uuid.MustParse("8f3c1d8e-14f3-4f6a-9c67-2b9f6f1d0a42")

// PermissionID returns the deterministic id for a catalog triple.
func PermissionID(resource, action, scope string) uuid.UUID {
	return uuid.NewSHA1(permissionNamespace, []byte(resource+":"+action+":"+scope))
}

// CatalogEntry declares one permission triple for the default catalog.
type CatalogEntry struct {
	Resource string
	Action   string
	Scope    string
}

// DefaultCatalog lists the permissions the platform ships with. The catalog
// is reference data: instances do not edit it at runtime.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{"documents", "read", ScopeAll},
		{"documents", "read", "own"},
		{"documents", "read", "team"},
		{"documents", "write", ScopeAll},
		{"documents", "write", "own"},
		{"documents", "write", "team"},
		{"documents", "delete", ScopeAll},
		{"documents", "delete", "own"},
		{"reports", "read", ScopeAll},
		{"reports", "read", "team"},
		{"reports", "export", ScopeAll},
		{"users", "read", ScopeAll},
		{"users", "manage", ScopeAll},
		{"roles", "read", ScopeAll},
		{"roles", "manage", ScopeAll},
		{"permissions", "read", ScopeAll},
	}
}

// BuildRegistry materializes a registry from catalog entries.
func BuildRegistry(entries []CatalogEntry) (*Registry, error) {
	perms := make([]Permission, 0, len(entries))
	for _, e := range entries {
		perms = append(perms, Permission{
			ID:       PermissionID(e.Resource, e.Action, e.Scope),
			Resource: e.Resource,
			Action:   e.Action,
			Scope:    e.Scope,
		})
	}
	return NewRegistry(perms)
}

// SystemAdminRole is the name of the protected role seeded with the full
// catalog.
const SystemAdminRole = "Administrator"

// Seed installs the system administrator role and a small set of starter
// custom roles into an empty store. Seeding an already-populated store is
// skipped so snapshot restores win over defaults.
func Seed(store *Store, registry *Registry) error {
	if len(store.ListRoles()) > 0 {
		return nil
	}

	if _, err := store.SeedRole(Role{
		Name:        SystemAdminRole,
		Description: "Full access to every resource",
		IsSystem:    true,
		Permissions: registry.ListPermissions(),
	}); err != nil {
		return fmt.Errorf("rbac: seed %s: %w", SystemAdminRole, err)
	}

	starters := []struct {
		name, description string
		grants            []CatalogEntry
	}{
		{"Editor", "Read everything, write own documents", []CatalogEntry{
			{"documents", "read", ScopeAll},
			{"documents", "write", "own"},
		}},
		{"Viewer", "Read-only access to team documents and reports", []CatalogEntry{
			{"documents", "read", "team"},
			{"reports", "read", "team"},
		}},
	}
	for _, r := range starters {
		perms := make([]Permission, 0, len(r.grants))
		for _, g := range r.grants {
			p, err := registry.GetPermission(PermissionID(g.Resource, g.Action, g.Scope))
			if err != nil {
				return fmt.Errorf("rbac: seed %s: %w", r.name, err)
			}
			perms = append(perms, p)
		}
		if _, err := store.SeedRole(Role{Name: r.name, Description: r.description, Permissions: perms}); err != nil {
			return fmt.Errorf("rbac: seed %s: %w", r.name, err)
		}
	}
	return nil
}
