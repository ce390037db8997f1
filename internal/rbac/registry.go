package rbac

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/warden-rbac/warden/internal/shared"
)

// Registry is the immutable permission catalog. It is built once at startup
// and is safe for concurrent reads without locking.
type Registry struct {
	byID    map[uuid.UUID]Permission
	ordered []Permission
}

// NewRegistry builds a registry from the given catalog. Triples must be
// unique by resource:action:scope and carry non-empty fields.
func NewRegistry(catalog []Permission) (*Registry, error) {
	byID := make(map[uuid.UUID]Permission, len(catalog))
	byKey := make(map[string]struct{}, len(catalog))
	ordered := make([]Permission, 0, len(catalog))
	for _, p := range catalog {
		if p.Resource == "" || p.Action == "" || p.Scope == "" {
			return nil, fmt.Errorf("rbac: permission %q: %w", p.Key(), shared.ErrInvalidArgument)
		}
		if p.ID == uuid.Nil {
			return nil, fmt.Errorf("rbac: permission %q missing id: %w", p.Key(), shared.ErrInvalidArgument)
		}
		if _, ok := byID[p.ID]; ok {
			return nil, fmt.Errorf("rbac: duplicate permission id %s: %w", p.ID, shared.ErrInvalidArgument)
		}
		if _, ok := byKey[p.Key()]; ok {
			return nil, fmt.Errorf("rbac: duplicate permission %q: %w", p.Key(), shared.ErrInvalidArgument)
		}
		byID[p.ID] = p
		byKey[p.Key()] = struct{}{}
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.Scope < b.Scope
	})
	return &Registry{byID: byID, ordered: ordered}, nil
}

// ListPermissions returns the catalog grouped by resource, then action and
// scope. The returned slice is a copy.
func (r *Registry) ListPermissions() []Permission {
	out := make([]Permission, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// GetPermission resolves a permission by id.
func (r *Registry) GetPermission(id uuid.UUID) (Permission, error) {
	p, ok := r.byID[id]
	if !ok {
		return Permission{}, fmt.Errorf("rbac: permission %s: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

// Resolve maps a set of ids to permissions. Any unknown id fails the whole
// call so that grants stay all-or-nothing.
func (r *Registry) Resolve(ids []uuid.UUID) ([]Permission, error) {
	perms := make([]Permission, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetPermission(id)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}
