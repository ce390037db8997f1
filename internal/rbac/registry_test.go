package rbac

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/warden-rbac/warden/internal/shared"
)

func TestBuildRegistryFromDefaultCatalog(t *testing.T) {
	registry, err := BuildRegistry(DefaultCatalog())
	require.NoError(t, err)

	perms := registry.ListPermissions()
	require.Len(t, perms, len(DefaultCatalog()))
	require.True(t, sort.SliceIsSorted(perms, func(i, j int) bool {
		a, b := perms[i], perms[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.Scope < b.Scope
	}))
}

func TestNewRegistryRejectsBadEntries(t *testing.T) {
	cases := []struct {
		name    string
		catalog []Permission
	}{
		{"empty resource", []Permission{{ID: uuid.New(), Action: "read", Scope: ScopeAll}}},
		{"missing id", []Permission{{Resource: "documents", Action: "read", Scope: ScopeAll}}},
		{"duplicate triple", []Permission{
			testPermission("documents", "read", ScopeAll),
			testPermission("documents", "read", ScopeAll),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.catalog)
			require.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}
}

func TestListPermissionsReturnsCopy(t *testing.T) {
	registry, err := BuildRegistry(DefaultCatalog())
	require.NoError(t, err)

	perms := registry.ListPermissions()
	perms[0].Resource = "mutated"

	again := registry.ListPermissions()
	require.NotEqual(t, "mutated", again[0].Resource)
}

func TestResolveAllOrNothing(t *testing.T) {
	registry, err := BuildRegistry(DefaultCatalog())
	require.NoError(t, err)

	known := PermissionID("documents", "read", ScopeAll)

	perms, err := registry.Resolve([]uuid.UUID{known})
	require.NoError(t, err)
	require.Len(t, perms, 1)

	_, err = registry.Resolve([]uuid.UUID{known, uuid.New()})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPermissionIDDeterministic(t *testing.T) {
	require.Equal(t,
		PermissionID("documents", "read", ScopeAll),
		PermissionID("documents", "read", ScopeAll))
	require.NotEqual(t,
		PermissionID("documents", "read", ScopeAll),
		PermissionID("documents", "read", "own"))
}
