package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newEditorFixture(t *testing.T) (*Store, *Engine) {
	t.Helper()
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)
	_, err = store.GrantPermissions(role.ID, []Permission{
		testPermission("documents", "read", ScopeAll),
		testPermission("documents", "write", "own"),
	})
	require.NoError(t, err)
	require.NoError(t, store.AssignRole("u1", role.ID))
	return store, NewEngine(store, nil)
}

func TestHasPermission(t *testing.T) {
	_, engine := newEditorFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		resource string
		action   string
		scope    string
		want     bool
	}{
		{"exact scope match", "documents", "write", "own", true},
		{"scope all subsumes team", "documents", "read", "team", true},
		{"scope all subsumes own", "documents", "read", "own", true},
		{"omitted scope matches any grant", "documents", "write", "", true},
		{"ungranted action", "documents", "delete", "own", false},
		{"narrow grant does not widen", "documents", "write", "team", false},
		{"unknown resource", "reports", "read", ScopeAll, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.HasPermission(ctx, "u1", tc.resource, tc.action, tc.scope)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestHasPermissionUnknownUser(t *testing.T) {
	_, engine := newEditorFixture(t)
	got, err := engine.HasPermission(context.Background(), "nobody", "documents", "read", ScopeAll)
	require.NoError(t, err)
	require.False(t, got)
}

func TestHasAnyPermission(t *testing.T) {
	_, engine := newEditorFixture(t)
	ctx := context.Background()

	got, err := engine.HasAnyPermission(ctx, "u1", []Check{
		{Resource: "documents", Action: "delete", Scope: "own"},
		{Resource: "documents", Action: "write", Scope: "own"},
	})
	require.NoError(t, err)
	require.True(t, got)

	got, err = engine.HasAnyPermission(ctx, "u1", []Check{
		{Resource: "documents", Action: "delete", Scope: "own"},
	})
	require.NoError(t, err)
	require.False(t, got)

	// Empty any-of list has no satisfied check.
	got, err = engine.HasAnyPermission(ctx, "u1", nil)
	require.NoError(t, err)
	require.False(t, got)
}

func TestHasAllPermissions(t *testing.T) {
	_, engine := newEditorFixture(t)
	ctx := context.Background()

	got, err := engine.HasAllPermissions(ctx, "u1", []Check{
		{Resource: "documents", Action: "read", Scope: "team"},
		{Resource: "documents", Action: "write", Scope: "own"},
	})
	require.NoError(t, err)
	require.True(t, got)

	got, err = engine.HasAllPermissions(ctx, "u1", []Check{
		{Resource: "documents", Action: "read", Scope: "team"},
		{Resource: "documents", Action: "delete", Scope: "own"},
	})
	require.NoError(t, err)
	require.False(t, got)

	// Vacuously true for an empty check list.
	got, err = engine.HasAllPermissions(ctx, "u1", nil)
	require.NoError(t, err)
	require.True(t, got)
}

func TestHasRoleVariants(t *testing.T) {
	store, engine := newEditorFixture(t)
	ctx := context.Background()

	viewer, err := store.CreateRole("Viewer", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignRole("u1", viewer.ID))

	got, err := engine.HasRole(ctx, "u1", "Editor")
	require.NoError(t, err)
	require.True(t, got)

	// Exact match: different casing is a different role name.
	got, err = engine.HasRole(ctx, "u1", "editor")
	require.NoError(t, err)
	require.False(t, got)

	got, err = engine.HasAnyRole(ctx, "u1", []string{"Admin", "Viewer"})
	require.NoError(t, err)
	require.True(t, got)

	got, err = engine.HasAllRoles(ctx, "u1", []string{"Editor", "Viewer"})
	require.NoError(t, err)
	require.True(t, got)

	got, err = engine.HasAllRoles(ctx, "u1", []string{"Editor", "Admin"})
	require.NoError(t, err)
	require.False(t, got)

	got, err = engine.HasAllRoles(ctx, "u1", nil)
	require.NoError(t, err)
	require.True(t, got)

	got, err = engine.HasRole(ctx, "nobody", "Editor")
	require.NoError(t, err)
	require.False(t, got)
}

func TestEngineRecordsDecisions(t *testing.T) {
	store := NewStore()
	var allows, denies int
	engine := NewEngine(store, func(allowed bool) {
		if allowed {
			allows++
		} else {
			denies++
		}
	})

	_, err := engine.HasPermission(context.Background(), "nobody", "documents", "read", "")
	require.NoError(t, err)
	_, err = engine.HasAllPermissions(context.Background(), "nobody", nil)
	require.NoError(t, err)

	require.Equal(t, 1, allows)
	require.Equal(t, 1, denies)
}
