package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/warden-rbac/warden/internal/shared"
)

func testPermission(resource, action, scope string) Permission {
	return Permission{
		ID:       PermissionID(resource, action, scope),
		Resource: resource,
		Action:   action,
		Scope:    scope,
	}
}

func TestCreateRoleDuplicateName(t *testing.T) {
	store := NewStore()
	_, err := store.CreateRole("Editor", "")
	require.NoError(t, err)

	_, err = store.CreateRole("Editor", "different description")
	require.ErrorIs(t, err, shared.ErrDuplicateName)

	// Case-sensitive: a different casing is a different role.
	_, err = store.CreateRole("editor", "")
	require.NoError(t, err)
}

func TestCreateRoleEmptyName(t *testing.T) {
	store := NewStore()
	_, err := store.CreateRole("   ", "desc")
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestUpdateRolePartial(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Viewer", "read only")
	require.NoError(t, err)

	desc := "read-only access"
	updated, err := store.UpdateRole(role.ID, UpdateRoleParams{Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "Viewer", updated.Name)
	require.Equal(t, "read-only access", updated.Description)

	name := "Auditor"
	updated, err = store.UpdateRole(role.ID, UpdateRoleParams{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Auditor", updated.Name)
	require.Equal(t, "read-only access", updated.Description)
}

func TestUpdateRoleRenameCollision(t *testing.T) {
	store := NewStore()
	_, err := store.CreateRole("Editor", "")
	require.NoError(t, err)
	viewer, err := store.CreateRole("Viewer", "")
	require.NoError(t, err)

	name := "Editor"
	_, err = store.UpdateRole(viewer.ID, UpdateRoleParams{Name: &name})
	require.ErrorIs(t, err, shared.ErrDuplicateName)

	// The stored name must be unchanged after the failed rename.
	got, err := store.GetRole(viewer.ID)
	require.NoError(t, err)
	require.Equal(t, "Viewer", got.Name)
}

func TestUpdateRoleNotFound(t *testing.T) {
	store := NewStore()
	name := "X"
	_, err := store.UpdateRole(uuid.New(), UpdateRoleParams{Name: &name})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSystemRoleImmutable(t *testing.T) {
	store := NewStore()
	role, err := store.SeedRole(Role{Name: "Administrator", IsSystem: true})
	require.NoError(t, err)

	name := "Root"
	_, err = store.UpdateRole(role.ID, UpdateRoleParams{Name: &name})
	require.ErrorIs(t, err, shared.ErrImmutableRole)

	_, err = store.GrantPermissions(role.ID, []Permission{testPermission("documents", "read", ScopeAll)})
	require.ErrorIs(t, err, shared.ErrImmutableRole)

	err = store.RevokePermission(role.ID, PermissionID("documents", "read", ScopeAll))
	require.ErrorIs(t, err, shared.ErrImmutableRole)

	_, err = store.DeleteRole(role.ID)
	require.ErrorIs(t, err, shared.ErrImmutableRole)

	// The role is still there and still readable.
	got, err := store.GetRole(role.ID)
	require.NoError(t, err)
	require.Equal(t, "Administrator", got.Name)
}

func TestGrantPermissionsIsAdditive(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)

	read := testPermission("documents", "read", ScopeAll)
	write := testPermission("documents", "write", "own")

	_, err = store.GrantPermissions(role.ID, []Permission{read})
	require.NoError(t, err)
	updated, err := store.GrantPermissions(role.ID, []Permission{write, read})
	require.NoError(t, err)

	require.Len(t, updated.Permissions, 2)
}

func TestRevokePermissionIdempotent(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)

	read := testPermission("documents", "read", ScopeAll)
	_, err = store.GrantPermissions(role.ID, []Permission{read})
	require.NoError(t, err)

	require.NoError(t, store.RevokePermission(role.ID, read.ID))
	// Revoking again, and revoking a never-granted permission, are no-ops.
	require.NoError(t, store.RevokePermission(role.ID, read.ID))
	require.NoError(t, store.RevokePermission(role.ID, uuid.New()))

	got, err := store.GetRole(role.ID)
	require.NoError(t, err)
	require.Empty(t, got.Permissions)
}

func TestAssignRoleIdempotent(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)

	require.NoError(t, store.AssignRole("u1", role.ID))
	require.NoError(t, store.AssignRole("u1", role.ID))

	roles, err := store.RolesOf(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, []string{"u1"}, store.UsersOf(role.ID))
}

func TestAssignRoleUnknownRole(t *testing.T) {
	store := NewStore()
	err := store.AssignRole("u1", uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveRoleIdempotent(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignRole("u1", role.ID))

	store.RemoveRole("u1", role.ID)
	store.RemoveRole("u1", role.ID)
	store.RemoveRole("ghost", role.ID)

	roles, err := store.RolesOf(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestDeleteRoleCascadesBindings(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)
	other, err := store.CreateRole("Viewer", "")
	require.NoError(t, err)

	require.NoError(t, store.AssignRole("u1", role.ID))
	require.NoError(t, store.AssignRole("u2", role.ID))
	require.NoError(t, store.AssignRole("u2", other.ID))

	affected, err := store.DeleteRole(role.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, affected)

	require.Empty(t, store.UsersOf(role.ID))
	for _, b := range store.Snapshot().Bindings {
		require.NotEqual(t, role.ID, b.RoleID)
	}

	// Unrelated bindings survive the cascade.
	roles, err := store.RolesOf(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "Viewer", roles[0].Name)
}

func TestDeleteRoleNotFound(t *testing.T) {
	store := NewStore()
	_, err := store.DeleteRole(uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPermissionsOfUnknownUserIsEmpty(t *testing.T) {
	store := NewStore()
	perms, err := store.PermissionsOf(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestPermissionsOfDeduplicatesAcrossRoles(t *testing.T) {
	store := NewStore()
	read := testPermission("documents", "read", ScopeAll)

	a, err := store.CreateRole("A", "")
	require.NoError(t, err)
	b, err := store.CreateRole("B", "")
	require.NoError(t, err)
	_, err = store.GrantPermissions(a.ID, []Permission{read})
	require.NoError(t, err)
	_, err = store.GrantPermissions(b.ID, []Permission{read})
	require.NoError(t, err)

	require.NoError(t, store.AssignRole("u1", a.ID))
	require.NoError(t, store.AssignRole("u1", b.ID))

	perms, err := store.PermissionsOf(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, perms, 1)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "writes things")
	require.NoError(t, err)
	_, err = store.GrantPermissions(role.ID, []Permission{testPermission("documents", "write", "own")})
	require.NoError(t, err)
	require.NoError(t, store.AssignRole("u1", role.ID))

	restored := NewStore()
	require.NoError(t, restored.Restore(store.Snapshot()))

	got, err := restored.GetRole(role.ID)
	require.NoError(t, err)
	require.Equal(t, "Editor", got.Name)
	require.Len(t, got.Permissions, 1)
	require.Equal(t, []string{"u1"}, restored.UsersOf(role.ID))
}

func TestRestoreRejectsOrphanBinding(t *testing.T) {
	store := NewStore()
	err := store.Restore(Snapshot{
		Bindings: []UserRoleBinding{{UserID: "u1", RoleID: uuid.New()}},
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentGrantAndRead(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)
	require.NoError(t, store.AssignRole("u1", role.ID))

	perms := []Permission{
		testPermission("documents", "read", ScopeAll),
		testPermission("documents", "write", "own"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = store.GrantPermissions(role.ID, perms)
				_ = store.RevokePermission(role.ID, perms[0].ID)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := store.PermissionsOf(context.Background(), "u1")
				require.NoError(t, err)
				// A reader may see the set before or after a whole
				// operation, never a torn one.
				require.LessOrEqual(t, len(got), 2)
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentAssignDistinctUsers(t *testing.T) {
	store := NewStore()
	role, err := store.CreateRole("Editor", "")
	require.NoError(t, err)

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	var wg sync.WaitGroup
	for _, userID := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				require.NoError(t, store.AssignRole(id, role.ID))
			}
		}(userID)
	}
	wg.Wait()

	require.Equal(t, users, store.UsersOf(role.ID))
}
