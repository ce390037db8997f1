package roles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/warden-rbac/warden/internal/rbac"
	"github.com/warden-rbac/warden/internal/shared"
	"github.com/warden-rbac/warden/internal/users"
)

type fixture struct {
	router  chi.Router
	service *rbac.Service
	store   *rbac.Store
}

// newFixture seeds the default catalog, registers the given users in the
// directory and binds the administrator role to "root".
func newFixture(t *testing.T, userIDs ...string) *fixture {
	t.Helper()

	registry, err := rbac.BuildRegistry(rbac.DefaultCatalog())
	require.NoError(t, err)
	store := rbac.NewStore()
	require.NoError(t, rbac.Seed(store, registry))

	directory := users.NewDirectory()
	for _, id := range append([]string{"root"}, userIDs...) {
		_, err := directory.Register(users.User{ID: id, Email: id + "@example.com", Name: id})
		require.NoError(t, err)
	}

	service := rbac.NewService(store, registry, directory, nil, nil)
	engine := rbac.NewEngine(store, nil)

	admin, err := store.GetRoleByName(rbac.SystemAdminRole)
	require.NoError(t, err)
	require.NoError(t, store.AssignRole("root", admin.ID))

	handler := NewHandler(nil, service, rbac.Middleware{Engine: engine})
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Warden-User"); id != "" {
				r = r.WithContext(shared.ContextWithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/roles", handler.MountRoutes)

	return &fixture{router: router, service: service, store: store}
}

func (f *fixture) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set("X-Warden-User", caller)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRole(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/roles", "root", map[string]string{
		"name":        "Publisher",
		"description": "publishes documents",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var view rbac.RoleView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.Equal(t, "Publisher", view.Name)
	require.False(t, view.IsSystem)

	// Same name again conflicts.
	rec = f.do(t, http.MethodPost, "/roles", "root", map[string]string{"name": "Publisher"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRoleValidation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/roles", "root", map[string]string{"description": "no name"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoleNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/roles/"+uuid.NewString(), "root", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/roles/not-a-uuid", "root", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRoleRenameConflict(t *testing.T) {
	f := newFixture(t)
	role, err := f.service.CreateRole(context.Background(), "Publisher", "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPatch, "/roles/"+role.ID.String(), "root", map[string]string{"name": "Editor"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSystemRoleReturnsForbidden(t *testing.T) {
	f := newFixture(t)
	admin, err := f.store.GetRoleByName(rbac.SystemAdminRole)
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/roles/"+admin.ID.String(), "root", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPatch, "/roles/"+admin.ID.String(), "root", map[string]string{"name": "Root"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGrantPermissions(t *testing.T) {
	f := newFixture(t)
	role, err := f.service.CreateRole(context.Background(), "Publisher", "")
	require.NoError(t, err)
	path := fmt.Sprintf("/roles/%s/permissions", role.ID)

	rec := f.do(t, http.MethodPost, path, "root", map[string]any{
		"permission_ids": []string{rbac.PermissionID("documents", "read", rbac.ScopeAll).String()},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var view rbac.RoleView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	require.Len(t, view.Permissions, 1)

	// Unknown catalog id aborts the grant.
	rec = f.do(t, http.MethodPost, path, "root", map[string]any{
		"permission_ids": []string{uuid.NewString()},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignAndRemove(t *testing.T) {
	f := newFixture(t, "alice")
	role, err := f.service.CreateRole(context.Background(), "Publisher", "")
	require.NoError(t, err)
	base := fmt.Sprintf("/roles/%s/assignments", role.ID)

	rec := f.do(t, http.MethodPost, base, "root", map[string]string{"user_id": "alice"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, base, "root", map[string]string{"user_id": "ghost"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, base, "root", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		UserIDs []string `json:"user_ids"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listing))
	require.Equal(t, []string{"alice"}, listing.UserIDs)

	rec = f.do(t, http.MethodDelete, base+"/alice", "root", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	// Removing again stays a no-op.
	rec = f.do(t, http.MethodDelete, base+"/alice", "root", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBulkAssignReportsPerUser(t *testing.T) {
	f := newFixture(t, "alice", "carol")
	role, err := f.service.CreateRole(context.Background(), "Publisher", "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/roles/%s/assignments/bulk", role.ID), "root", map[string]any{
		"user_ids": []string{"alice", "bob", "carol"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Succeeded []string          `json:"succeeded"`
		Failed    map[string]string `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.ElementsMatch(t, []string{"alice", "carol"}, resp.Succeeded)
	require.Equal(t, map[string]string{"bob": "not_found"}, resp.Failed)
}

func TestGuardDeniesWithoutManagePermission(t *testing.T) {
	f := newFixture(t, "alice")

	// No identity at all.
	rec := f.do(t, http.MethodPost, "/roles", "", map[string]string{"name": "Publisher"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// Known user without the manage grant.
	rec = f.do(t, http.MethodPost, "/roles", "alice", map[string]string{"name": "Publisher"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/roles", "alice", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
