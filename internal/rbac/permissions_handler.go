package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warden-rbac/warden/internal/platform/httpx"
	"github.com/warden-rbac/warden/internal/shared"
)

// PermissionsHandler serves the read-only permission catalog.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	guard   Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, guard Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(Check{Resource: "permissions", Action: "read"}))
		r.Get("/", h.listPermissions)
		r.Get("/{permissionID}", h.getPermission)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms := h.service.ListPermissions(r.Context())
	views := make([]PermissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, NewPermissionView(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": views})
}

func (h *PermissionsHandler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "permissionID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return
	}
	perm, err := h.service.GetPermission(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewPermissionView(perm))
}
