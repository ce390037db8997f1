package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/warden-rbac/warden/internal/platform/httpx"
	"github.com/warden-rbac/warden/internal/rbac"
	"github.com/warden-rbac/warden/internal/shared"
)

// Handler manages role administration endpoints. It is a thin consumer of
// the rbac service: all authorization rules live behind it.
type Handler struct {
	logger   *slog.Logger
	service  *rbac.Service
	guard    rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *rbac.Service, guard rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.Check{Resource: "roles", Action: "read"}))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/assignments", h.listAssignments)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(rbac.Check{Resource: "roles", Action: "manage"}))
		r.Post("/", h.createRole)
		r.Patch("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Post("/{roleID}/permissions", h.grantPermissions)
		r.Delete("/{roleID}/permissions/{permissionID}", h.revokePermission)
		r.Post("/{roleID}/assignments", h.assignRole)
		r.Delete("/{roleID}/assignments/{userID}", h.removeRole)
		r.Post("/{roleID}/assignments/bulk", h.bulkAssign)
	})
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type grantRequest struct {
	PermissionIDs []string `json:"permission_ids" validate:"required,min=1,dive,uuid"`
}

type assignRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type bulkAssignRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1"`
}

type bulkAssignResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	all := h.service.ListRoles(r.Context())
	views := make([]rbac.RoleView, 0, len(all))
	for _, role := range all {
		views = append(views, rbac.NewRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rbac.NewRoleView(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rbac.NewRoleView(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), roleID, rbac.UpdateRoleParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rbac.NewRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	ids := make([]uuid.UUID, 0, len(req.PermissionIDs))
	for _, raw := range req.PermissionIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrInvalidArgument)
			return
		}
		ids = append(ids, id)
	}
	role, err := h.service.GrantPermissions(r.Context(), roleID, ids)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rbac.NewRoleView(role))
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	permissionID, err := uuid.Parse(chi.URLParam(r, "permissionID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return
	}
	if err := h.service.RevokePermission(r.Context(), roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), chi.URLParam(r, "userID"), roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bulkAssign(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req bulkAssignRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := h.service.BulkAssignRole(r.Context(), req.UserIDs, roleID)
	resp := bulkAssignResponse{Succeeded: result.Succeeded, Failed: make(map[string]string, len(result.Failed))}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	for userID, err := range result.Failed {
		kind := "internal"
		if rbac.IsNotFound(err) {
			kind = "not_found"
		}
		resp.Failed[userID] = kind
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.GetRole(r.Context(), roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	users := h.service.UsersOf(r.Context(), roleID)
	if users == nil {
		users = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_ids": users})
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return false
	}
	return true
}
