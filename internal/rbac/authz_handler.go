package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-rbac/warden/internal/platform/httpx"
	"github.com/warden-rbac/warden/internal/shared"
)

// AuthzHandler exposes the engine's decision endpoints to the transport
// layer. Responses are plain allow/deny booleans; unknown identities come
// back denied, never as errors.
type AuthzHandler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewAuthzHandler builds AuthzHandler instance.
func NewAuthzHandler(logger *slog.Logger, engine *Engine) *AuthzHandler {
	return &AuthzHandler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers decision routes.
func (h *AuthzHandler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/check-any", h.checkAny)
	r.Post("/check-all", h.checkAll)
	r.Post("/roles/check", h.checkRole)
	r.Post("/roles/check-any", h.checkAnyRole)
	r.Post("/roles/check-all", h.checkAllRoles)
}

type checkRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	Scope    string `json:"scope"`
}

type multiCheckRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Checks []Check `json:"checks" validate:"dive"`
}

type roleCheckRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type multiRoleCheckRequest struct {
	UserID string   `json:"user_id" validate:"required"`
	Roles  []string `json:"roles"`
}

type decisionResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *AuthzHandler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r)(h.engine.HasPermission(r.Context(), req.UserID, req.Resource, req.Action, req.Scope))
}

func (h *AuthzHandler) checkAny(w http.ResponseWriter, r *http.Request) {
	var req multiCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r)(h.engine.HasAnyPermission(r.Context(), req.UserID, req.Checks))
}

func (h *AuthzHandler) checkAll(w http.ResponseWriter, r *http.Request) {
	var req multiCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r)(h.engine.HasAllPermissions(r.Context(), req.UserID, req.Checks))
}

func (h *AuthzHandler) checkRole(w http.ResponseWriter, r *http.Request) {
	var req roleCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r)(h.engine.HasRole(r.Context(), req.UserID, req.Role))
}

func (h *AuthzHandler) checkAnyRole(w http.ResponseWriter, r *http.Request) {
	var req multiRoleCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r)(h.engine.HasAnyRole(r.Context(), req.UserID, req.Roles))
}

func (h *AuthzHandler) checkAllRoles(w http.ResponseWriter, r *http.Request) {
	var req multiRoleCheckRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r)(h.engine.HasAllRoles(r.Context(), req.UserID, req.Roles))
}

func (h *AuthzHandler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
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

func (h *AuthzHandler) respond(w http.ResponseWriter, r *http.Request) func(bool, error) {
	return func(allowed bool, err error) {
		if err != nil {
			h.logger.Error("authz check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, decisionResponse{Allowed: allowed})
	}
}
