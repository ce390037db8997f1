package users

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warden-rbac/warden/internal/platform/httpx"
	"github.com/warden-rbac/warden/internal/rbac"
	"github.com/warden-rbac/warden/internal/shared"
)

// Handler manages user directory endpoints.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
	rbac      *rbac.Service
	guard     rbac.Middleware
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, directory *Directory, rbacService *rbac.Service, guard rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		directory: directory,
		rbac:      rbacService,
		guard:     guard,
		validate:  validator.New(),
	}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(rbac.Check{Resource: "users", Action: "read"}))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
		r.Get("/{userID}/roles", h.userRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(rbac.Check{Resource: "users", Action: "manage"}))
		r.Post("/", h.registerUser)
		r.Delete("/{userID}", h.deactivateUser)
	})
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type registerRequest struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	all := h.directory.List()
	views := make([]userView, 0, len(all))
	for _, u := range all {
		views = append(views, newUserView(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": views})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.directory.Get(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newUserView(user))
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if _, err := h.directory.Get(userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	roles, err := h.rbac.RolesOf(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]rbac.RoleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, rbac.NewRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrInvalidArgument)
		return
	}
	user, err := h.directory.Register(User{ID: req.ID, Email: req.Email, Name: req.Name})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("user registered", slog.String("user", user.ID))
	httpx.JSON(w, http.StatusCreated, newUserView(user))
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Deactivate(chi.URLParam(r, "userID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newUserView(u User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, IsActive: u.IsActive, CreatedAt: u.CreatedAt}
}
