package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/point10xdev/ERP-Rebuild/internal/platform/httpx"
	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// RoleDirectory validates approver role assignments at login and role
// selection. Implemented by the scholars service.
type RoleDirectory interface {
	Roles(ctx context.Context, facultyID int64) ([]scholarship.Role, error)
	HasRole(ctx context.Context, facultyID int64, role scholarship.Role) (bool, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	roles          RoleDirectory
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roles RoleDirectory, sessions *shared.SessionManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		roles:          roles,
		sessionManager: sessions,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
	r.Post("/auth/role", h.handleSelectRole)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	UserID    int64              `json:"user_id"`
	Name      string             `json:"name"`
	ScholarID int64              `json:"scholar_id,omitempty"`
	FacultyID int64              `json:"faculty_id,omitempty"`
	Roles     []scholarship.Role `json:"roles,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	acc, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
			return
		}
		h.logger.Error("authenticate", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	resp := loginResponse{
		UserID:    acc.ID,
		Name:      acc.Name,
		ScholarID: acc.ScholarID,
		FacultyID: acc.FacultyID,
	}
	if acc.FacultyID != 0 {
		roles, err := h.roles.Roles(r.Context(), acc.FacultyID)
		if err != nil {
			h.logger.Error("load roles", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		resp.Roles = roles
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	actor := shared.Actor{
		UserID:    acc.ID,
		ScholarID: acc.ScholarID,
		FacultyID: acc.FacultyID,
	}
	if len(resp.Roles) == 1 {
		actor.ActingRole = string(resp.Roles[0])
	}
	sess.SetActor(actor)

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if sess.ID != "" {
		if err := h.service.RegisterSession(r.Context(), sess.ID, acc.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=FAC HOD AD DEAN"`
}

// handleSelectRole switches the session's acting role. The role must be in
// the faculty member's assigned set.
func (h *Handler) handleSelectRole(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var actor shared.Actor
	ok := false
	if sess != nil {
		actor, ok = sess.Actor()
	}
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	if !actor.IsFaculty() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "only faculty select roles")
		return
	}

	var req selectRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role")
		return
	}
	role, err := scholarship.ParseRole(req.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown role")
		return
	}
	assigned, err := h.roles.HasRole(r.Context(), actor.FacultyID, role)
	if err != nil {
		h.logger.Error("check role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !assigned {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not assigned")
		return
	}

	sess.SetActingRole(string(role))
	httpx.JSON(w, http.StatusOK, map[string]any{"acting_role": role})
}
