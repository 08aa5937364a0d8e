package scholars

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/point10xdev/ERP-Rebuild/internal/platform/httpx"
	"github.com/point10xdev/ERP-Rebuild/internal/scholarship"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// Handler manages scholar and faculty directory endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/scholars", h.listScholars)
	r.Get("/scholars/{id}", h.showScholar)
	r.Get("/faculty/{id}", h.showFaculty)
	r.Get("/faculty/{id}/roles", h.listRoles)
	r.Get("/faculty/{id}/students", h.listStudents)
}

type scholarResponse struct {
	ID                int64  `json:"id"`
	Enrollment        string `json:"enrollment"`
	Registration      string `json:"registration"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Department        string `json:"department"`
	Course            string `json:"course"`
	University        string `json:"university"`
	SupervisorID      int64  `json:"supervisor_id"`
	AdmissionCategory string `json:"admission_category"`
	Fellowship        string `json:"fellowship,omitempty"`
	Basic             string `json:"basic"`
	HRA               string `json:"hra"`
	JoinedAt          string `json:"joined_at"`
}

func toScholarResponse(s Scholar) scholarResponse {
	return scholarResponse{
		ID:                s.ID,
		Enrollment:        s.Enrollment,
		Registration:      s.Registration,
		Name:              s.Name,
		Email:             s.Email,
		Department:        s.Department,
		Course:            s.Course,
		University:        s.University,
		SupervisorID:      s.SupervisorID,
		AdmissionCategory: s.AdmissionCategory,
		Fellowship:        s.Fellowship,
		Basic:             s.Basic.Round(2).StringFixed(2),
		HRA:               s.HRA.String(),
		JoinedAt:          s.JoinedAt.Format(time.RFC3339),
	}
}

type facultyResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	University string `json:"university"`
	Designation string `json:"designation,omitempty"`
}

// showScholar returns one scholar. A scholar may view their own profile;
// an approver may view scholars within the scope of their acting role.
func (h *Handler) showScholar(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid scholar id")
		return
	}

	if actor.IsScholar() && actor.ScholarID != id {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not your profile")
		return
	}
	if actor.IsFaculty() {
		role, err := scholarship.ParseRole(actor.ActingRole)
		if err != nil {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "no acting role selected")
			return
		}
		allowed, err := h.service.CanActOn(r.Context(), actor.FacultyID, role, id)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		if !allowed {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "scholar outside your scope")
			return
		}
	}

	scholar, err := h.service.GetScholar(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toScholarResponse(scholar))
}

// showFaculty returns one faculty member's profile. Self only.
func (h *Handler) showFaculty(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid faculty id")
		return
	}
	if actor.FacultyID != id {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not your profile")
		return
	}

	faculty, err := h.service.GetFaculty(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, facultyResponse{
		ID:          faculty.ID,
		Name:        faculty.Name,
		Email:       faculty.Email,
		Department:  faculty.Department,
		University:  faculty.University,
		Designation: faculty.Designation,
	})
}

// listRoles returns the approver roles assigned to the faculty member.
func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid faculty id")
		return
	}
	if actor.FacultyID != id {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not your roles")
		return
	}

	roles, err := h.service.Roles(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// listStudents returns the scholars the faculty member oversees in the
// requested role, defaulting to the session's acting role.
// listScholars returns the scholars visible to the acting faculty role.
func (h *Handler) listScholars(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	if !actor.IsFaculty() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "faculty only")
		return
	}

	roleParam := r.URL.Query().Get("role")
	if roleParam == "" {
		roleParam = actor.ActingRole
	}
	role, err := scholarship.ParseRole(roleParam)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown role")
		return
	}

	students, err := h.service.Students(r.Context(), actor.FacultyID, role)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]scholarResponse, 0, len(students))
	for _, s := range students {
		out = append(out, toScholarResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scholars": out, "role": role})
}

func (h *Handler) listStudents(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid faculty id")
		return
	}
	if actor.FacultyID != id {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not your students")
		return
	}

	roleParam := r.URL.Query().Get("role")
	if roleParam == "" {
		roleParam = actor.ActingRole
	}
	role, err := scholarship.ParseRole(roleParam)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown role")
		return
	}

	students, err := h.service.Students(r.Context(), id, role)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]scholarResponse, 0, len(students))
	for _, s := range students {
		out = append(out, toScholarResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"students": out, "role": role})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such record")
	case errors.Is(err, scholarship.ErrUnauthorizedAction):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not assigned")
	default:
		h.logger.Error("scholars request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func currentActor(r *http.Request) (shared.Actor, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return shared.Actor{}, false
	}
	return sess.Actor()
}
