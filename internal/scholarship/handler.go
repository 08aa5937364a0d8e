package scholarship

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/point10xdev/ERP-Rebuild/internal/platform/httpx"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// Exporter renders a disbursement register in a download format.
type Exporter interface {
	ContentType() string
	FileExtension() string
	Render(w http.ResponseWriter, records []RecordWithScholar) error
}

// Handler manages scholarship endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	exporters map[string]Exporter
}

// NewHandler constructs a Handler instance. exporters maps format query
// values (xlsx, csv) to their renderers.
func NewHandler(logger *slog.Logger, service *Service, exporters map[string]Exporter) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		exporters: exporters,
	}
}

// MountRoutes registers scholarship routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/scholarships", h.listRecords)
	r.Get("/scholarships/buckets", h.showBuckets)
	r.Get("/scholarships/export", h.export)
	r.Get("/scholarships/{id}", h.showRecord)
	r.Get("/scholarships/{id}/stages", h.showLedger)
	r.Post("/scholarships/{id}/release", h.release)
	r.Post("/scholarships/{id}/decide", h.decide)
	r.Post("/scholarships/decide-bulk", h.decideBulk)
}

// listRecords serves both audiences: ?scholar= lists a scholar's records by
// type, ?faculty= lists an approver's queue or settled history.
func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	q := r.URL.Query()

	if scholarParam := q.Get("scholar"); scholarParam != "" {
		scholarID, err := strconv.ParseInt(scholarParam, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid scholar id")
			return
		}
		records, err := h.service.ScholarRecords(r.Context(), actor, scholarID, q.Get("type"))
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"records": toRecordResponses(records)})
		return
	}

	if facultyParam := q.Get("faculty"); facultyParam != "" {
		facultyID, err := strconv.ParseInt(facultyParam, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid faculty id")
			return
		}
		if facultyID != actor.FacultyID {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "not your queue")
			return
		}
	}
	if roleParam := q.Get("role"); roleParam != "" {
		actor.ActingRole = roleParam
	}
	filter, err := parseListFilter(q)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	var (
		records []RecordWithScholar
		page    shared.Pagination
		paged   bool
	)
	switch typ := q.Get("type"); typ {
	case "", "role_pending":
		records, err = h.service.PendingForRole(r.Context(), actor, filter)
	case "role_approved":
		filter.Status = RecordApproved
		records, page, err = h.service.SettledRecords(r.Context(), actor, filter)
		paged = true
	case "role_settled":
		records, page, err = h.service.SettledRecords(r.Context(), actor, filter)
		paged = true
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown list type")
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := map[string]any{"records": toRecordWithScholarResponses(records)}
	if paged {
		resp["pagination"] = toPaginationResponse(page)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) showRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := recordID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid record id")
		return
	}
	rec, stages, err := h.service.Ledger(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	role, _ := ParseRole(actor.ActingRole)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"record":            toRecordResponse(rec),
		"permitted_actions": PermittedActions(rec, stages, role),
	})
}

func (h *Handler) showLedger(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := recordID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid record id")
		return
	}
	_, stages, err := h.service.Ledger(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if r.URL.Query().Get("type") == "latest" {
		if active := ActiveStage(stages); active != nil {
			httpx.JSON(w, http.StatusOK, map[string]any{"stage": toStageResponse(*active)})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"stage": nil})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stages": toLedgerResponse(stages)})
}

func (h *Handler) showBuckets(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	scholarID := actor.ScholarID
	if param := r.URL.Query().Get("scholar"); param != "" {
		id, err := strconv.ParseInt(param, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid scholar id")
			return
		}
		scholarID = id
	}
	if scholarID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "scholar is required")
		return
	}
	buckets, err := h.service.ScholarBuckets(r.Context(), actor, scholarID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBucketsResponse(buckets))
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := recordID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid record id")
		return
	}
	rec, err := h.service.Release(r.Context(), actor, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"record": toRecordResponse(rec)})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	id, err := recordID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid record id")
		return
	}
	var req decideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	if req.Role != "" {
		actor.ActingRole = req.Role
	}
	action, err := req.action()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown decision")
		return
	}

	if action == ActionEditDays {
		if req.DeductedDays == nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Deduction", "deducted_days is required")
			return
		}
		preview, err := h.service.PreviewDeduction(r.Context(), actor, id, *req.DeductedDays)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{
			"record":    toRecordResponse(preview),
			"committed": false,
		})
		return
	}

	decision, err := h.service.Decide(r.Context(), actor, id, DecideRequest{
		Action:       action,
		Comment:      req.Comment,
		DeductedDays: req.DeductedDays,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := map[string]any{
		"record": toRecordResponse(decision.Record),
		"stage":  toStageResponse(decision.Stage),
	}
	if decision.NextStage != nil {
		resp["next_stage"] = string(decision.NextStage.Role)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) decideBulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	var req decideBulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	if req.Role != "" {
		actor.ActingRole = req.Role
	}
	action := ActionApprove
	if req.Decision == "reject" {
		action = ActionReject
	}
	result, err := h.service.DecideBulk(r.Context(), actor, req.IDs, DecideRequest{
		Action:       action,
		Comment:      req.Comment,
		DeductedDays: req.DeductedDays,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// export streams the settled disbursement register in the requested format.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
		return
	}
	q := r.URL.Query()
	if roleParam := q.Get("role"); roleParam != "" {
		actor.ActingRole = roleParam
	}
	format := q.Get("format")
	if format == "" {
		format = "xlsx"
	}
	exporter, ok := h.exporters[format]
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown export format")
		return
	}
	filter, err := parseListFilter(q)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	filter.Status = RecordApproved

	filter.Page, filter.PerPage = 0, 0

	records, _, err := h.service.SettledRecords(r.Context(), actor, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="disbursements.%s"`, exporter.FileExtension()))
	if err := exporter.Render(w, records); err != nil {
		h.logger.Error("export failed", slog.Any("error", err), slog.String("format", format))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such record")
	case errors.Is(err, ErrUnauthorizedAction), errors.Is(err, ErrNotOwner):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrTerminalState),
		errors.Is(err, ErrStageLocked),
		errors.Is(err, ErrAlreadyReleased),
		errors.Is(err, ErrNotReleased),
		errors.Is(err, ErrReleaseConflict),
		errors.Is(err, ErrDuplicatePeriod):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidDeduction):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Deduction", err.Error())
	default:
		h.logger.Error("scholarship request failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func recordID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseListFilter(q url.Values) (ListFilter, error) {
	var filter ListFilter
	if month := q.Get("month"); month != "" {
		m, err := strconv.Atoi(month)
		if err != nil || m < 1 || m > 12 {
			return ListFilter{}, errors.New("invalid month")
		}
		filter.Month = m
	}
	if year := q.Get("year"); year != "" {
		y, err := strconv.Atoi(year)
		if err != nil || y < 1 {
			return ListFilter{}, errors.New("invalid year")
		}
		filter.Year = y
	}
	if page := q.Get("page"); page != "" {
		p, err := strconv.Atoi(page)
		if err != nil || p < 1 {
			return ListFilter{}, errors.New("invalid page")
		}
		filter.Page = p
	}
	if perPage := q.Get("per_page"); perPage != "" {
		pp, err := strconv.Atoi(perPage)
		if err != nil || pp < 1 || pp > 200 {
			return ListFilter{}, errors.New("invalid per_page")
		}
		filter.PerPage = pp
	}
	return filter, nil
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Error()
	}
	return "invalid request"
}

func currentActor(r *http.Request) (shared.Actor, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return shared.Actor{}, false
	}
	return sess.Actor()
}
