package consolidation

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
	"github.com/meridian-erp/meridian/internal/shared"
)

// ReclassifyQueue submits a background reclassification run and returns the
// queued task id. A nil queue disables the async endpoint.
type ReclassifyQueue interface {
	EnqueueSessionReclassify(ctx context.Context, sessionID int64) (string, error)
}

// Handler wires HTTP endpoints for consolidation sessions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	audit     *shared.AuditLogger
	queue     ReclassifyQueue
	validator *validator.Validate
}

// NewHandler constructs the consolidation handler.
func NewHandler(logger *slog.Logger, service *Service, audit *shared.AuditLogger, queue ReclassifyQueue) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		audit:     audit,
		queue:     queue,
		validator: validator.New(),
	}
}

// MountRoutes registers consolidation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{id}", h.handleGetSession)
	r.Get("/sessions/{id}/audit", h.handleSessionAudit)
	r.Post("/sessions/{id}/collect", h.handleCollect)
	r.Post("/sessions/{id}/consolidate", h.handleConsolidate)
	r.Post("/sessions/{id}/validate", h.handleValidate)
	r.Post("/sessions/{id}/validate-inventory", h.handleValidateInventory)
	r.Post("/sessions/{id}/reclassify", h.handleReclassify)
	r.Post("/sessions/{id}/reclassify-async", h.handleReclassifyAsync)
	r.Post("/sessions/{id}/approve", h.handleApprove)
	r.Post("/sessions/{id}/reject", h.handleReject)
	r.Post("/sessions/{id}/begin-po", h.handleBeginPO)
	r.Post("/sessions/{id}/pos-created", h.handlePOsCreated)
	r.Post("/sessions/{id}/done", h.handleDone)
	r.Post("/sessions/{id}/cancel", h.handleCancel)
	r.Post("/sessions/{id}/reset", h.handleReset)
	r.Post("/sessions/{id}/lines/{lineID}/exception", h.handleLineException)
	r.Delete("/sessions/{id}/lines/{lineID}", h.handleRemoveLine)
}

type createSessionRequest struct {
	Reference     string    `json:"reference"`
	DateFrom      time.Time `json:"date_from" validate:"required"`
	DateTo        time.Time `json:"date_to" validate:"required"`
	ResponsibleID int64     `json:"responsible_id" validate:"required"`
	CompanyID     int64     `json:"company_id" validate:"required"`
	WarehouseID   int64     `json:"warehouse_id" validate:"required"`
	CategoryID    int64     `json:"category_id"`
	Notes         string    `json:"notes"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session, err := h.service.CreateSession(r.Context(), CreateSessionInput{
		Reference:     req.Reference,
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
		ResponsibleID: req.ResponsibleID,
		CompanyID:     req.CompanyID,
		WarehouseID:   req.WarehouseID,
		CategoryID:    req.CategoryID,
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SessionFilter{State: SessionState(q.Get("state"))}
	filter.CompanyID, _ = strconv.ParseInt(q.Get("company_id"), 10, 64)
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.ResponsibleID, _ = strconv.ParseInt(q.Get("responsible_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	sessions, err := h.service.ListSessions(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, lines, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"session": session, "lines": lines})
}

func (h *Handler) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.audit.ListByEntity(r.Context(), "consolidation_session", id, limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"audit": logs})
}

type actorRequest struct {
	ActorID     int64 `json:"actor_id"`
	CanOverride bool  `json:"can_override_shortage"`
}

func (r actorRequest) actor() Actor {
	return Actor{ID: r.ActorID, CanOverrideShortage: r.CanOverride}
}

func (h *Handler) decodeActor(r *http.Request) Actor {
	var req actorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Actor{}
	}
	return req.actor()
}

func (h *Handler) handleCollect(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, err := h.service.CollectRequests(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type consolidateRequest struct {
	actorRequest
	RequestLineIDs []int64 `json:"request_line_ids"`
}

func (h *Handler) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req consolidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session, err := h.service.ConsolidateLines(r.Context(), id, req.RequestLineIDs, req.actor())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, err := h.service.Validate(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleValidateInventory(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, summary, err := h.service.StartInventoryValidation(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"session": session, "summary": summary})
}

func (h *Handler) handleReclassify(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	summary, err := h.service.Reclassify(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleReclassifyAsync(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "background queue not configured")
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	taskID, err := h.queue.EnqueueSessionReclassify(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": taskID, "session_id": id})
}

type reviewRequest struct {
	actorRequest
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session, err := h.service.ApproveInventory(r.Context(), id, req.actor(), req.Notes)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.service.RejectInventory(r.Context(), id, req.actor(), req.Reason); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *Handler) handleBeginPO(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, err := h.service.BeginPOCreation(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type posCreatedRequest struct {
	actorRequest
	POCount       int  `json:"po_count"`
	NoPurchaseAck bool `json:"no_purchase_ack"`
}

func (h *Handler) handlePOsCreated(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req posCreatedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	session, err := h.service.MarkPOsCreated(r.Context(), id, req.POCount, req.NoPurchaseAck, req.actor())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleDone(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, err := h.service.MarkDone(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, err := h.service.Cancel(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	session, err := h.service.ResetToDraft(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleLineException(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	lineID, _ := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err := h.service.ApproveLineException(r.Context(), id, lineID, h.decodeActor(r)); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "exception_approved"})
}

func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	lineID, _ := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	session, err := h.service.RemoveLine(r.Context(), id, lineID, Actor{ID: actorID})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}
