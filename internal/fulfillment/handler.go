package fulfillment

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for fulfillment plans.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the fulfillment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers fulfillment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/plans", h.handleCreatePlan)
	r.Get("/plans", h.handleListPlans)
	r.Get("/plans/{id}", h.handleGetPlan)
	r.Post("/plans/{id}/exception", h.handleMarkException)
	r.Get("/suggest-source", h.handleSuggestSource)
	r.Get("/request-lines/{id}/status", h.handleLineStatus)
}

type createPlanRequest struct {
	RequestLineID int64      `json:"request_line_id"`
	SessionID     int64      `json:"session_id"`
	ProductID     int64      `json:"product_id"`
	PlannedQty    float64    `json:"planned_qty"`
	CompanyID     int64      `json:"company_id"`
	WarehouseID   int64      `json:"warehouse_id"`
	SourceType    SourceType `json:"source_type"`
	SourceLocID   int64      `json:"source_location_id"`
	POLineIDs     []int64    `json:"po_line_ids"`
	PlannedStart  time.Time  `json:"planned_start"`
	PlannedEnd    time.Time  `json:"planned_end"`
	Notes         string     `json:"notes"`
	ActorID       int64      `json:"actor_id"`
}

func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	plan, err := h.service.CreatePlan(r.Context(), CreatePlanInput{
		RequestLineID: req.RequestLineID,
		SessionID:     req.SessionID,
		ProductID:     req.ProductID,
		PlannedQty:    req.PlannedQty,
		CompanyID:     req.CompanyID,
		WarehouseID:   req.WarehouseID,
		SourceType:    req.SourceType,
		SourceLocID:   req.SourceLocID,
		POLineIDs:     req.POLineIDs,
		PlannedStart:  req.PlannedStart,
		PlannedEnd:    req.PlannedEnd,
		Notes:         req.Notes,
		ActorID:       req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := PlanFilter{Status: PlanStatus(q.Get("status"))}
	filter.SessionID, _ = strconv.ParseInt(q.Get("session_id"), 10, 64)
	filter.RequestLineID, _ = strconv.ParseInt(q.Get("request_line_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	plans, err := h.service.ListPlans(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *Handler) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

type exceptionRequest struct {
	Note    string `json:"note"`
	ActorID int64  `json:"actor_id"`
}

func (h *Handler) handleMarkException(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req exceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	plan, err := h.service.MarkException(r.Context(), id, req.Note, req.ActorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) handleSuggestSource(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	qty, _ := strconv.ParseFloat(q.Get("qty"), 64)
	companyID, _ := strconv.ParseInt(q.Get("company_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if productID == 0 || qty <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "product_id and a positive qty are required")
		return
	}
	suggestion, err := h.service.SuggestSource(r.Context(), productID, qty, companyID, warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestion)
}

func (h *Handler) handleLineStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	status, err := h.service.RequestLineStatus(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
