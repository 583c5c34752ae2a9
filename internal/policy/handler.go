package policy

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock policy rules.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the policy handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers policy routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rules", h.handleList)
	r.Post("/rules", h.handleCreate)
	r.Get("/rules/{id}", h.handleGet)
	r.Put("/rules/{id}", h.handleUpdate)
	r.Get("/resolve", h.handleResolve)
	r.Get("/suggest", h.handleSuggest)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{ActiveOnly: q.Get("active") == "true"}
	filter.WarehouseID, _ = strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.CategoryID, _ = strconv.ParseInt(q.Get("category_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	rules, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rule Rule
	if err := httpx.DecodeJSON(r, &rule); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), rule)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	rule, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var rule Rule
	if err := httpx.DecodeJSON(r, &rule); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rule.ID = id
	if err := h.service.Update(r.Context(), rule); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	categoryID, _ := strconv.ParseInt(q.Get("category_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if productID == 0 && categoryID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "product_id or category_id is required")
		return
	}
	rule, ok, err := h.service.Resolve(r.Context(), productID, categoryID, warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if !ok {
		httpx.RespondError(w, h.logger, ErrRuleNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	avgDaily, _ := strconv.ParseFloat(q.Get("avg_daily_usage"), 64)
	leadTime, _ := strconv.Atoi(q.Get("lead_time_days"))
	suggestion, err := h.service.Suggest(avgDaily, leadTime)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, suggestion)
}
