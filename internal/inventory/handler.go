package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/snapshot", h.handleSnapshot)
	r.Get("/usage", h.handleUsage)
	r.Get("/movements", h.handleListMovements)
	r.Post("/movements", h.handleScheduleMovement)
	r.Get("/movements/{id}", h.handleGetMovement)
	r.Post("/movements/{id}/complete", h.handleCompleteMovement)
	r.Post("/movements/{id}/cancel", h.handleCancelMovement)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if productID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "product_id and location_id are required")
		return
	}
	snap, err := h.service.GetSnapshot(r.Context(), productID, locationID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	productID, _ := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	if productID == 0 || warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "product_id and warehouse_id are required")
		return
	}
	usage, err := h.service.Usage(r.Context(), productID, warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, usage)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		State:     MovementState(q.Get("state")),
		RefModule: q.Get("ref_module"),
		RefID:     q.Get("ref_id"),
	}
	filter.ProductID, _ = strconv.ParseInt(q.Get("product_id"), 10, 64)
	filter.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type scheduleMovementRequest struct {
	Code           string    `json:"code"`
	ProductID      int64     `json:"product_id" validate:"required"`
	Qty            float64   `json:"qty" validate:"required,gt=0"`
	SourceLocation int64     `json:"source_location_id" validate:"required"`
	DestLocation   int64     `json:"dest_location_id" validate:"required"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	POLineID       int64     `json:"po_line_id"`
	RefModule      string    `json:"ref_module"`
	RefID          string    `json:"ref_id"`
	Note           string    `json:"note"`
	ActorID        int64     `json:"actor_id"`
}

func (h *Handler) handleScheduleMovement(w http.ResponseWriter, r *http.Request) {
	var req scheduleMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	movement, err := h.service.ScheduleMovement(r.Context(), MovementInput{
		Code:           req.Code,
		ProductID:      req.ProductID,
		Qty:            req.Qty,
		SourceLocation: req.SourceLocation,
		DestLocation:   req.DestLocation,
		ScheduledAt:    req.ScheduledAt,
		POLineID:       req.POLineID,
		RefModule:      req.RefModule,
		RefID:          req.RefID,
		Note:           req.Note,
		ActorID:        req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleGetMovement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	movement, err := h.service.GetMovement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) handleCompleteMovement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	movement, err := h.service.CompleteMovement(r.Context(), id, actorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) handleCancelMovement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	if err := h.service.CancelMovement(r.Context(), id, actorID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
