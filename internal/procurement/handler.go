package procurement

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for purchase requests, vendor pricing and
// purchase orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.handleCreateRequest)
	r.Get("/requests/{id}", h.handleGetRequest)
	r.Get("/request-lines", h.handleListRequestLines)
	r.Post("/requests/{id}/submit", h.handleSubmitRequest)
	r.Post("/requests/{id}/close", h.handleCloseRequest)
	r.Post("/requests/{id}/cancel", h.handleCancelRequest)

	r.Post("/quotes", h.handleAddQuote)
	r.Get("/vendor-suggestion", h.handleSuggestVendor)

	r.Post("/agreements", h.handleCreateAgreement)
	r.Get("/agreements", h.handleListAgreements)
	r.Get("/agreements/{id}", h.handleGetAgreement)
	r.Post("/agreements/{id}/lines", h.handleAddAgreementLine)
	r.Post("/agreements/{id}/activate", h.handleActivateAgreement)
	r.Post("/agreements/{id}/cancel", h.handleCancelAgreement)

	r.Post("/orders/from-session/{sessionID}", h.handleCreateOrdersForSession)
	r.Get("/orders", h.handleListOrders)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Post("/orders/{id}/submit", h.handleSubmitOrder)
	r.Post("/orders/{id}/approve", h.handleApproveOrder)
	r.Post("/orders/{id}/cancel", h.handleCancelOrder)
	r.Post("/orders/{id}/lines/{lineID}/receive", h.handleReceiveOrderLine)
}

type requestLinePayload struct {
	ProductID    int64     `json:"product_id" validate:"required"`
	CategoryID   int64     `json:"category_id"`
	UoM          string    `json:"uom"`
	Qty          float64   `json:"qty" validate:"required,gt=0"`
	RequiredDate time.Time `json:"required_date"`
	Priority     string    `json:"priority"`
	Notes        string    `json:"notes"`
}

type createRequestPayload struct {
	RequesterID int64                `json:"requester_id" validate:"required"`
	CompanyID   int64                `json:"company_id" validate:"required"`
	WarehouseID int64                `json:"warehouse_id"`
	RequestDate time.Time            `json:"request_date"`
	Notes       string               `json:"notes"`
	Lines       []requestLinePayload `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	input := CreateRequestInput{
		RequesterID: req.RequesterID,
		CompanyID:   req.CompanyID,
		WarehouseID: req.WarehouseID,
		RequestDate: req.RequestDate,
		Notes:       req.Notes,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, RequestLineInput{
			ProductID:    line.ProductID,
			CategoryID:   line.CategoryID,
			UoM:          line.UoM,
			Qty:          line.Qty,
			RequiredDate: line.RequiredDate,
			Priority:     Priority(line.Priority),
			Notes:        line.Notes,
		})
	}
	request, lines, err := h.service.CreateRequest(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"request": request, "lines": lines})
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	request, lines, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"request": request, "lines": lines})
}

func (h *Handler) handleListRequestLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := RequestLineFilter{}
	for _, state := range q["state"] {
		filter.States = append(filter.States, RequestState(state))
	}
	filter.CompanyID, _ = strconv.ParseInt(q.Get("company_id"), 10, 64)
	filter.CategoryID, _ = strconv.ParseInt(q.Get("category_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("date_from"); v != "" {
		filter.DateFrom, _ = time.Parse(time.RFC3339, v)
	}
	if v := q.Get("date_to"); v != "" {
		filter.DateTo, _ = time.Parse(time.RFC3339, v)
	}
	lines, err := h.service.ListRequestLines(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lines": lines})
}

type actorPayload struct {
	ActorID int64 `json:"actor_id"`
}

func (h *Handler) decodeActor(r *http.Request) int64 {
	var req actorPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return 0
	}
	return req.ActorID
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	h.requestTransition(w, r, h.service.SubmitRequest)
}

func (h *Handler) handleCloseRequest(w http.ResponseWriter, r *http.Request) {
	h.requestTransition(w, r, h.service.CloseRequest)
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	h.requestTransition(w, r, h.service.CancelRequest)
}

func (h *Handler) requestTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, actorID int64) (PurchaseRequest, error)) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	request, err := op(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, request)
}

type quotePayload struct {
	VendorID     int64     `json:"vendor_id" validate:"required"`
	ProductID    int64     `json:"product_id" validate:"required"`
	Price        float64   `json:"price" validate:"required,gt=0"`
	Currency     string    `json:"currency"`
	LeadTimeDays int       `json:"lead_time_days"`
	ValidFrom    time.Time `json:"valid_from" validate:"required"`
	ValidTo      time.Time `json:"valid_to" validate:"required"`
}

func (h *Handler) handleAddQuote(w http.ResponseWriter, r *http.Request) {
	var req quotePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	quote, err := h.service.AddQuote(r.Context(), VendorQuote{
		VendorID:     req.VendorID,
		ProductID:    req.ProductID,
		Price:        req.Price,
		Currency:     req.Currency,
		LeadTimeDays: req.LeadTimeDays,
		ValidFrom:    req.ValidFrom,
		ValidTo:      req.ValidTo,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) handleSuggestVendor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "product_id is required")
		return
	}
	at := time.Now().UTC()
	if v := q.Get("at"); v != "" {
		at, _ = time.Parse(time.RFC3339, v)
	}
	suggestion, found, err := h.service.SuggestVendor(r.Context(), productID, at)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"found": found, "suggestion": suggestion})
}

type agreementPayload struct {
	VendorID  int64     `json:"vendor_id" validate:"required"`
	ValidFrom time.Time `json:"valid_from" validate:"required"`
	ValidTo   time.Time `json:"valid_to" validate:"required"`
	Notes     string    `json:"notes"`
}

func (h *Handler) handleCreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req agreementPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	agreement, err := h.service.CreateAgreement(r.Context(), CreateAgreementInput{
		VendorID:  req.VendorID,
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
		Notes:     req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, agreement)
}

func (h *Handler) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AgreementFilter{State: AgreementState(q.Get("state"))}
	filter.VendorID, _ = strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	agreements, err := h.service.ListAgreements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"agreements": agreements})
}

func (h *Handler) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	agreement, lines, err := h.service.GetAgreement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"agreement": agreement, "lines": lines})
}

type agreementLinePayload struct {
	ProductID int64   `json:"product_id" validate:"required"`
	UnitPrice float64 `json:"unit_price" validate:"required,gt=0"`
	MinQty    float64 `json:"min_qty"`
	MaxQty    float64 `json:"max_qty"`
}

func (h *Handler) handleAddAgreementLine(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var req agreementLinePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	line, err := h.service.AddAgreementLine(r.Context(), id, AgreementLine{
		ProductID: req.ProductID,
		UnitPrice: req.UnitPrice,
		MinQty:    req.MinQty,
		MaxQty:    req.MaxQty,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) handleActivateAgreement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	agreement, err := h.service.ActivateAgreement(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agreement)
}

func (h *Handler) handleCancelAgreement(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	agreement, err := h.service.CancelAgreement(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agreement)
}

func (h *Handler) handleCreateOrdersForSession(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	result, err := h.service.CreateOrdersForSession(r.Context(), sessionID, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := OrderFilter{State: OrderState(q.Get("state"))}
	filter.VendorID, _ = strconv.ParseInt(q.Get("vendor_id"), 10, 64)
	filter.SessionID, _ = strconv.ParseInt(q.Get("session_id"), 10, 64)
	filter.CompanyID, _ = strconv.ParseInt(q.Get("company_id"), 10, 64)
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	order, lines, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": order, "lines": lines})
}

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, h.service.SubmitOrder)
}

func (h *Handler) handleApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, h.service.ApproveOrder)
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderTransition(w, r, h.service.CancelOrder)
}

func (h *Handler) orderTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, actorID int64) (PurchaseOrder, error)) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	order, err := op(r.Context(), id, h.decodeActor(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type receivePayload struct {
	ActorID int64   `json:"actor_id"`
	Qty     float64 `json:"qty" validate:"required,gt=0"`
}

func (h *Handler) handleReceiveOrderLine(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	lineID, _ := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	var req receivePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	line, err := h.service.ReceiveOrderLine(r.Context(), orderID, lineID, req.Qty, req.ActorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}
