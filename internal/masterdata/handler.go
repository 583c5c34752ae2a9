// Package masterdata exposes the reference-data HTTP surface over the
// products, categories and warehouses services.
package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian/internal/masterdata/categories"
	"github.com/meridian-erp/meridian/internal/masterdata/products"
	mdshared "github.com/meridian-erp/meridian/internal/masterdata/shared"
	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler wires the master data endpoints.
type Handler struct {
	logger     *slog.Logger
	products   *products.Service
	categories *categories.Service
	houses     *warehouses.Service
}

// NewHandler constructs the master data handler.
func NewHandler(logger *slog.Logger, productsSvc *products.Service, categoriesSvc *categories.Service, housesSvc *warehouses.Service) *Handler {
	return &Handler{logger: logger, products: productsSvc, categories: categoriesSvc, houses: housesSvc}
}

// MountRoutes registers the master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleListProducts)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Post("/products", h.handleCreateProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)

	r.Get("/categories", h.handleListCategories)
	r.Get("/categories/{id}/ancestry", h.handleCategoryAncestry)
	r.Post("/categories", h.handleCreateCategory)

	r.Get("/warehouses", h.handleListWarehouses)
	r.Get("/warehouses/{id}", h.handleGetWarehouse)
	r.Get("/warehouses/{id}/primary-location", h.handlePrimaryLocation)
	r.Post("/warehouses", h.handleCreateWarehouse)
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := mdshared.ListFilters{
		Search:  q.Get("search"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("category_id"); v != "" {
		id, _ := strconv.ParseInt(v, 10, 64)
		filters.CategoryID = &id
	}
	if v := q.Get("active"); v != "" {
		active := v == "true" || v == "1"
		filters.IsActive = &active
	}
	items, total, err := h.products.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": items, "total": total})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	product, err := h.products.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var product products.Product
	if err := httpx.DecodeJSON(r, &product); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.products.Create(r.Context(), product)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var product products.Product
	if err := httpx.DecodeJSON(r, &product); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.products.Update(r.Context(), id, product); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.categories.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"categories": items})
}

func (h *Handler) handleCategoryAncestry(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	ids, err := h.categories.Ancestry(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ancestry": ids})
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var category categories.Category
	if err := httpx.DecodeJSON(r, &category); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.categories.Create(r.Context(), category)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListWarehouses(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	items, err := h.houses.List(r.Context(), companyID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": items})
}

func (h *Handler) handleGetWarehouse(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	warehouse, err := h.houses.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) handlePrimaryLocation(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	location, err := h.houses.PrimaryLocation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, location)
}

func (h *Handler) handleCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var warehouse warehouses.Warehouse
	if err := httpx.DecodeJSON(r, &warehouse); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	created, err := h.houses.Create(r.Context(), warehouse)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}
