package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/internal/query"
	"github.com/utafrali/EcommerceGo/storefront/internal/querycache"
	"github.com/utafrali/EcommerceGo/storefront/internal/session"
	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/httputil"
	"github.com/utafrali/EcommerceGo/storefront/pkg/pagination"
	"github.com/utafrali/EcommerceGo/storefront/pkg/validator"
)

// ProductQueries is the subset of the query service the product endpoints
// use.
type ProductQueries interface {
	Filtered(ctx context.Context, f domain.Filters) (*query.Result[*domain.ProductPage], error)
	Product(ctx context.Context, id string) (*query.Result[*domain.Product], error)
	Categories(ctx context.Context) (*query.Result[[]domain.Category], error)
	CreateProduct(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error)
}

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	queries ProductQueries
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(queries ProductQueries, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		queries: queries,
		logger:  logger,
	}
}

// --- Response DTOs ---

// ProductListResponse is one page of products plus its cache state.
type ProductListResponse struct {
	Products    []domain.Product  `json:"products"`
	Total       int               `json:"total"`
	Skip        int               `json:"skip"`
	Limit       int               `json:"limit"`
	Approximate bool              `json:"approximate"`
	Status      querycache.Status `json:"status"`
	FetchedAt   time.Time         `json:"fetched_at,omitzero"`
}

// ProductResponse is a product with its derived display fields.
type ProductResponse struct {
	domain.Product
	DiscountedPrice float64           `json:"discountedPrice"`
	InStock         bool              `json:"inStock"`
	Status          querycache.Status `json:"status,omitempty"`
}

// CategoryResponse is a category as a filter option.
type CategoryResponse struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func newProductResponse(p *domain.Product, status querycache.Status) ProductResponse {
	return ProductResponse{
		Product:         *p,
		DiscountedPrice: p.DiscountedPrice(),
		InStock:         p.InStock(),
		Status:          status,
	}
}

// --- Handlers ---

// ListProducts handles GET /api/v1/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	res, err := h.queries.Filtered(r.Context(), filters)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	page := domain.ProductPage{}
	if res.Data != nil {
		page = *res.Data
	}
	page.Normalize()

	httputil.WriteData(w, http.StatusOK, ProductListResponse{
		Products:    page.Products,
		Total:       page.Total,
		Skip:        page.Skip,
		Limit:       page.Limit,
		Approximate: page.Approximate,
		Status:      res.Status,
		FetchedAt:   res.FetchedAt,
	})
}

func parseFilters(r *http.Request) (domain.Filters, error) {
	q := r.URL.Query()
	f := domain.Filters{
		Query:    q.Get("q"),
		Category: q.Get("category"),
	}

	var err error
	if f.Price.Min, err = httputil.QueryFloat(r, "min_price"); err != nil {
		return f, err
	}
	if f.Price.Max, err = httputil.QueryFloat(r, "max_price"); err != nil {
		return f, err
	}
	if f.Price.Min != nil && f.Price.Max != nil && *f.Price.Min > *f.Price.Max {
		return f, apperrors.InvalidInput("min_price must not exceed max_price")
	}

	if f.Limit, err = httputil.QueryInt(r, "limit", pagination.DefaultPerPage); err != nil {
		return f, err
	}
	if f.Limit < 1 || f.Limit > pagination.MaxPerPage {
		return f, apperrors.InvalidInput("limit must be between 1 and 100")
	}
	if f.Skip, err = httputil.QueryInt(r, "skip", 0); err != nil {
		return f, err
	}

	f.SortBy = q.Get("sort_by")
	if !domain.IsValidSortField(f.SortBy) {
		return f, apperrors.InvalidInput("unknown sort_by " + f.SortBy)
	}
	f.Order = q.Get("order")
	if !domain.IsValidSortOrder(f.Order) {
		return f, apperrors.InvalidInput("order must be asc or desc")
	}
	return f, nil
}

// GetProduct handles GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	res, err := h.queries.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if res.Idle() || res.Data == nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("product id is required"), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newProductResponse(res.Data, res.Status))
}

// CreateProduct handles POST /api/v1/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input domain.CreateProductInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	product, err := h.queries.CreateProduct(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, newProductResponse(product, ""))
}

// UpdateProduct handles PUT /api/v1/products/{id}. Editing is not offered.
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := session.ControllerFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unsupported("edit product"), h.logger)
		return
	}
	var input domain.UpdateProductInput
	if err := validator.DecodeAndValidate(r, &input); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteError(w, r, ctrl.Edit(r.Context(), chi.URLParam(r, "id"), input), h.logger)
}

// DeleteProduct handles DELETE /api/v1/products/{id}?confirm=true
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := session.ControllerFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Internal(errNoSession), h.logger)
		return
	}

	product, err := ctrl.Delete(r.Context(), chi.URLParam(r, "id"), httputil.QueryBool(r, "confirm"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newProductResponse(product, ""))
}

// ListCategories handles GET /api/v1/categories
func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	res, err := h.queries.Categories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	out := make([]CategoryResponse, 0, len(res.Data))
	for _, c := range res.Data {
		out = append(out, CategoryResponse{Value: c.Value(), Label: c.Label()})
	}
	httputil.WriteData(w, http.StatusOK, out)
}
