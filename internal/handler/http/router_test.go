package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/internal/listing"
	"github.com/utafrali/EcommerceGo/storefront/internal/query"
	"github.com/utafrali/EcommerceGo/storefront/internal/querycache"
	"github.com/utafrali/EcommerceGo/storefront/internal/session"
	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/health"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
	"github.com/utafrali/EcommerceGo/storefront/pkg/middleware"
)

// =============================================================================
// Mock queries
// =============================================================================

// mockQueries serves both the product endpoints and the listing controllers.
type mockQueries struct {
	mock.Mock
}

func pageResult(args mock.Arguments) (*query.Result[*domain.ProductPage], error) {
	if args.Get(0) == nil {
		return &query.Result[*domain.ProductPage]{Status: querycache.StatusError}, args.Error(1)
	}
	return args.Get(0).(*query.Result[*domain.ProductPage]), args.Error(1)
}

func (m *mockQueries) Filtered(ctx context.Context, f domain.Filters) (*query.Result[*domain.ProductPage], error) {
	return pageResult(m.Called(ctx, f))
}

func (m *mockQueries) Products(ctx context.Context, params domain.ListParams) (*query.Result[*domain.ProductPage], error) {
	return pageResult(m.Called(ctx, params))
}

func (m *mockQueries) ByCategory(ctx context.Context, category string, params domain.ListParams) (*query.Result[*domain.ProductPage], error) {
	return pageResult(m.Called(ctx, category, params))
}

func (m *mockQueries) Search(ctx context.Context, q string, limit, skip int) (*query.Result[*domain.ProductPage], error) {
	return pageResult(m.Called(ctx, q, limit, skip))
}

func (m *mockQueries) SearchLimit() int {
	return 100
}

func (m *mockQueries) Product(ctx context.Context, id string) (*query.Result[*domain.Product], error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return &query.Result[*domain.Product]{Status: querycache.StatusError}, args.Error(1)
	}
	return args.Get(0).(*query.Result[*domain.Product]), args.Error(1)
}

func (m *mockQueries) Categories(ctx context.Context) (*query.Result[[]domain.Category], error) {
	args := m.Called(ctx)
	return args.Get(0).(*query.Result[[]domain.Category]), args.Error(1)
}

func (m *mockQueries) CreateProduct(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockQueries) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

// =============================================================================
// Helpers
// =============================================================================

const testSecret = "test-secret"

func newTestRouter(t *testing.T, q *mockQueries, validator middleware.TokenValidator) http.Handler {
	t.Helper()
	sessions := session.NewStore(func() *listing.Controller {
		return listing.NewController(q, listing.DefaultPageSize, logger.Discard())
	}, time.Hour, logger.Discard())

	return NewRouter(RouterConfig{
		ServiceName:      "storefront-test",
		Queries:          q,
		Sessions:         sessions,
		Health:           health.NewHandler("test-instance"),
		CORS:             middleware.DefaultCORSConfig(),
		TokenValidator:   validator,
		CategoriesMaxAge: 10 * time.Minute,
	}, logger.Discard())
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func fresh[T any](v T) *query.Result[T] {
	return &query.Result[T]{Data: v, Status: querycache.StatusFresh}
}

func f64(v float64) *float64 { return &v }

// =============================================================================
// Health
// =============================================================================

func TestHealthLive(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)

	rec, _ := do(t, h, http.MethodGet, "/health/live", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Products
// =============================================================================

func TestListProducts_ParsesFilters(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	want := domain.Filters{
		Query:      "phone",
		Category:   "smartphones",
		Price:      domain.PriceRange{Min: f64(10), Max: f64(50)},
		ListParams: domain.ListParams{Limit: 10, Skip: 20, SortBy: "price", Order: "desc"},
	}
	page := &domain.ProductPage{Products: []domain.Product{{ID: 1, Price: 20}}, Total: 21, Skip: 20, Limit: 10}
	q.On("Filtered", mock.Anything, want).Return(fresh(page), nil).Once()

	rec, env := do(t, h, http.MethodGet,
		"/api/v1/products?q=phone&category=smartphones&min_price=10&max_price=50&limit=10&skip=20&sort_by=price&order=desc", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body ProductListResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 21, body.Total)
	assert.Equal(t, querycache.StatusFresh, body.Status)
	require.Len(t, body.Products, 1)
	q.AssertExpectations(t)
}

func TestListProducts_RejectsBadParams(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)

	for _, path := range []string{
		"/api/v1/products?sort_by=weight",
		"/api/v1/products?order=up",
		"/api/v1/products?min_price=50&max_price=10",
		"/api/v1/products?limit=0",
		"/api/v1/products?limit=101",
		"/api/v1/products?skip=-1",
		"/api/v1/products?min_price=abc",
	} {
		rec, env := do(t, h, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		require.NotNil(t, env.Error, path)
		assert.Equal(t, "INVALID_INPUT", env.Error.Code, path)
	}
}

func TestListProducts_UpstreamFailure(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("Filtered", mock.Anything, mock.Anything).Return(nil, apperrors.Transport(503, "down", nil))

	rec, env := do(t, h, http.MethodGet, "/api/v1/products", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", env.Error.Code)
}

func TestGetProduct(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("Product", mock.Anything, "1").Return(fresh(&domain.Product{ID: 1, Price: 100, DiscountPercentage: 12.5, Stock: 3}), nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/products/1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body ProductResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.ID)
	assert.Equal(t, 87.5, body.DiscountedPrice)
	assert.True(t, body.InStock)
}

func TestGetProduct_NotFound(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("Product", mock.Anything, "999").Return(nil, apperrors.NotFound("product", "999"))

	rec, env := do(t, h, http.MethodGet, "/api/v1/products/999", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCatalogReads_DoNotStartSessions(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("Filtered", mock.Anything, mock.Anything).
		Return(fresh(&domain.ProductPage{Products: []domain.Product{{ID: 1}}, Total: 1, Limit: 20}), nil)
	q.On("Product", mock.Anything, "1").Return(fresh(&domain.Product{ID: 1}), nil)

	for _, path := range []string{"/api/v1/products", "/api/v1/products/1"} {
		rec, _ := do(t, h, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Result().Cookies(), path)
	}

	rec, _ := do(t, h, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "1", "quantity": 1})
	assert.NotNil(t, sessionCookie(t, rec), "listing actions still get a session")
}

func TestCreateProduct(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	input := domain.CreateProductInput{Title: "Lamp", Price: f64(19.99)}
	q.On("CreateProduct", mock.Anything, input).Return(&domain.Product{ID: 195, Title: "Lamp", Price: 19.99}, nil).Once()

	rec, env := do(t, h, http.MethodPost, "/api/v1/products", map[string]any{"title": "Lamp", "price": 19.99})

	require.Equal(t, http.StatusCreated, rec.Code)
	var body ProductResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 195, body.ID)
	q.AssertExpectations(t)
}

func TestCreateProduct_ValidationError(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/products", map[string]any{"description": "no title"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "title")
	assert.Contains(t, env.Error.Fields, "price")
	q.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestCreateProduct_RequiresJSON(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewBufferString("title=Lamp"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCreateProduct_RequiresToken(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, middleware.HMACValidator(testSecret))

	rec, env := do(t, h, http.MethodPost, "/api/v1/products", map[string]any{"title": "Lamp", "price": 1})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	q.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestCreateProduct_WithToken(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, middleware.HMACValidator(testSecret))
	q.On("CreateProduct", mock.Anything, mock.Anything).Return(&domain.Product{ID: 195}, nil).Once()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin-1"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	raw, _ := json.Marshal(map[string]any{"title": "Lamp", "price": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestUpdateProduct_NotImplemented(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)

	rec, env := do(t, h, http.MethodPut, "/api/v1/products/1", map[string]any{"title": "New"})

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", env.Error.Code)
}

func TestDeleteProduct_RequiresConfirmation(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)

	rec, env := do(t, h, http.MethodDelete, "/api/v1/products/1", nil)

	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	assert.Equal(t, "CONFIRMATION_REQUIRED", env.Error.Code)
	q.AssertNotCalled(t, "DeleteProduct", mock.Anything, mock.Anything)
}

func TestDeleteProduct_Confirmed(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("DeleteProduct", mock.Anything, "1").Return(&domain.Product{ID: 1}, nil).Once()

	rec, _ := do(t, h, http.MethodDelete, "/api/v1/products/1?confirm=true", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	q.AssertExpectations(t)
}

func TestListCategories(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	cats := []domain.Category{domain.NewCategory("mens-shirts"), {Name: "Beauty"}}
	q.On("Categories", mock.Anything).Return(fresh(cats), nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/categories", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=600", rec.Header().Get("Cache-Control"))
	var body []CategoryResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, []CategoryResponse{
		{Value: "mens-shirts", Label: "mens shirts"},
		{Value: "Beauty", Label: "Beauty"},
	}, body)
}

func TestAddToCart_NotImplemented(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "1", "quantity": 1})

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "NOT_IMPLEMENTED", env.Error.Code)
}

// =============================================================================
// Listing
// =============================================================================

func TestListing_SessionFlow(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("Products", mock.Anything, domain.ListParams{Limit: 20}).
		Return(fresh(&domain.ProductPage{Products: []domain.Product{{ID: 1}}, Total: 1, Limit: 20}), nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/listing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	var view listing.View
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, listing.ModeListing, view.Mode)
	assert.Equal(t, 1, view.TotalItems)

	rec, env = do(t, h, http.MethodPost, "/api/v1/listing/search", map[string]any{"query": "phone"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, listing.ModeSearching, resp.Mode)

	rec, env = do(t, h, http.MethodPost, "/api/v1/listing/category", map[string]any{"category": "beauty"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, listing.ModeListing, resp.Mode)
	assert.Empty(t, resp.State.Query)
	assert.Equal(t, "beauty", resp.State.Category)
	assert.Equal(t, 1, resp.State.Page)
}

func TestListing_SearchEventsAreDebounced(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)

	rec, env := do(t, h, http.MethodPost, "/api/v1/listing/search", map[string]any{
		"events": []map[string]any{
			{"at_ms": 0, "value": "l"},
			{"at_ms": 100, "value": "la"},
			{"at_ms": 200, "value": "lam"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, []FiredQuery{{AtMS: 700, Query: "lam"}}, resp.Fired)
	assert.Equal(t, listing.ModeSearching, resp.Mode)
}

func TestListing_SortAndPage(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)

	rec, _ := do(t, h, http.MethodPost, "/api/v1/listing/page", map[string]any{"page": 3})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	rec, env := do(t, h, http.MethodPost, "/api/v1/listing/sort", map[string]any{"sort_by": "price", "order": "desc"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 1, resp.State.Page)
	assert.Equal(t, "price", resp.State.SortBy)

	rec, env = do(t, h, http.MethodPost, "/api/v1/listing/sort", map[string]any{"sort_by": "weight"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/listing/page", map[string]any{"page": 0}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/listing/page", map[string]any{"page": listing.MaxPage + 1}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestListing_LoadError(t *testing.T) {
	q := new(mockQueries)
	h := newTestRouter(t, q, nil)
	q.On("Products", mock.Anything, mock.Anything).Return(nil, apperrors.Transport(0, "dial", nil))

	rec, env := do(t, h, http.MethodGet, "/api/v1/listing", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", env.Error.Code)
}

func TestListing_Options(t *testing.T) {
	h := newTestRouter(t, new(mockQueries), nil)

	rec, env := do(t, h, http.MethodGet, "/api/v1/listing/options", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body OptionsResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, []int{10, 20, 30, 50}, body.PageSizes)
	assert.Contains(t, body.SortFields, "price")
}
