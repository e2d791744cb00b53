// Package catalogapi is the client for the remote product catalog REST API.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	apperrors "github.com/utafrali/EcommerceGo/storefront/pkg/errors"
	"github.com/utafrali/EcommerceGo/storefront/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/storefront/pkg/pagination"
	"github.com/utafrali/EcommerceGo/storefront/pkg/validator"
)

const (
	// DefaultBaseURL is the public DummyJSON endpoint.
	DefaultBaseURL = "https://dummyjson.com"

	// DefaultBulkSampleSize bounds the bulk fetch used by client-side
	// filtering. Totals derived from it count matches in the sample only.
	DefaultBulkSampleSize = 100

	minSearchLength = 2
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config holds catalog API client settings.
type Config struct {
	BaseURL        string
	BulkSampleSize int

	// RequestsPerSecond limits outbound calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns the settings used against the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		BulkSampleSize:    DefaultBulkSampleSize,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Client calls the catalog API and normalizes its responses. It holds no
// state between calls apart from the rate limiter.
type Client struct {
	doer     HTTPDoer
	baseURL  string
	bulkSize int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a catalog API client.
func New(doer HTTPDoer, cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BulkSampleSize <= 0 {
		cfg.BulkSampleSize = DefaultBulkSampleSize
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		doer:     doer,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		bulkSize: cfg.BulkSampleSize,
		limiter:  limiter,
		logger:   logger,
	}
}

// BulkSampleSize returns the configured bulk sample bound.
func (c *Client) BulkSampleSize() int {
	return c.bulkSize
}

// ListProducts returns one page of the full catalog.
func (c *Client) ListProducts(ctx context.Context, params domain.ListParams) (*domain.ProductPage, error) {
	var page domain.ProductPage
	if err := c.do(ctx, http.MethodGet, "/products", listQuery(params), nil, "products", "", &page); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	page.Normalize()
	return &page, nil
}

// GetProduct returns a single product. A blank id is rejected before any
// network call.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	var product domain.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, nil, "product", id, &product); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return &product, nil
}

// SearchProducts runs a free-text search. Queries shorter than two
// characters after trimming are rejected before any network call.
func (c *Client) SearchProducts(ctx context.Context, query string, limit, skip int) (*domain.ProductPage, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("search query must be at least %d characters", minSearchLength))
	}

	q := pageQuery(limit, skip)
	q.Set("q", query)

	var page domain.ProductPage
	if err := c.do(ctx, http.MethodGet, "/products/search", q, nil, "products", "", &page); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	page.Normalize()
	return &page, nil
}

// ListByCategory returns one page of a category. When the category endpoint
// fails it falls back to filtering a bulk sample locally and marks the page
// Approximate.
func (c *Client) ListByCategory(ctx context.Context, category string, params domain.ListParams) (*domain.ProductPage, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, apperrors.InvalidInput("category is required")
	}

	var page domain.ProductPage
	err := c.do(ctx, http.MethodGet, "/products/category/"+url.PathEscape(category), listQuery(params), nil, "category", category, &page)
	if err == nil {
		page.Normalize()
		return &page, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("list category %s: %w", category, err)
	}

	c.logger.WarnContext(ctx, "category endpoint failed, filtering bulk sample",
		slog.String("category", category),
		slog.Int("sample_size", c.bulkSize),
		slog.String("error", err.Error()),
	)

	sample, bulkErr := c.BulkSample(ctx)
	if bulkErr != nil {
		return nil, fmt.Errorf("list category %s: %w", category, errors.Join(err, bulkErr))
	}

	matches := domain.FilterByCategory(sample, category)
	if params.SortBy != "" {
		matches = domain.SortProducts(matches, params.SortBy, params.Order)
	}
	limit := effectiveLimit(params.Limit)
	return &domain.ProductPage{
		Products:    pagination.Slice(matches, params.Skip, limit),
		Total:       len(matches),
		Skip:        max(params.Skip, 0),
		Limit:       limit,
		Approximate: true,
	}, nil
}

// ListCategories returns every category. When the categories endpoint fails
// the set is derived from a bulk sample in first-seen order.
func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := c.do(ctx, http.MethodGet, "/products/categories", nil, nil, "categories", "", &categories)
	if err == nil {
		if categories == nil {
			categories = []domain.Category{}
		}
		return categories, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	c.logger.WarnContext(ctx, "categories endpoint failed, deriving from bulk sample",
		slog.Int("sample_size", c.bulkSize),
		slog.String("error", err.Error()),
	)

	sample, bulkErr := c.BulkSample(ctx)
	if bulkErr != nil {
		return nil, fmt.Errorf("list categories: %w", errors.Join(err, bulkErr))
	}
	return domain.CategoriesFromProducts(sample), nil
}

// BulkSample fetches the first BulkSampleSize products in catalog order.
func (c *Client) BulkSample(ctx context.Context) ([]domain.Product, error) {
	page, err := c.ListProducts(ctx, domain.ListParams{Limit: c.bulkSize})
	if err != nil {
		return nil, fmt.Errorf("bulk sample: %w", err)
	}
	return page.Products, nil
}

// CreateProduct adds a product. Title and price are required.
func (c *Client) CreateProduct(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	var product domain.Product
	if err := c.do(ctx, http.MethodPost, "/products/add", nil, input, "product", "", &product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &product, nil
}

// UpdateProduct applies a partial update to product id.
func (c *Client) UpdateProduct(ctx context.Context, id string, input domain.UpdateProductInput) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	if input.IsEmpty() {
		return nil, apperrors.InvalidInput("update must change at least one field")
	}
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	var product domain.Product
	if err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(id), nil, input, "product", id, &product); err != nil {
		return nil, fmt.Errorf("update product %s: %w", id, err)
	}
	return &product, nil
}

// DeleteProduct removes product id and returns the deleted record.
func (c *Client) DeleteProduct(ctx context.Context, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	var product domain.Product
	if err := c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil, "product", id, &product); err != nil {
		return nil, fmt.Errorf("delete product %s: %w", id, err)
	}
	return &product, nil
}

// do performs one round trip and decodes a 2xx body into out. resource and
// id label a 404.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, resource, id string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", resource, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		var te *apperrors.TransportError
		if errors.As(err, &te) {
			return err
		}
		return apperrors.Transport(0, method+" "+path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, resource, id)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transport(resp.StatusCode, "decode "+resource+" response", err)
	}
	return nil
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return pagination.DefaultPerPage
	}
	return limit
}

func pageQuery(limit, skip int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(effectiveLimit(limit)))
	q.Set("skip", strconv.Itoa(max(skip, 0)))
	return q
}

func listQuery(params domain.ListParams) url.Values {
	q := pageQuery(params.Limit, params.Skip)
	if params.SortBy != "" {
		q.Set("sortBy", params.SortBy)
		q.Set("order", domain.NormalizeOrder(params.Order))
	}
	return q
}
