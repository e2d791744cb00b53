// Package query exposes typed, cached accessors over the catalog API and the
// mutations that keep those caches consistent.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/EcommerceGo/storefront/internal/domain"
	"github.com/utafrali/EcommerceGo/storefront/internal/querycache"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

// Cache kinds.
const (
	KindProducts   = "products"
	KindCategory   = "products.category"
	KindPrice      = "products.price"
	KindFiltered   = "products.filtered"
	KindProduct    = "product"
	KindSearch     = "search"
	KindCategories = "categories"
)

// ListingKinds are the kinds every product mutation invalidates.
func ListingKinds() []string {
	return []string{KindProducts, KindCategory, KindPrice, KindFiltered}
}

// CatalogAPI is the remote catalog as seen by the query layer.
type CatalogAPI interface {
	ListProducts(ctx context.Context, params domain.ListParams) (*domain.ProductPage, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit, skip int) (*domain.ProductPage, error)
	ListByCategory(ctx context.Context, category string, params domain.ListParams) (*domain.ProductPage, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	BulkSample(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, input domain.CreateProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, input domain.UpdateProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Invalidation describes the cache entries a mutation made obsolete.
type Invalidation struct {
	Kinds     []string `json:"kinds"`
	ProductID string   `json:"product_id,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Publisher announces invalidations to other replicas.
type Publisher interface {
	PublishInvalidation(ctx context.Context, inv Invalidation) error
}

// Result is the state of one accessor call. Err is set when Status is error;
// Data then holds the last successfully fetched value, if any.
type Result[T any] struct {
	Data      T                 `json:"data"`
	Status    querycache.Status `json:"status"`
	Err       error             `json:"-"`
	FetchedAt time.Time         `json:"fetched_at,omitzero"`
}

// Idle reports whether the accessor was disabled by its input.
func (r *Result[T]) Idle() bool {
	return r.Status == querycache.StatusIdle
}

// Config holds per-kind cache policies and sampling bounds.
type Config struct {
	Listing    querycache.Policy
	Categories querycache.Policy
	Search     querycache.Policy
	Product    querycache.Policy

	// SearchLimit is how many results a search fetches in one call.
	SearchLimit int
}

// DefaultConfig returns the default policies.
func DefaultConfig() Config {
	return Config{
		Listing:     querycache.NewPolicy(querycache.ListingStaleTime),
		Categories:  querycache.NewPolicy(querycache.CategoriesStaleTime),
		Search:      querycache.NewPolicy(querycache.SearchStaleTime),
		Product:     querycache.NewPolicy(querycache.ProductStaleTime),
		SearchLimit: 100,
	}
}

// Service implements the accessors and mutations.
type Service struct {
	api       CatalogAPI
	cache     *querycache.Cache
	store     querycache.Store
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a query service. store and publisher may be nil.
func NewService(api CatalogAPI, cache *querycache.Cache, store querycache.Store, publisher Publisher, cfg Config, logger *slog.Logger) *Service {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultConfig().SearchLimit
	}
	return &Service{
		api:       api,
		cache:     cache,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// SearchLimit returns how many results a search fetches.
func (s *Service) SearchLimit() int {
	return s.cfg.SearchLimit
}

func idle[T any]() *Result[T] {
	return &Result[T]{Status: querycache.StatusIdle}
}

// load runs fetch through the cache, reading through the shared store when
// one is configured. The store generation is taken before the fetch, so a
// result that lands after an invalidation is never written back. Store
// failures are logged and otherwise ignored.
func load[T any](ctx context.Context, s *Service, key querycache.Key, policy querycache.Policy, fetch func(context.Context) (T, error)) (*Result[T], error) {
	v, snap, err := querycache.Load(ctx, s.cache, key, policy, func(ctx context.Context) (T, error) {
		shared := s.store != nil && policy.StaleTime > 0
		var gen querycache.Generation
		if shared {
			var err error
			if gen, err = s.store.Generation(ctx, key); err != nil {
				s.storeFailed(ctx, "shared cache read failed", key, err)
				shared = false
			}
		}
		if shared {
			var cached T
			ok, err := s.store.Get(ctx, key, &cached)
			if err != nil {
				s.storeFailed(ctx, "shared cache read failed", key, err)
			} else if ok {
				return cached, nil
			}
		}

		v, err := fetch(ctx)
		if err != nil || !shared {
			return v, err
		}
		written, err := s.store.Set(ctx, key, gen, v, policy.StaleTime)
		if err != nil {
			s.storeFailed(ctx, "shared cache write failed", key, err)
		} else if !written {
			logger.WithContext(ctx, s.logger).DebugContext(ctx, "shared cache write superseded",
				slog.String("kind", key.Kind),
			)
		}
		return v, nil
	})

	res := &Result[T]{Data: v, Status: snap.Status, Err: snap.Err, FetchedAt: snap.FetchedAt}
	if err != nil {
		res.Err = err
		return res, err
	}
	return res, nil
}

func (s *Service) storeFailed(ctx context.Context, msg string, key querycache.Key, err error) {
	logger.WithContext(ctx, s.logger).WarnContext(ctx, msg,
		slog.String("kind", key.Kind),
		slog.String("error", err.Error()),
	)
}

func productKey(id string) querycache.Key {
	return querycache.NewKey(KindProduct, strings.TrimSpace(id))
}
