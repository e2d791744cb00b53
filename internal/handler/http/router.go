package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/EcommerceGo/storefront/internal/session"
	"github.com/utafrali/EcommerceGo/storefront/pkg/health"
	"github.com/utafrali/EcommerceGo/storefront/pkg/middleware"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	ServiceName string
	Queries     ProductQueries
	Sessions    *session.Store
	Health      *health.Handler
	CORS        middleware.CORSConfig

	// TokenValidator guards the mutation endpoints. Nil leaves them open.
	TokenValidator middleware.TokenValidator

	// RateLimit is applied to the API routes when set.
	RateLimit func(http.Handler) http.Handler

	// CategoriesMaxAge is the Cache-Control max-age of the category list.
	CategoriesMaxAge time.Duration
	SecureCookies    bool
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	productHandler := NewProductHandler(cfg.Queries, logger)
	listingHandler := NewListingHandler(logger)

	mutation := func(h http.Handler) http.Handler {
		if cfg.TokenValidator == nil {
			return h
		}
		return middleware.Auth(cfg.TokenValidator)(h)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.Use(ContentTypeJSON)

		// Catalog reads and creation carry no listing state.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestLogger(logger))

			r.Get("/products", productHandler.ListProducts)
			r.Get("/products/{id}", productHandler.GetProduct)
			r.Method(http.MethodPost, "/products", mutation(http.HandlerFunc(productHandler.CreateProduct)))
			r.With(middleware.CacheControl(cfg.CategoriesMaxAge)).Get("/categories", productHandler.ListCategories)
		})

		// Routes that act on the visitor's listing get a session.
		r.Group(func(r chi.Router) {
			r.Use(session.Middleware(cfg.Sessions, cfg.SecureCookies))
			r.Use(middleware.RequestLogger(logger))

			r.Route("/listing", func(r chi.Router) {
				r.Get("/", listingHandler.GetListing)
				r.Get("/options", listingHandler.Options)
				r.Post("/search", listingHandler.Search)
				r.Delete("/search", listingHandler.ClearSearch)
				r.Post("/category", listingHandler.SetCategory)
				r.Post("/sort", listingHandler.SetSort)
				r.Post("/page", listingHandler.SetPage)
				r.Post("/page-size", listingHandler.SetPageSize)
			})

			r.Method(http.MethodPut, "/products/{id}", mutation(http.HandlerFunc(productHandler.UpdateProduct)))
			r.Method(http.MethodDelete, "/products/{id}", mutation(http.HandlerFunc(productHandler.DeleteProduct)))
			r.Post("/cart/items", listingHandler.AddToCart)
		})
	})

	return r
}
