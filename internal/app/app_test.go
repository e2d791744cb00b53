package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/storefront/internal/config"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/products":
			_, _ = w.Write([]byte(`{"products":[{"id":1,"title":"Mascara","price":9.99,"category":"beauty"}],"total":1,"skip":0,"limit":20}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func loadConfig(t *testing.T, catalogURL string) *config.Config {
	t.Helper()
	t.Setenv("CATALOG_BASE_URL", catalogURL)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewApp_WithoutOptionalBackends(t *testing.T) {
	cfg := loadConfig(t, newCatalogServer(t).URL)

	a, err := NewApp(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	assert.Nil(t, a.rdb)
	assert.Nil(t, a.producer)
	assert.Nil(t, a.consumer)
	assert.NotEmpty(t, a.instanceID)
}

func TestNewApp_ServesProductsFromCatalog(t *testing.T) {
	cfg := loadConfig(t, newCatalogServer(t).URL)
	a, err := NewApp(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			Products []struct {
				ID    int    `json:"id"`
				Title string `json:"title"`
			} `json:"products"`
			Total  int    `json:"total"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Products, 1)
	assert.Equal(t, "Mascara", body.Data.Products[0].Title)
	assert.Equal(t, 1, body.Data.Total)
	assert.Equal(t, "fresh", body.Data.Status)
}

func TestNewApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	cfg := loadConfig(t, newCatalogServer(t).URL)

	a, err := NewApp(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })
	require.NotNil(t, a.rdb)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, mr.Keys(), "listing should be written to the shared cache")
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	t.Setenv("REDIS_ADDR", addr)
	cfg := loadConfig(t, newCatalogServer(t).URL)

	a, err := NewApp(cfg, logger.Discard())

	assert.Nil(t, a)
	assert.ErrorContains(t, err, "connect to redis")
}
