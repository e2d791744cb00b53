package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheControl_SuccessfulGet(t *testing.T) {
	h := CacheControl(30 * time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	assert.Equal(t, "public, max-age=1800", rec.Header().Get("Cache-Control"))
}

func TestCacheControl_ErrorResponseNotCached(t *testing.T) {
	h := CacheControl(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCacheControl_SkipsNonGet(t *testing.T) {
	h := CacheControl(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/products", nil))

	assert.Empty(t, rec.Header().Get("Cache-Control"))
}
