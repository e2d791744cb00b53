package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl marks successful GET responses as cacheable for maxAge.
// Responses that are not 2xx are sent with no-store.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, value: value}, r)
		})
	}
}

type cacheControlWriter struct {
	http.ResponseWriter
	value       string
	wroteHeader bool
}

func (cw *cacheControlWriter) WriteHeader(code int) {
	if !cw.wroteHeader {
		cw.wroteHeader = true
		if code >= 200 && code < 300 {
			cw.Header().Set("Cache-Control", cw.value)
		} else {
			cw.Header().Set("Cache-Control", "no-store")
		}
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *cacheControlWriter) Write(b []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	return cw.ResponseWriter.Write(b)
}
