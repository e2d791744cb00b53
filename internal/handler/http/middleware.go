package http

import (
	"mime"
	"net/http"
	"strings"

	"github.com/utafrali/EcommerceGo/storefront/pkg/httputil"
)

// ContentTypeJSON answers 415 when a request that carries or expects a body
// declares a media type other than application/json or a +json variant.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if expectsBody(r) && !isJSON(r.Header.Get("Content-Type")) {
			httputil.WriteErrorCode(w, r, http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func expectsBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return r.ContentLength > 0
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
