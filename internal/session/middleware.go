package session

import (
	"context"
	"net/http"

	"github.com/utafrali/EcommerceGo/storefront/internal/listing"
	"github.com/utafrali/EcommerceGo/storefront/pkg/logger"
)

// CookieName is the session cookie.
const CookieName = "sf_session"

type contextKey string

const controllerKey contextKey = "listing_controller"

// Middleware resolves the session cookie to a listing controller, starting
// a session when the cookie is missing or expired. The cookie is reissued on
// every request so its lifetime tracks the idle TTL. The controller and the
// session id are stored in the request context.
func Middleware(store *Store, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(CookieName); err == nil {
				id = c.Value
			}

			sid, ctrl, _ := store.GetOrCreate(id)
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    sid,
				Path:     "/",
				MaxAge:   int(store.TTL().Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := logger.WithSessionID(r.Context(), sid)
			ctx = context.WithValue(ctx, controllerKey, ctrl)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ControllerFromContext returns the session's listing controller.
func ControllerFromContext(ctx context.Context) (*listing.Controller, bool) {
	ctrl, ok := ctx.Value(controllerKey).(*listing.Controller)
	return ctrl, ok
}
