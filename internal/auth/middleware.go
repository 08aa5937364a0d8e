package auth

import (
	"net/http"

	"github.com/point10xdev/ERP-Rebuild/internal/platform/httpx"
	"github.com/point10xdev/ERP-Rebuild/internal/shared"
)

// RequireActor rejects requests whose session carries no login.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		if _, ok := sess.Actor(); !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
