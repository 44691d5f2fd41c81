package handlers

import (
	"net/http"
	"strings"

	"github.com/SrAngelDev/CamisApi-sub000/internal/platform/httpx"
	"github.com/SrAngelDev/CamisApi-sub000/internal/platform/requestctx"
)

// CallerIdentityHeader carries the user ID asserted by the gateway in front
// of this service. The API trusts it; token verification happens upstream.
const CallerIdentityHeader = "X-User-ID"

// CallerIdentityMiddleware copies the gateway-asserted user ID into the
// request context so handlers and logs can read it.
func CallerIdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := strings.TrimSpace(r.Header.Get(CallerIdentityHeader)); userID != "" {
				r = r.WithContext(requestctx.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireUserID resolves the caller identity or writes a 401 response.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(requestctx.UserID(r.Context()))
	if userID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "caller identity required", http.StatusUnauthorized))
		return "", false
	}
	return userID, true
}
