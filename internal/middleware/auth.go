package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "axiscli/internal/errors"
)

// AdminAuth guards the key management API with a static bearer token. An
// empty token disables the API: every request is refused.
func AdminAuth(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			presented, ok := bearerToken(r)
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.WarnContext(ctx, "admin request refused",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"token_present", ok,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="keyadmin"`)
				render.Render(w, r, apierrors.MapLicenseError(apierrors.ErrUnauthorized, TraceID(ctx)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
