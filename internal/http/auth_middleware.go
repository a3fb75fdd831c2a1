package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

type authContextKey string

const contextKeyAdmin authContextKey = "slaguard-admin"

type contextSetter interface {
	SetContext(context.Context)
}

// requireAdmin checks the static admin bearer token before invoking the handler.
// Stream endpoints may pass the token as the access_token query parameter.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.adminToken == "" {
			r.logger.Error("admin token not configured", "path", req.URL.Path)
			writeError(w, http.StatusInternalServerError, "admin authentication misconfigured")
			return
		}
		token, err := bearerToken(req.Header.Get("Authorization"))
		if err != nil {
			token = strings.TrimSpace(req.URL.Query().Get("access_token"))
		}
		if token == "" {
			r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if len(token) != len(r.adminToken) || subtle.ConstantTimeCompare([]byte(token), []byte(r.adminToken)) != 1 {
			r.logger.Warn("admin token mismatch", "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		ctx := context.WithValue(req.Context(), contextKeyAdmin, true)
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

func isAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(contextKeyAdmin).(bool)
	return ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
