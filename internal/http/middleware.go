package http

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	rolesKey  contextKey = "roles"
)

// HeaderAuthMiddleware trusts the identity headers set by the platform
// gateway, which owns JWT validation. X-User-ID carries the subject,
// X-User-Roles a comma-separated role list.
func HeaderAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			ctx = context.WithValue(ctx, userIDKey, userID)
		}
		if roles := r.Header.Get("X-User-Roles"); roles != "" {
			ctx = context.WithValue(ctx, rolesKey, strings.Split(roles, ","))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route subtree on a role from the auth headers.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if getUserID(r.Context()) == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
				return
			}
			if !hasRole(r.Context(), role) {
				respondError(w, http.StatusForbidden, "permission_denied", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

func hasRole(ctx context.Context, role string) bool {
	roles, ok := ctx.Value(rolesKey).([]string)
	if !ok {
		return false
	}
	for _, r := range roles {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}
