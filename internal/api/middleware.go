package api

import (
	"net/http"

	"demobank/internal/auth"
	"demobank/internal/models"
)

// IdentityMiddleware converts trusted gateway headers into a context
// identity. An upstream proxy has already authenticated the caller; requests
// without the headers proceed anonymously and fail authorization downstream.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID != "" {
			role := models.Role(r.Header.Get("X-User-Role"))
			if role != models.RoleAdmin {
				role = models.RoleUser
			}
			r = r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{
				UserID: userID,
				Role:   role,
			}))
		}
		next.ServeHTTP(w, r)
	})
}
