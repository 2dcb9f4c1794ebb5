package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/model"
	"github.com/graphwarden/warden-server-go/internal/repository"
	"github.com/graphwarden/warden-server-go/internal/util"
)

type contextKey string

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

type AuthMiddleware struct {
	userRepo repository.UserRepository
}

func NewAuthMiddleware(userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{userRepo: userRepo}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Missing authentication token",
			})
			return
		}

		tokenHash := util.HashToken(token)
		user, err := m.userRepo.FindByTokenHash(r.Context(), tokenHash)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Authentication failed",
			})
			return
		}

		if user == nil {
			log.Warn().Msg("auth middleware: invalid token attempt")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
