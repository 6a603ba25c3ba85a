package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adlens/adlens/backend/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type contextKey string

const UserIDContextKey contextKey = "userID"

// RefreshKey is the Redis key holding the current refresh token of a user.
func RefreshKey(userID string) string {
	return fmt.Sprintf("refresh:%s", userID)
}

type Authenticator struct {
	RedisClient  *redis.Client
	AccessSecret []byte
}

func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, fromCookie := accessToken(r)
		if tokenString == "" {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
			return
		}

		claims, err := utils.ParseToken(tokenString, a.AccessSecret)
		if err != nil {
			zap.L().Debug("auth failed: invalid or expired token", zap.Error(err))
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Invalid or expired token")
			return
		}

		redisOpCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		stored, err := a.RedisClient.Get(redisOpCtx, RefreshKey(claims.UserID)).Result()
		if errors.Is(err, redis.Nil) {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Session ended")
			return
		}
		if err != nil {
			utils.RespondInternal(w, err, "Unable to verify session")
			return
		}

		// cookie sessions must still hold the refresh token issued alongside the access token
		if fromCookie {
			rcookie, err := r.Cookie(utils.RefreshCookieName)
			if err != nil || rcookie.Value != stored {
				utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accessToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(utils.AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token), false
	}
	return "", false
}

// UserID returns the authenticated user id placed on the context by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDContextKey).(string)
	return id, ok && id != ""
}

// WithUserID is used by tests and internal callers that bypass AuthMiddleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}
