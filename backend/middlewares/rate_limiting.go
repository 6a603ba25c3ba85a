package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/adlens/adlens/backend/metrics"
	"github.com/adlens/adlens/backend/utils"
	"github.com/redis/go-redis/v9"
)

const (
	maxRequests     = 100
	rateLimitWindow = 1 * time.Minute
)

func GlobalRateLimiter(redisClient *redis.Client) func(http.Handler) http.Handler {
	return RateLimiter(redisClient, maxRequests, rateLimitWindow)
}

// RateLimiter allows limit requests per client IP in each fixed window.
func RateLimiter(redisClient *redis.Client, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// webhook deliveries and health checks are not throttled
			if r.URL.Path == "/api/stripe/webhook" || r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("rate_limit:site:%s", getIP(r))

			allowed, err := checkRateLimit(r.Context(), redisClient, key, limit, window)
			if err != nil {
				utils.RespondInternal(w, err, "Internal Error")
				return
			}
			if !allowed {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				utils.RespondError(w, http.StatusTooManyRequests, "Too many requests, wait for one minute!")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func getIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func checkRateLimit(ctx context.Context, redisClient *redis.Client, key string, limit int64, window time.Duration) (bool, error) {
	current, err := redisClient.Get(ctx, key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}

	if current >= limit {
		return false, nil
	}

	count, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		redisClient.Expire(ctx, key, window)
	}

	return count <= limit, nil
}
