package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/adlens/adlens/backend/database"
	"github.com/adlens/adlens/backend/store"
	"github.com/adlens/adlens/backend/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type MaintenanceHandler struct {
	Store       *store.Store
	RedisClient *redis.Client
	DatabaseURL string
}

func (h *MaintenanceHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	changed, err := database.Migrate(h.DatabaseURL)
	if err != nil {
		utils.RespondInternal(w, err, "Migration failed")
		return
	}

	zap.L().Info("migrations run from admin endpoint", zap.Bool("changed", changed))
	utils.RespondSuccess(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *MaintenanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := database.Status(h.DatabaseURL)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to read migration status")
		return
	}

	counts, err := h.Store.TableCounts(r.Context())
	if err != nil {
		utils.RespondInternal(w, err, "Unable to count rows")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"migration": status,
		"tables":    counts,
	})
}

func (h *MaintenanceHandler) Ping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.Store.Ping(ctx); err != nil {
		utils.RespondUpstream(w, http.StatusServiceUnavailable, err, "Database unreachable")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]any{
		"database":  "ok",
		"latencyMs": time.Since(start).Milliseconds(),
	})
}

// Health is public and reports 503 when either backing store is down.
func (h *MaintenanceHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if err := h.Store.Ping(ctx); err != nil {
		zap.L().Warn("health check: database down", zap.Error(err))
		checks["database"] = "down"
		healthy = false
	}
	if err := h.RedisClient.Ping(ctx).Err(); err != nil {
		zap.L().Warn("health check: redis down", zap.Error(err))
		checks["redis"] = "down"
		healthy = false
	}

	if !healthy {
		utils.RespondError(w, http.StatusServiceUnavailable, "Service degraded")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, checks)
}
