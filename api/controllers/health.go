package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/wovera/storefront-backend/api/responses"
	"github.com/wovera/storefront-backend/pkg/config"
	"github.com/wovera/storefront-backend/pkg/db"
	"github.com/wovera/storefront-backend/pkg/logger"
	"github.com/wovera/storefront-backend/pkg/redis"
)

const readinessTimeout = 3 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Wovera-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the backing stores and reports per-dependency status.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Wovera-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true

		checks["db"] = pingStatus(ctx, logg, "db", dbP, &healthy)
		checks["redis"] = pingStatus(ctx, logg, "redis", redisP, &healthy)

		status := http.StatusOK
		overall := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}

type pinger interface {
	Ping(context.Context) error
}

func pingStatus(ctx context.Context, logg *logger.Logger, name string, p pinger, healthy *bool) string {
	if p == nil {
		*healthy = false
		return "unconfigured"
	}
	if err := p.Ping(ctx); err != nil {
		*healthy = false
		if logg != nil {
			logg.Error(ctx, "health check failed: "+name, err)
		}
		return "down"
	}
	return "ok"
}
