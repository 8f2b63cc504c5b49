package controllers

import (
	"net/http"

	"github.com/volna-retail/loyalty-backend/api/responses"
	"github.com/volna-retail/loyalty-backend/pkg/config"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	pkgredis "github.com/volna-retail/loyalty-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Loyalty-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when both backing stores answer.
func HealthReady(cfg *config.Config, conn *db.Client, cache pkgredis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Loyalty-Env", cfg.App.Env)

		if conn != nil {
			if err := conn.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if cache != nil {
			if err := cache.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
