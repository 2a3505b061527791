package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthHandler reports database and search reachability. Only a database
// failure makes the service unhealthy.
func HealthHandler(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := map[string]string{
			"status":   "ok",
			"database": "ok",
			"search":   "disabled",
		}

		sqlDB, err := env.Store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			env.Log.Errorw("database health check failed", "error", err)
			resp["status"] = "unavailable"
			resp["database"] = "error"
			status = http.StatusServiceUnavailable
		}

		if env.Search.Enabled() {
			if err := env.Search.Ping(r.Context()); err != nil {
				env.Log.Warnw("search health check failed", "error", err)
				resp["search"] = "error"
				if status == http.StatusOK {
					resp["status"] = "degraded"
				}
			} else {
				resp["search"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
