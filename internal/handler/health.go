package handler

import (
	"net/http"

	"github.com/crosspointx/platform/internal/infra"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthHandler reports liveness. The database ping is the only dependency
// checked; Kafka being down degrades event delivery but not the API.
func HealthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := infra.HealthCheck(r.Context(), pool); err != nil {
			RespondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
