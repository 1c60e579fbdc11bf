package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a backing service.
type Pinger func(ctx context.Context) error

// Health reports liveness and whether the database answers.
func Health(ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"database":  "connected",
		}
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				payload["status"] = "degraded"
				payload["database"] = err.Error()
			}
		}
		respond(w, http.StatusOK, payload)
	}
}
