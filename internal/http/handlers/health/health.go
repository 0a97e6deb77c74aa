// Package health serves the liveness endpoint backed by a database ping.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aanand-mishra/gradebook-api/internal/utils/response"
)

// Pinger is satisfied by storage.Storage.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check handles GET /healthz. It answers 503 when the database does not
// respond within two seconds.
func Check(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			response.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
