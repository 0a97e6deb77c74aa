// Package router builds the complete HTTP handler: the route table plus
// the middleware chain around it.
//
// Route table:
//
//	GET    /                              → list all students
//	POST   /                              → create a student, return the listing
//	DELETE /student/{id}                  → delete a student, return the listing
//	GET    /studentInformation/{id}       → student detail with grades
//	POST   /grades                        → add a grade (form encoded)
//	DELETE /grades/{id}/{gradeType}       → remove a grade
//	GET    /healthz                       → database liveness
//	GET    /metrics                       → Prometheus metrics
package router

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aanand-mishra/gradebook-api/internal/config"
	"github.com/aanand-mishra/gradebook-api/internal/http/handlers/grade"
	"github.com/aanand-mishra/gradebook-api/internal/http/handlers/health"
	"github.com/aanand-mishra/gradebook-api/internal/http/handlers/student"
	"github.com/aanand-mishra/gradebook-api/internal/http/middleware"
	"github.com/aanand-mishra/gradebook-api/internal/metrics"
	"github.com/aanand-mishra/gradebook-api/internal/service/gradebook"
)

// New returns the application handler. m may be nil, in which case
// /metrics is not served.
func New(svc gradebook.Service, db health.Pinger, m *metrics.Metrics, cfg config.HTTPServer, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// {$} anchors the pattern so "/" does not match every path.
	mux.HandleFunc("GET /{$}", student.GetList(svc))
	mux.HandleFunc("POST /{$}", student.New(svc))
	mux.HandleFunc("DELETE /student/{id}", student.Delete(svc))
	mux.HandleFunc("GET /studentInformation/{id}", student.Information(svc))

	mux.HandleFunc("POST /grades", grade.New(svc))
	mux.HandleFunc("DELETE /grades/{id}/{gradeType}", grade.Delete(svc))

	mux.HandleFunc("GET /healthz", health.Check(db))
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// Wrapped inside out: the first middleware listed here runs last.
	// Recoverer writes its 500 before RequestLogger reads the status, and
	// throttled requests are still logged and counted.
	var h http.Handler = mux
	h = chimw.Recoverer(h)
	h = middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)(h)
	h = middleware.RequestLogger(log, m)(h)
	h = middleware.CORS(cfg.CORSAllowedOrigins)(h)
	h = chimw.RealIP(h)
	h = chimw.RequestID(h)

	return h
}
