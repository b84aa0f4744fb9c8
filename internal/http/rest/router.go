package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/mocap_installer/internal/telemetry"
)

// NewRouter mounts the status API and the metrics endpoint behind the request id,
// logging and telemetry middleware.
func NewRouter(status *StatusHandler, tel *telemetry.Telemetry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", status.Routes())

	return r
}
