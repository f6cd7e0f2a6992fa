// Package api serves the admin HTTP surface: unauthenticated health and
// Prometheus metrics endpoints, and a bearer-authenticated status and
// control surface for the operator.
//
// There is no user store and no roles, just one admin secret exchanged
// for a short-lived JWT.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/pkg/api/auth"
	"github.com/dirlistener/dirlistener/pkg/api/handlers"
	apimiddleware "github.com/dirlistener/dirlistener/pkg/api/middleware"
	"github.com/dirlistener/dirlistener/pkg/cache"
	"github.com/dirlistener/dirlistener/pkg/handler"
	"github.com/dirlistener/dirlistener/pkg/supervisor"
)

// Deps bundles everything the admin router needs to answer requests.
// AdminSecretHash is a bcrypt hash (pkg/api/auth.HashSecret), never the
// plaintext secret.
type Deps struct {
	Store           cache.Store
	Runtime         *handler.Runtime
	Cursor          handlers.CursorReporter
	Errors          *supervisor.ErrorLog
	Quarantine      *supervisor.QuarantineChecker
	JWT             *auth.JWTService
	AdminSecretHash string
}

// NewRouter builds the chi router for the admin HTTP surface.
//
// Routes:
//   - GET  /healthz                  - liveness probe, unauthenticated
//   - GET  /metrics                  - Prometheus exposition, unauthenticated
//   - GET  /status                   - cursor/schema/module/quarantine state, authenticated
//   - POST /admin/login               - exchange the admin secret for a token
//   - POST /admin/quarantine/clear    - remove the failed-replay sentinel, authenticated
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := handlers.NewHealthHandler()
	r.Get("/healthz", health.Liveness)
	r.Handle("/metrics", promhttp.Handler())

	status := &handlers.StatusHandler{
		Store:      deps.Store,
		Runtime:    deps.Runtime,
		Cursor:     deps.Cursor,
		Errors:     deps.Errors,
		Quarantine: deps.Quarantine,
	}
	admin := &handlers.AdminHandler{
		SecretHash: deps.AdminSecretHash,
		JWT:        deps.JWT,
		Quarantine: deps.Quarantine,
	}

	r.Post("/admin/login", admin.Login)

	r.Group(func(r chi.Router) {
		r.Use(apimiddleware.BearerAuth(deps.JWT))
		r.Get("/status", status.Get)
		r.Post("/admin/quarantine/clear", admin.ClearQuarantine)
	})

	return r
}

// requestLogger logs every request at INFO with its final status and
// duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("api: request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
