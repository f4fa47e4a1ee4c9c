// Package app wires configuration, adapters, and handlers into a
// runnable gateway.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	httpserver "github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/httpserver"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/adapter/observability"
	"github.com/fairyhunter13/cs2-inspect-gateway/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(otelhttp.NewMiddleware("http.server"))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Inspect-capable paths are rate limited per client IP; stats and
	// probes are not. The root path serves inspects too when the request
	// carries a descriptor.
	r.Group(func(ir chi.Router) {
		ir.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		ir.Get("/", srv.RootHandler())
		ir.Get("/inspect", srv.InspectHandler())
		// Kept as an alias for clients of float-api style deployments.
		ir.Get("/float", srv.InspectHandler())
	})

	r.Get("/stats", srv.StatsHandler())

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	if cfg.AdminEnabled() {
		r.Group(func(ar chi.Router) {
			ar.Use(srv.AdminAuth)
			ar.Post("/admin/bots/reconnect", srv.ReconnectBotHandler())
			ar.Post("/admin/bots/reconnect_all", srv.ReconnectAllHandler())
		})
	}

	return httpserver.SecurityHeaders(r)
}
