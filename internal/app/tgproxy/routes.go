// Package tgproxy предоставляет маршруты внутреннего админского API.
package tgproxy

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrustalq/tg-proxy/internal/http/handlers/grant"
	"github.com/hrustalq/tg-proxy/internal/http/handlers/health"
	"github.com/hrustalq/tg-proxy/internal/http/handlers/server/add"
	"github.com/hrustalq/tg-proxy/internal/http/handlers/server/list"
	"github.com/hrustalq/tg-proxy/internal/http/handlers/server/toggle"
	"github.com/hrustalq/tg-proxy/internal/http/handlers/stats"
	"github.com/hrustalq/tg-proxy/internal/http/middlewarectx"
	"github.com/hrustalq/tg-proxy/internal/lib/jwt"
	"github.com/hrustalq/tg-proxy/internal/mtg"
	"github.com/hrustalq/tg-proxy/internal/services/serverdir"
	"github.com/hrustalq/tg-proxy/internal/services/subscription"
)

// RegisterRoutes регистрирует маршруты админского API.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	ledger *subscription.Ledger,
	directory *serverdir.Directory,
	monitor *mtg.Monitor,
	maker jwt.Maker,
	registry *prometheus.Registry,
) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AdminAuthMiddleware(maker, logger))
			r.Get("/servers", list.New(logger, directory).ServeHTTP)
			r.Post("/servers", add.New(logger, directory).ServeHTTP)
			r.Patch("/servers/{id}", toggle.New(logger, directory).ServeHTTP)
			r.Post("/grant", grant.New(logger, ledger).ServeHTTP)
			r.Get("/stats", stats.New(logger, ledger, statsMonitor(monitor)).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func statsMonitor(m *mtg.Monitor) stats.ProxyMonitor {
	if m == nil {
		return nil
	}
	return m
}
