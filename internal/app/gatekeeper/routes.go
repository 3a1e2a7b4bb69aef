// Package gatekeeper предоставляет маршруты HTTP-сервиса движка доступа.
package gatekeeper

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	accesshandler "github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/access"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/deleteaccount"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/health"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/login"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/register"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/updateemail"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/handlers/webhook"
	"github.com/magabrotheeeer/access-gatekeeper/internal/http/mware"
	"github.com/magabrotheeeer/access-gatekeeper/internal/lib/jwt"
	"github.com/magabrotheeeer/access-gatekeeper/internal/metrics"
	accessservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/access"
	auditservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/audit"
	lifecycleservice "github.com/magabrotheeeer/access-gatekeeper/internal/services/lifecycle"
	"github.com/magabrotheeeer/access-gatekeeper/internal/services/webhookgate"
	"github.com/magabrotheeeer/access-gatekeeper/internal/storage"
)

// RouteDeps — зависимости маршрутов приложения.
type RouteDeps struct {
	Storage   *storage.Storage
	Access    *accessservice.Service
	Lifecycle *lifecycleservice.Service
	Gate      *webhookgate.Gate
	Auditor   *auditservice.Recorder
	Tokens    jwt.Maker
	Registry  *prometheus.Registry
	Secret    string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps *RouteDeps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limiter := rate.NewLimiter(10, 30)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, deps.Lifecycle, deps.Tokens).ServeHTTP)
		r.Post("/login", login.New(logger, deps.Storage, deps.Tokens).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(mware.JWTMiddleware(deps.Tokens, logger))
			r.Use(mware.RateLimitMiddleware(limiter, logger))
			r.Get("/access", accesshandler.New(logger, deps.Access).ServeHTTP)
			r.Put("/account/email", updateemail.New(logger, deps.Storage).ServeHTTP)
			r.Delete("/account", deleteaccount.New(logger, deps.Lifecycle).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации, подпись HMAC)
		r.Post("/subscriptions/webhook", webhook.New(logger, deps.Gate, deps.Lifecycle, deps.Auditor, deps.Secret).ServeHTTP)
	})

	r.Get("/health", health.New(logger, deps.Storage).ServeHTTP)
	r.Handle("/metrics", metrics.Handler(deps.Registry))
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
