package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/aifix/chat-auth/docs"
	"github.com/aifix/chat-auth/internal/api/handler"
	"github.com/aifix/chat-auth/internal/api/middleware"
	"github.com/aifix/chat-auth/internal/core/ports"
)

// RouterConfig carries the router's collaborators.
type RouterConfig struct {
	Auth    ports.AuthService
	Admin   ports.UserAdmin
	Cookies handler.CookiePolicy
	// AdminUserIDs are the accounts allowed on /api/admin.
	AdminUserIDs []string
	// Readiness dependencies, by name.
	Dependencies map[string]handler.Pinger
	Logger       zerolog.Logger
	// Registry receives the HTTP metrics. Nil uses the prometheus defaults.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(cfg.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(cfg.Logger))
	e.Use(metricsMiddleware(cfg.Registry))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(cfg.Auth, cfg.Cookies, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Admin, cfg.Logger)
	requireAuth := middleware.Auth(cfg.Auth, nil)

	// --- Auth routes ---
	auth := e.Group("/api/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", authHandler.Me)
	auth.POST("/logout", authHandler.Logout)

	e.PATCH("/api/users/me", authHandler.UpdateProfile, requireAuth)

	// --- Admin routes ---
	admin := e.Group("/api/admin", requireAuth, middleware.AdminOnly(cfg.AdminUserIDs...))
	admin.GET("/users", adminHandler.ListUsers)
	admin.PATCH("/users/:id/status", adminHandler.SetStatus)
	admin.POST("/users/password-reset", adminHandler.ResetPassword)
	admin.DELETE("/users/:id", adminHandler.DeleteUser)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(cfg.Dependencies)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Ops ---
	e.GET("/metrics", metricsHandler(cfg.Registry))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func metricsMiddleware(reg *prometheus.Registry) echo.MiddlewareFunc {
	conf := echoprometheus.MiddlewareConfig{
		Subsystem: "chat_auth",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}
	if reg != nil {
		conf.Registerer = reg
	}
	return echoprometheus.NewMiddlewareWithConfig(conf)
}

func metricsHandler(reg *prometheus.Registry) echo.HandlerFunc {
	if reg == nil {
		return echoprometheus.NewHandler()
	}
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg})
}

// requestLogger emits one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
