// Package router registers the HTTP routes and their middleware chains.
package router

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/account-auth/internal/config"
	"github.com/iliyamo/account-auth/internal/handler"
	"github.com/iliyamo/account-auth/internal/middleware"
	"github.com/iliyamo/account-auth/internal/model"
	"github.com/iliyamo/account-auth/internal/service"
	"github.com/iliyamo/account-auth/internal/utils"
)

// Deps are the collaborators the routes are built from.
type Deps struct {
	Auth            *handler.AuthHandler
	Issuer          *utils.ClaimsIssuer
	Tracker         service.VersionTracker
	Cookie          middleware.CookieOptions
	Redis           *redis.Client
	DB              handler.Pinger
	MinResponseTime time.Duration
	GlobalLimit     config.RateLimitConfig
	AuthLimit       config.RateLimitConfig
	Log             zerolog.Logger
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.Recover())
	e.Use(middleware.NewTokenBucket(d.GlobalLimit, d.Redis, d.Log))

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB, func(ctx context.Context) error {
		return d.Redis.Ping(ctx).Err()
	}))
}

// RegisterAuth registers the account workflows under /api/v1/auth and the
// session protected profile routes under /api/v1/profile. Workflow routes
// are padded to MinResponseTime so outcomes cannot be told apart by
// latency.
func RegisterAuth(e *echo.Echo, d Deps) {
	a := d.Auth
	session := middleware.SessionAuth(d.Issuer, d.Tracker, d.Cookie, d.Log)
	padded := middleware.MinimumDuration(d.MinResponseTime)

	g := e.Group("/api/v1/auth", middleware.NewTokenBucket(d.AuthLimit, d.Redis, d.Log))
	g.POST("/register", a.Register, padded)
	g.POST("/login", a.Login, padded)
	g.POST("/confirm-email", a.ConfirmEmail, padded)
	g.POST("/forgot-password", a.ForgotPassword, padded)
	g.POST("/forgot-password-confirmation", a.ForgotPasswordConfirmation, padded)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, session)

	p := e.Group("/api/v1/profile", session, middleware.RequireRole(model.RoleUser))
	p.GET("/current", a.CurrentProfile)
}
