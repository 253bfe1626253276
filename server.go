package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-router"
)

// ServerOptions configures NewServer.
type ServerOptions struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
	Logger          Logger
}

// NewServer builds the HTTP server serving the controller under /api.
// The rate limiter applies per client IP to the /api prefix only.
func NewServer(ctrl *Controller, opts ServerOptions) router.Server[*fiber.App] {
	logger := resolveLogger(opts.Logger)

	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app := router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "identity",
			DisableStartupMessage: true,
			ErrorHandler:          NewErrorHandler(logger),
		}))

		app.Use(recover.New())

		if opts.RateLimitMax > 0 {
			app.Use("/api", limiter.New(limiter.Config{
				Max:        opts.RateLimitMax,
				Expiration: opts.RateLimitWindow,
				LimitReached: func(c *fiber.Ctx) error {
					return fiber.NewError(fiber.StatusTooManyRequests,
						"Too many requests from this IP, please try again later.")
				},
			}))
		}

		return app
	})

	r := srv.Router()

	r.Get("/health", func(c router.Context) error {
		return respond(c, http.StatusOK, "ok", nil)
	}).SetName("health")

	RegisterRoutes(r.Group("/api"), ctrl)

	return srv
}

// ServerOptionsFromConfig derives ServerOptions from cfg.
func ServerOptionsFromConfig(cfg *Config, logger Logger) ServerOptions {
	return ServerOptions{
		RateLimitMax:    cfg.RateLimit.MaxRequests,
		RateLimitWindow: cfg.RateLimit.Window(),
		Logger:          logger,
	}
}
