package jwtware

import (
	"context"
	"errors"

	"github.com/goliatone/go-router"
)

const DefaultContextKey = "identity"

var ErrAuthenticatorRequired = errors.New("jwtware: authenticator is required")

// Authenticator turns a raw Authorization header into a principal. The
// identity package's Gate satisfies it for *AuthenticatedContext.
type Authenticator[T any] interface {
	Authenticate(header string) (T, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc[T any] func(header string) (T, error)

func (f AuthenticatorFunc[T]) Authenticate(header string) (T, error) {
	return f(header)
}

// ValidationListener is invoked after a principal was resolved and before
// the next handler runs.
type ValidationListener[T any] func(ctx router.Context, principal T) error

type Config[T any] struct {
	// Filter skips the middleware when it returns true.
	Filter        func(router.Context) bool
	Authenticator Authenticator[T]
	// ContextKey is the Locals key the principal is stored under.
	ContextKey   string
	ErrorHandler router.ErrorHandler

	// ContextEnricher propagates the principal to the request's standard context.
	ContextEnricher func(ctx context.Context, principal T) context.Context

	ValidationListeners []ValidationListener[T]
}

func (cfg Config[T]) withDefaults() Config[T] {
	if cfg.Authenticator == nil {
		panic(ErrAuthenticatorRequired)
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return ctx.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}
	return cfg
}

// New returns a middleware that authenticates every request it wraps.
func New[T any](config Config[T]) router.MiddlewareFunc {
	cfg := config.withDefaults()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			principal, err := cfg.Authenticator.Authenticate(ctx.GetString(router.HeaderAuthorization, ""))
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			for _, listener := range cfg.ValidationListeners {
				if listener == nil {
					continue
				}
				if err := listener(ctx, principal); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			ctx.Locals(cfg.ContextKey, principal)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), principal))
			}

			return next(ctx)
		}
	}
}

// FromLocals returns the principal stored by New under key.
func FromLocals[T any](ctx router.Context, key string) (T, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	principal, ok := ctx.Locals(key).(T)
	return principal, ok
}
