package identity

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-identity/middleware/jwtware"
)

// LocalsKey is the router Locals key holding the *AuthenticatedContext.
const LocalsKey = "identity"

// APIResponse is the JSON envelope returned by every endpoint.
type APIResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Kind   ErrorKind         `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respond(c router.Context, status int, message string, data any) error {
	return c.JSON(status, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindInvalidCredentials,
		KindAccountDeactivated,
		KindUnauthenticated,
		KindInvalidToken,
		KindExpiredToken:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindInvalidOrExpiredToken, KindIncorrectCurrentPassword, KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindDuplicateEmail:
		return fiber.StatusConflict
	case KindRateLimited:
		return fiber.StatusTooManyRequests
	}
	return fiber.StatusInternalServerError
}

// NewErrorHandler returns the fiber error handler every router handler error
// ends up in. Taxonomy errors are surfaced verbatim, anything else becomes a
// generic internal error and is logged with full detail.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = resolveLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(APIResponse{
				Message: fiberErr.Message,
				Error:   &APIError{Kind: kindForStatus(fiberErr.Code)},
			})
		}

		var validationErrs validation.Errors
		if errors.As(err, &validationErrs) {
			return c.Status(fiber.StatusBadRequest).JSON(APIResponse{
				Message: "validation failed",
				Error: &APIError{
					Kind:   KindValidation,
					Fields: FormatValidationErrorToMap(validationErrs),
				},
			})
		}

		kind := KindOf(err)
		status := StatusFor(kind)

		if status >= fiber.StatusInternalServerError {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				logger.Error("request %s %s failed: %v category=%s details=%s",
					c.Method(), c.Path(), err, richErr.Category, print.MaybePrettyJSON(richErr.Metadata))
			} else {
				logger.Error("request %s %s failed: %v", c.Method(), c.Path(), err)
			}

			return c.Status(status).JSON(APIResponse{
				Message: internalMessage,
				Error:   &APIError{Kind: KindInternal},
			})
		}

		message := err.Error()
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			message = richErr.Message
		}

		return c.Status(status).JSON(APIResponse{
			Message: message,
			Error:   &APIError{Kind: kind},
		})
	}
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case fiber.StatusUnauthorized:
		return KindUnauthenticated
	case fiber.StatusForbidden:
		return KindForbidden
	case fiber.StatusNotFound:
		return KindNotFound
	case fiber.StatusTooManyRequests:
		return KindRateLimited
	}
	if status < fiber.StatusInternalServerError {
		return KindValidation
	}
	return KindInternal
}

// FormatValidationErrorToMap flattens ozzo validation errors into field -> message.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		if err != nil {
			out["_"] = err.Error()
		}
		return out
	}

	for field, fieldErr := range errs {
		if fieldErr != nil {
			out[field] = fieldErr.Error()
		}
	}
	return out
}

// Authenticated returns the middleware that runs the Gate on each request
// and stores the AuthenticatedContext in Locals and the request context.
func Authenticated(gate *Gate) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config[*AuthenticatedContext]{
		Authenticator:   gate,
		ContextKey:      LocalsKey,
		ContextEnricher: WithContext,
		ErrorHandler: func(c router.Context, err error) error {
			return err
		},
	})
}

// RequireRoles returns a middleware enforcing guard against the
// authenticated identity. It must be wrapped by Authenticated.
func RequireRoles(guard Guard) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			auth, _ := jwtware.FromLocals[*AuthenticatedContext](c, LocalsKey)
			if err := guard.Check(auth); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// Chain composes middlewares so the first one listed runs first.
func Chain(mws ...router.MiddlewareFunc) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// CurrentIdentity returns the authenticated identity of the request.
func CurrentIdentity(c router.Context) (*AuthenticatedContext, error) {
	auth, ok := jwtware.FromLocals[*AuthenticatedContext](c, LocalsKey)
	if !ok || auth == nil {
		return nil, ErrUnauthenticated
	}
	return auth, nil
}
