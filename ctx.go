package identity

import "context"

type contextKey struct {
	name string
}

var authContextKey = &contextKey{"identity"}

// AuthenticatedContext is the request scoped identity derived from a valid
// access token.
type AuthenticatedContext struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

// WithContext attaches auth to ctx.
func WithContext(ctx context.Context, auth *AuthenticatedContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// FromContext returns the AuthenticatedContext stored in ctx, if any.
func FromContext(ctx context.Context) (*AuthenticatedContext, bool) {
	if ctx == nil {
		return nil, false
	}
	auth, ok := ctx.Value(authContextKey).(*AuthenticatedContext)
	return auth, ok && auth != nil
}
