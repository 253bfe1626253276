package identity

import "context"

// Guard checks that an authenticated identity holds one of a fixed set of roles.
type Guard struct {
	roles RoleSet
}

// NewGuard creates a guard for the given roles.
func NewGuard(roles ...Role) Guard {
	return Guard{roles: NewRoleSet(roles...)}
}

// AdminOnly is the guard used by administrative operations.
var AdminOnly = NewGuard(RoleAdmin)

// Check returns ErrUnauthenticated when auth is missing and ErrForbidden
// when its role is not allowed.
func (g Guard) Check(auth *AuthenticatedContext) error {
	if auth == nil {
		return ErrUnauthenticated
	}
	if !g.roles.Contains(auth.Role) {
		return ErrForbidden
	}
	return nil
}

// CheckContext runs Check against the identity stored in ctx.
func (g Guard) CheckContext(ctx context.Context) error {
	auth, _ := FromContext(ctx)
	return g.Check(auth)
}

// Allows reports whether role passes the guard.
func (g Guard) Allows(role Role) bool {
	return g.roles.Contains(role)
}
