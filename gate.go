package identity

import "strings"

const bearerPrefix = "Bearer "

// AccessVerifier verifies access tokens. TokenService implements it.
type AccessVerifier interface {
	VerifyAccess(raw string) (*SessionClaims, error)
}

// Gate turns an Authorization header into an AuthenticatedContext.
type Gate struct {
	verifier AccessVerifier
	logger   Logger
}

// NewGate creates a Gate backed by verifier.
func NewGate(verifier AccessVerifier, logger Logger) *Gate {
	return &Gate{
		verifier: verifier,
		logger:   resolveLogger(logger),
	}
}

// Authenticate accepts only the exact shape "Bearer <token>". A missing or
// malformed header yields ErrUnauthenticated, a token that fails
// verification for any reason yields ErrInvalidSession.
func (g *Gate) Authenticate(header string) (*AuthenticatedContext, error) {
	token, ok := ExtractBearerToken(header)
	if !ok {
		return nil, ErrUnauthenticated
	}

	claims, err := g.verifier.VerifyAccess(token)
	if err != nil {
		g.logger.Debug("bearer token rejected: %s", KindOf(err))
		return nil, ErrInvalidSession
	}

	return &AuthenticatedContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// ExtractBearerToken returns the token from an exact "Bearer <token>"
// header value.
func ExtractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}

	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", false
	}

	return token, true
}
