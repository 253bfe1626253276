package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// SessionSubject is the identity a session token is issued for.
type SessionSubject struct {
	UserID string
	Email  string
	Role   Role
}

// SessionClaims is the signed payload of access and refresh tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
	Kind   TokenKind `json:"kind"`
}

// SessionSubject returns the identity the claims were issued for.
func (c *SessionClaims) SessionSubject() SessionSubject {
	return SessionSubject{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   c.Role,
	}
}

// IssuedAtTime returns iat, or zero when absent.
func (c *SessionClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp, or zero when absent.
func (c *SessionClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func newSessionClaims(subject SessionSubject, kind TokenKind, issuer string, now time.Time, ttl time.Duration) *SessionClaims {
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: subject.UserID,
		Email:  subject.Email,
		Role:   subject.Role,
		Kind:   kind,
	}
}
