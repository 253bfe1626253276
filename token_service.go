package identity

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultAccessTTL is the access token lifetime when none is configured.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the refresh token lifetime when none is configured.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig holds the signing material for session tokens.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type signingKey struct {
	kind    TokenKind
	secret  []byte
	ttl     time.Duration
	keyfunc jwt.Keyfunc
}

// TokenService issues and verifies stateless HS256 session tokens. Access
// and refresh tokens are signed with different secrets and carry the key
// kind in the kid header, so a token can only resolve the key it was
// signed with.
type TokenService struct {
	access  signingKey
	refresh signingKey
	issuer  string
	now     func() time.Time
	logger  Logger
}

// TokenOption customizes the TokenService.
type TokenOption func(*TokenService)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the logger.
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

var errTokenMisconfigured = goerrors.New("session token secrets are misconfigured", goerrors.CategoryInternal).
	WithTextCode(string(KindInternal)).
	WithCode(goerrors.CodeInternal)

// NewTokenService validates cfg and returns a ready service.
func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errTokenMisconfigured.Clone().WithMetadata(map[string]any{
			"reason": "access and refresh secrets are required",
		})
	}

	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errTokenMisconfigured.Clone().WithMetadata(map[string]any{
			"reason": "access and refresh secrets must differ",
		})
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}

	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	ts := &TokenService{
		access:  newSigningKey(TokenKindAccess, cfg.AccessSecret, cfg.AccessTTL),
		refresh: newSigningKey(TokenKindRefresh, cfg.RefreshSecret, cfg.RefreshTTL),
		issuer:  cfg.Issuer,
		now:     time.Now,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

func newSigningKey(kind TokenKind, secret string, ttl time.Duration) signingKey {
	key := []byte(secret)
	given := map[string]keyfunc.GivenKey{
		string(kind): keyfunc.NewGivenCustom(key, keyfunc.GivenKeyOptions{
			Algorithm: jwt.SigningMethodHS256.Alg(),
		}),
	}

	return signingKey{
		kind:    kind,
		secret:  key,
		ttl:     ttl,
		keyfunc: keyfunc.NewGiven(given).Keyfunc,
	}
}

// AccessTTL returns the configured access token lifetime
func (ts *TokenService) AccessTTL() time.Duration {
	return ts.access.ttl
}

// RefreshTTL returns the configured refresh token lifetime
func (ts *TokenService) RefreshTTL() time.Duration {
	return ts.refresh.ttl
}

// IssueAccess signs a short lived access token for subject.
func (ts *TokenService) IssueAccess(subject SessionSubject) (string, error) {
	return ts.issue(ts.access, subject)
}

// IssueRefresh signs a refresh token for subject.
func (ts *TokenService) IssueRefresh(subject SessionSubject) (string, error) {
	return ts.issue(ts.refresh, subject)
}

// IssuePair signs both an access and a refresh token.
func (ts *TokenService) IssuePair(subject SessionSubject) (TokenPair, error) {
	access, err := ts.IssueAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := ts.IssueRefresh(subject)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token.
func (ts *TokenService) VerifyAccess(raw string) (*SessionClaims, error) {
	return ts.verify(ts.access, raw)
}

// VerifyRefresh validates a refresh token.
func (ts *TokenService) VerifyRefresh(raw string) (*SessionClaims, error) {
	return ts.verify(ts.refresh, raw)
}

func (ts *TokenService) issue(key signingKey, subject SessionSubject) (string, error) {
	if subject.UserID == "" || subject.Role.IsZero() {
		return "", Internal(goerrors.New("session subject is incomplete", goerrors.CategoryInternal), "failed to issue session token")
	}

	claims := newSessionClaims(subject, key.kind, ts.issuer, ts.now(), key.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = string(key.kind)

	signed, err := token.SignedString(key.secret)
	if err != nil {
		return "", Internal(err, "failed to sign session token")
	}

	return signed, nil
}

func (ts *TokenService) verify(key signingKey, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, key.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		ts.logger.Debug("%s token rejected: %v", key.kind, err)
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Kind != key.kind {
		ts.logger.Debug("%s token rejected: kind %q", key.kind, claims.Kind)
		return nil, ErrInvalidToken
	}

	return claims, nil
}
