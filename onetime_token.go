package identity

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const (
	// OneTimeTokenBytes is the amount of randomness in a single-use token.
	OneTimeTokenBytes = 32
	// VerificationTokenTTL is used when a verification token is issued with an expiry.
	VerificationTokenTTL = 24 * time.Hour
	// ResetTokenTTL is the lifetime of a password reset token.
	ResetTokenTTL = time.Hour
)

// OneTimeTokens generates unguessable single-use tokens for email
// verification and password reset links.
type OneTimeTokens struct {
	now func() time.Time
}

// OneTimeOption customizes OneTimeTokens.
type OneTimeOption func(*OneTimeTokens)

// WithOneTimeClock injects a custom clock (useful for tests).
func WithOneTimeClock(clock func() time.Time) OneTimeOption {
	return func(o *OneTimeTokens) {
		if clock != nil {
			o.now = clock
		}
	}
}

// NewOneTimeTokens creates a token issuer.
func NewOneTimeTokens(opts ...OneTimeOption) *OneTimeTokens {
	o := &OneTimeTokens{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Generate returns 32 random bytes as a 64 character hex string.
func (o *OneTimeTokens) Generate() (string, error) {
	buf := make([]byte, OneTimeTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", Internal(err, "failed to generate token")
	}
	return hex.EncodeToString(buf), nil
}

// GenerateWithExpiry returns a token and the absolute time it stops being valid.
func (o *OneTimeTokens) GenerateWithExpiry(validity time.Duration) (string, time.Time, error) {
	token, err := o.Generate()
	if err != nil {
		return "", time.Time{}, err
	}
	return token, o.now().UTC().Add(validity), nil
}

// VerificationToken issues an email verification token. Without expiry the
// returned time is zero.
func (o *OneTimeTokens) VerificationToken(withExpiry bool) (string, time.Time, error) {
	if !withExpiry {
		token, err := o.Generate()
		return token, time.Time{}, err
	}
	return o.GenerateWithExpiry(VerificationTokenTTL)
}

// ResetToken issues a password reset token valid for ResetTokenTTL.
func (o *OneTimeTokens) ResetToken() (string, time.Time, error) {
	return o.GenerateWithExpiry(ResetTokenTTL)
}

// Now returns the issuer's current time in UTC.
func (o *OneTimeTokens) Now() time.Time {
	return o.now().UTC()
}
