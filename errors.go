package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the stable, caller facing classification of a failure.
type ErrorKind string

const (
	KindUnknown                  ErrorKind = ""
	KindInvalidCredentials       ErrorKind = "INVALID_CREDENTIALS"
	KindAccountDeactivated       ErrorKind = "ACCOUNT_DEACTIVATED"
	KindUnauthenticated          ErrorKind = "UNAUTHENTICATED"
	KindForbidden                ErrorKind = "FORBIDDEN"
	KindInvalidOrExpiredToken    ErrorKind = "INVALID_OR_EXPIRED_TOKEN"
	KindDuplicateEmail           ErrorKind = "DUPLICATE_EMAIL"
	KindIncorrectCurrentPassword ErrorKind = "INCORRECT_CURRENT_PASSWORD"
	KindNotFound                 ErrorKind = "NOT_FOUND"
	KindInvalidToken             ErrorKind = "INVALID_TOKEN"
	KindExpiredToken             ErrorKind = "EXPIRED_TOKEN"
	KindValidation               ErrorKind = "VALIDATION_FAILED"
	KindRateLimited              ErrorKind = "RATE_LIMITED"
	KindInternal                 ErrorKind = "INTERNAL_ERROR"
)

// ErrInvalidCredentials is returned for an unknown email and for a wrong
// password alike.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(string(KindInvalidCredentials)).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDeactivated is returned when a deactivated identity tries to log in.
var ErrAccountDeactivated = goerrors.New("account is deactivated", goerrors.CategoryAuth).
	WithTextCode(string(KindAccountDeactivated)).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated is returned when no usable bearer token was presented.
var ErrUnauthenticated = goerrors.New("no token provided", goerrors.CategoryAuth).
	WithTextCode(string(KindUnauthenticated)).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidSession is the Unauthenticated outcome for a bearer token that
// failed verification. The cause is never exposed.
var ErrInvalidSession = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(string(KindUnauthenticated)).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when the authenticated role is not allowed.
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode(string(KindForbidden)).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidOrExpiredToken covers single-use tokens that are unknown,
// already consumed, or past their expiry.
var ErrInvalidOrExpiredToken = goerrors.New("invalid or expired token", goerrors.CategoryBadInput).
	WithTextCode(string(KindInvalidOrExpiredToken)).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateEmail is returned when an email is already owned by another identity.
var ErrDuplicateEmail = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(string(KindDuplicateEmail)).
	WithCode(goerrors.CodeConflict)

// ErrIncorrectCurrentPassword is returned by the change password path.
var ErrIncorrectCurrentPassword = goerrors.New("current password is incorrect", goerrors.CategoryBadInput).
	WithTextCode(string(KindIncorrectCurrentPassword)).
	WithCode(goerrors.CodeBadRequest)

// ErrNotFound is returned when an identity lookup by id misses.
var ErrNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(string(KindNotFound)).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidToken is returned by session token verification for tampered,
// malformed, or wrong-kind tokens.
var ErrInvalidToken = goerrors.New("invalid session token", goerrors.CategoryAuth).
	WithTextCode(string(KindInvalidToken)).
	WithCode(goerrors.CodeUnauthorized)

// ErrExpiredToken is returned by session token verification once exp has passed.
var ErrExpiredToken = goerrors.New("session token expired", goerrors.CategoryAuth).
	WithTextCode(string(KindExpiredToken)).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmptyPassword is returned when hashing an empty string.
var ErrEmptyPassword = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(string(KindValidation)).
	WithCode(goerrors.CodeBadRequest)

// ErrBlankName is returned when a display name is empty after trimming.
var ErrBlankName = goerrors.New("name can not be blank", goerrors.CategoryValidation).
	WithTextCode(string(KindValidation)).
	WithCode(goerrors.CodeBadRequest)

const internalMessage = "an unexpected error occurred"

// Internal wraps an unexpected failure. The message is what callers see, the
// source error is kept for server side logging.
func Internal(err error, message string) *goerrors.Error {
	if message == "" {
		message = internalMessage
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(string(KindInternal)).
		WithCode(goerrors.CodeInternal)
}

// KindOf returns the ErrorKind carried by err. Errors that are not part of the
// taxonomy resolve to KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindInternal
	}

	switch ErrorKind(richErr.TextCode) {
	case KindInvalidCredentials,
		KindAccountDeactivated,
		KindUnauthenticated,
		KindForbidden,
		KindInvalidOrExpiredToken,
		KindDuplicateEmail,
		KindIncorrectCurrentPassword,
		KindNotFound,
		KindInvalidToken,
		KindExpiredToken,
		KindRateLimited,
		KindValidation:
		return ErrorKind(richErr.TextCode)
	}

	if richErr.Category == goerrors.CategoryValidation || richErr.Category == goerrors.CategoryBadInput {
		return KindValidation
	}

	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
