package identity

import (
	"context"
	"errors"
	"runtime"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher hashes and verifies passwords with bcrypt. Work runs on a
// bounded pool so a burst of logins can not take every CPU.
type PasswordHasher struct {
	cost int
	pool *semaphore.Weighted
}

// HasherOption customizes a PasswordHasher.
type HasherOption func(*PasswordHasher)

// WithHashCost sets the bcrypt cost. Values outside bcrypt's range are ignored.
func WithHashCost(cost int) HasherOption {
	return func(h *PasswordHasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// WithHashWorkers sets how many hashes may run at the same time.
func WithHashWorkers(n int) HasherOption {
	return func(h *PasswordHasher) {
		if n > 0 {
			h.pool = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithHashPool makes the hasher draw worker slots from pool, letting several
// hashers share one bound.
func WithHashPool(pool *semaphore.Weighted) HasherOption {
	return func(h *PasswordHasher) {
		if pool != nil {
			h.pool = pool
		}
	}
}

// NewPasswordHasher creates a hasher with the build's default cost and one
// worker slot per available CPU.
func NewPasswordHasher(opts ...HasherOption) *PasswordHasher {
	h := &PasswordHasher{
		cost: passwordHashCost(),
		pool: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Cost returns the configured bcrypt cost
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash for plaintext.
func (h *PasswordHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}

	if err := h.pool.Acquire(ctx, 1); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "password hashing cancelled")
	}
	defer h.pool.Release(1)

	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", goerrors.Wrap(err, goerrors.CategoryValidation, "password is too long").
				WithTextCode(string(KindValidation)).
				WithCode(goerrors.CodeBadRequest)
		}
		return "", Internal(err, "failed to hash password")
	}
	return string(out), nil
}

// Verify reports whether plaintext matches hash. A mismatch or a malformed
// hash is (false, nil). An error means no comparison took place, e.g. the
// context ended while waiting for a worker slot.
func (h *PasswordHasher) Verify(ctx context.Context, plaintext, hash string) (bool, error) {
	if hash == "" {
		return false, nil
	}

	if err := h.pool.Acquire(ctx, 1); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryOperation, "password verification cancelled")
	}
	defer h.pool.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil, nil
}

var defaultHasher = NewPasswordHasher()

// HashPassword will generate a password hash using the default hasher
func HashPassword(password string) (string, error) {
	return defaultHasher.Hash(context.Background(), password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	ok, err := defaultHasher.Verify(context.Background(), password, hash)
	if err != nil {
		return Internal(err, "failed to verify password")
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}
