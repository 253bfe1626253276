package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const commandTimeout = 10 * time.Second

// Dependencies bundles the collaborators shared by the command handlers.
// Everything is constructed once at process start and injected.
type Dependencies struct {
	Repo     RepositoryManager
	Hasher   *PasswordHasher
	Tokens   *TokenService
	OneTime  *OneTimeTokens
	Notifier Notifier
	Activity ActivitySink
	Logger   Logger
	// DeterministicIDs derives user ids from the registration email.
	DeterministicIDs bool
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Hasher == nil {
		d.Hasher = NewPasswordHasher()
	}
	if d.OneTime == nil {
		d.OneTime = NewOneTimeTokens()
	}
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	d.Activity = normalizeActivitySink(d.Activity)
	d.Logger = resolveLogger(d.Logger)
	return d
}

type noopNotifier struct{}

func (noopNotifier) SendVerification(context.Context, Recipient, string) error  { return nil }
func (noopNotifier) SendPasswordReset(context.Context, Recipient, string) error { return nil }

// runCommand checks for cancellation, applies the command timeout and makes
// sure every failure leaving a handler is a rich error.
func runCommand(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+name,
		)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return Internal(err, name+" failed")
	}
	return nil
}

// loadUser fetches a user by id, mapping misses and malformed ids to ErrNotFound.
func loadUser(ctx context.Context, users Users, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	user, err := users.GetByID(ctx, id)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, Internal(err, "failed to load user")
	}
	return user, nil
}

// ensureEmailAvailable fails with ErrDuplicateEmail when email belongs to an
// identity other than owner.
func ensureEmailAvailable(ctx context.Context, users Users, email string, owner uuid.UUID) error {
	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		if isRecordNotFound(err) {
			return nil
		}
		return Internal(err, "failed to check email")
	}
	if existing.ID != owner {
		return ErrDuplicateEmail
	}
	return nil
}

func notify(ctx context.Context, logger Logger, kind string, send func(ctx context.Context) error) {
	if err := send(ctx); err != nil {
		logger.Error("failed to send %s notification: %v", kind, err)
	}
}
