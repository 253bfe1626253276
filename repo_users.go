package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the identity store. Every method that consumes a single-use
// token runs as one conditional UPDATE, so two requests racing on the same
// token see exactly one success.
type Users interface {
	repository.Repository[*User]

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	ConsumeVerificationToken(ctx context.Context, token string) (*User, error)
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error)
	SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error
	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error

	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateName(ctx context.Context, id uuid.UUID, name string) (*User, error)
	ChangeEmail(ctx context.Context, id uuid.UUID, name string, change EmailChange) (*User, error)
	AdminUpdate(ctx context.Context, id uuid.UUID, update AdminUserUpdate) (*User, error)
	SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error)
	ToggleActive(ctx context.Context, id uuid.UUID) (*User, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// AdminUserUpdate carries the optional fields an administrator may edit.
// Nil fields are left untouched.
type AdminUserUpdate struct {
	Name     *string
	Email    *string
	Role     *Role
	IsActive *bool
}

// IsEmpty reports whether the update changes nothing.
func (u AdminUserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.Role == nil && u.IsActive == nil
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersClock injects the clock used for updated_at (useful for tests).
func WithUsersClock(clock func() time.Time) UsersOption {
	return func(u *users) {
		if clock != nil {
			u.now = clock
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) timestamp() time.Time {
	return a.now().UTC()
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	record, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return record, nil
}

func (a *users) ConsumeVerificationToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, tokenNotFound()
	}

	record := &User{}
	err := a.db.NewUpdate().
		Model(record).
		Set("is_verified = ?", true).
		Set("verification_token = NULL").
		Set("updated_at = ?", a.timestamp()).
		Where("verification_token = ?", token).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, tokenNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (a *users) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*User, error) {
	if token == "" {
		return nil, tokenNotFound()
	}

	record := &User{}
	err := a.db.NewUpdate().
		Model(record).
		Set("password_hash = ?", passwordHash).
		Set("reset_token = NULL").
		Set("reset_token_expiry = NULL").
		Set("updated_at = ?", a.timestamp()).
		Where("reset_token = ?", token).
		Where("reset_token_expiry > ?", now.UTC()).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, tokenNotFound()
		}
		return nil, err
	}
	return record, nil
}

func (a *users) SetVerificationToken(ctx context.Context, id uuid.UUID, token string) error {
	return a.exec(ctx, id, a.db.NewUpdate().
		Model((*User)(nil)).
		Set("verification_token = ?", token).
		Set("updated_at = ?", a.timestamp()))
}

func (a *users) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	return a.exec(ctx, id, a.db.NewUpdate().
		Model((*User)(nil)).
		Set("reset_token = ?", token).
		Set("reset_token_expiry = ?", expiry.UTC()).
		Set("updated_at = ?", a.timestamp()))
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.exec(ctx, id, a.db.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", a.timestamp()))
}

func (a *users) UpdateName(ctx context.Context, id uuid.UUID, name string) (*User, error) {
	return a.returning(ctx, id, a.db.NewUpdate().
		Set("name = ?", name).
		Set("updated_at = ?", a.timestamp()))
}

// ChangeEmail applies the email change transition in a single statement:
// the new address, an unverified state and a fresh verification token.
func (a *users) ChangeEmail(ctx context.Context, id uuid.UUID, name string, change EmailChange) (*User, error) {
	q := a.db.NewUpdate().
		Set("email = ?", change.Email).
		Set("is_verified = ?", false).
		Set("verification_token = ?", change.VerificationToken).
		Set("updated_at = ?", a.timestamp())
	if name != "" {
		q = q.Set("name = ?", name)
	}
	return a.returning(ctx, id, q)
}

func (a *users) AdminUpdate(ctx context.Context, id uuid.UUID, update AdminUserUpdate) (*User, error) {
	if update.IsEmpty() {
		return a.fetch(ctx, id)
	}

	q := a.db.NewUpdate().Set("updated_at = ?", a.timestamp())
	if update.Name != nil {
		q = q.Set("name = ?", *update.Name)
	}
	if update.Email != nil {
		q = q.Set("email = ?", *update.Email)
	}
	if update.Role != nil {
		q = q.Set("role = ?", *update.Role)
	}
	if update.IsActive != nil {
		q = q.Set("is_active = ?", *update.IsActive)
	}
	return a.returning(ctx, id, q)
}

func (a *users) SetRole(ctx context.Context, id uuid.UUID, role Role) (*User, error) {
	return a.returning(ctx, id, a.db.NewUpdate().
		Set("role = ?", role).
		Set("updated_at = ?", a.timestamp()))
}

func (a *users) ToggleActive(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.returning(ctx, id, a.db.NewUpdate().
		Set("is_active = NOT is_active").
		Set("updated_at = ?", a.timestamp()))
}

func (a *users) Remove(ctx context.Context, id uuid.UUID) error {
	res, err := a.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, id)
}

func (a *users) fetch(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := a.GetByID(ctx, id.String())
	if err != nil {
		if isRecordNotFound(err) {
			return nil, userNotFound(id)
		}
		return nil, err
	}
	return record, nil
}

func (a *users) exec(ctx context.Context, id uuid.UUID, q *bun.UpdateQuery) error {
	res, err := q.Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	return requireAffected(res, id)
}

func (a *users) returning(ctx context.Context, id uuid.UUID, q *bun.UpdateQuery) (*User, error) {
	record := &User{}
	err := q.Model(record).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, userNotFound(id)
		}
		return nil, mapWriteError(err)
	}
	return record, nil
}

func requireAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return userNotFound(id)
	}
	return nil
}

func userNotFound(id uuid.UUID) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"id": id.String(),
		})
}

func tokenNotFound() error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"lookup": "token",
		})
}

func isRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) || goerrors.IsNotFound(err)
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return ErrDuplicateEmail
	}
	msg := strings.ToLower(err.Error())
	if (strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")) &&
		strings.Contains(msg, "email") {
		return ErrDuplicateEmail
	}
	return err
}
