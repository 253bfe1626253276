package identity

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	deps Dependencies
}

func NewRegisterUserHandler(deps Dependencies) *RegisterUserHandler {
	return &RegisterUserHandler{deps: deps.withDefaults()}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	return runCommand(ctx, "user registration", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	name := strings.TrimSpace(event.Name)
	if name == "" {
		return ErrBlankName
	}

	hash, err := h.deps.Hasher.Hash(ctx, event.Password)
	if err != nil {
		return err
	}

	token, _, err := h.deps.OneTime.VerificationToken(false)
	if err != nil {
		return err
	}

	user := &User{
		Name:              name,
		Email:             event.Email,
		PasswordHash:      hash,
		Role:              RoleUser,
		IsVerified:        false,
		IsActive:          true,
		VerificationToken: token,
	}

	if h.deps.DeterministicIDs {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			user.ID = id
		}
	}

	err = h.deps.Repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.deps.Repo.Users().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return ErrDuplicateEmail
		} else if !isRecordNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not check email")
		}

		created, err := h.deps.Repo.Users().RegisterTx(ctx, tx, user)
		if err != nil {
			if err == ErrDuplicateEmail {
				return err
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}
		user = created
		return nil
	})
	if err != nil {
		return err
	}

	notify(ctx, h.deps.Logger, "verification", func(ctx context.Context) error {
		return h.deps.Notifier.SendVerification(ctx, user.Recipient(), token)
	})

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
