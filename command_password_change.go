package identity

import (
	"context"
)

type ChangePasswordMessage struct {
	UserID          string `json:"-"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (p ChangePasswordMessage) Type() string { return "user.password.change" }

type ChangePasswordHandler struct {
	deps Dependencies
}

func NewChangePasswordHandler(deps Dependencies) *ChangePasswordHandler {
	return &ChangePasswordHandler{deps: deps.withDefaults()}
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	return runCommand(ctx, "password change", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	user, err := loadUser(ctx, h.deps.Repo.Users(), event.UserID)
	if err != nil {
		return err
	}

	ok, err := h.deps.Hasher.Verify(ctx, event.CurrentPassword, user.PasswordHash)
	if err != nil {
		return Internal(err, "failed to verify password")
	}
	if !ok {
		return ErrIncorrectCurrentPassword
	}

	hash, err := h.deps.Hasher.Hash(ctx, event.NewPassword)
	if err != nil {
		return err
	}

	if err := h.deps.Repo.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
		if isRecordNotFound(err) {
			return ErrNotFound
		}
		return Internal(err, "failed to update password")
	}

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	return nil
}
