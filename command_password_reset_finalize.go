package identity

import (
	"context"
)

type ResetPasswordMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (p ResetPasswordMessage) Type() string { return "user.password_reset.finalize" }

// ResetPasswordHandler sets a new password from a reset token. The token
// is matched, checked for expiry and cleared by one conditional update.
type ResetPasswordHandler struct {
	deps Dependencies
}

func NewResetPasswordHandler(deps Dependencies) *ResetPasswordHandler {
	return &ResetPasswordHandler{deps: deps.withDefaults()}
}

func (h *ResetPasswordHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	return runCommand(ctx, "password reset", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *ResetPasswordHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	if event.Token == "" {
		return ErrInvalidOrExpiredToken
	}

	hash, err := h.deps.Hasher.Hash(ctx, event.Password)
	if err != nil {
		return err
	}

	user, err := h.deps.Repo.Users().ConsumeResetToken(ctx, event.Token, hash, h.deps.OneTime.Now())
	if err != nil {
		if isRecordNotFound(err) {
			return ErrInvalidOrExpiredToken
		}
		return Internal(err, "failed to reset password")
	}

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	return nil
}
