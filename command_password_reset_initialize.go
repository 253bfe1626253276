package identity

import (
	"context"
)

type ForgotPasswordMessage struct {
	Email string `json:"email"`
}

func (p ForgotPasswordMessage) Type() string { return "user.password_reset.request" }

// ForgotPasswordHandler issues a reset token. Unknown emails succeed
// silently so the response never reveals whether an account exists.
type ForgotPasswordHandler struct {
	deps Dependencies
}

func NewForgotPasswordHandler(deps Dependencies) *ForgotPasswordHandler {
	return &ForgotPasswordHandler{deps: deps.withDefaults()}
}

func (h *ForgotPasswordHandler) Execute(ctx context.Context, event ForgotPasswordMessage) error {
	return runCommand(ctx, "password reset request", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *ForgotPasswordHandler) execute(ctx context.Context, event ForgotPasswordMessage) error {
	user, err := h.deps.Repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if isRecordNotFound(err) {
			h.deps.Logger.Debug("password reset requested for unknown email")
			return nil
		}
		return Internal(err, "failed to load user")
	}

	token, expiry, err := h.deps.OneTime.ResetToken()
	if err != nil {
		return err
	}

	if err := h.deps.Repo.Users().SetResetToken(ctx, user.ID, token, expiry); err != nil {
		return Internal(err, "failed to store reset token")
	}

	notify(ctx, h.deps.Logger, "password reset", func(ctx context.Context) error {
		return h.deps.Notifier.SendPasswordReset(ctx, user.Recipient(), token)
	})

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSent,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"expires_at": expiry,
		},
	})

	return nil
}
