package identity

import (
	"context"
)

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(user *User)
}

func (e VerifyEmailMessage) Type() string { return "user.email.verify" }

// VerifyEmailHandler consumes a verification token. The token is cleared in
// the same statement that marks the identity verified.
type VerifyEmailHandler struct {
	deps Dependencies
}

func NewVerifyEmailHandler(deps Dependencies) *VerifyEmailHandler {
	return &VerifyEmailHandler{deps: deps.withDefaults()}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	return runCommand(ctx, "email verification", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	user, err := h.deps.Repo.Users().ConsumeVerificationToken(ctx, event.Token)
	if err != nil {
		if isRecordNotFound(err) {
			return ErrInvalidOrExpiredToken
		}
		return Internal(err, "failed to verify email")
	}

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"from":       string(StateUnverified),
			"to":         string(StateVerified),
			"transition": string(TransitionVerifyEmail),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
