package identity

import (
	"context"
)

type RefreshSessionMessage struct {
	RefreshToken string `json:"refreshToken"`
	OnResponse   func(resp *LoginResponse)
}

func (e RefreshSessionMessage) Type() string { return "user.session.refresh" }

// RefreshSessionHandler exchanges a valid refresh token for a new token
// pair. Like login it re-reads the identity and refuses deactivated ones.
type RefreshSessionHandler struct {
	deps Dependencies
}

func NewRefreshSessionHandler(deps Dependencies) *RefreshSessionHandler {
	return &RefreshSessionHandler{deps: deps.withDefaults()}
}

func (h *RefreshSessionHandler) Execute(ctx context.Context, event RefreshSessionMessage) error {
	return runCommand(ctx, "session refresh", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *RefreshSessionHandler) execute(ctx context.Context, event RefreshSessionMessage) error {
	claims, err := h.deps.Tokens.VerifyRefresh(event.RefreshToken)
	if err != nil {
		h.deps.Logger.Debug("refresh token rejected: %s", KindOf(err))
		return ErrInvalidSession
	}

	user, err := loadUser(ctx, h.deps.Repo.Users(), claims.UserID)
	if err != nil {
		if err == ErrNotFound {
			return ErrInvalidSession
		}
		return err
	}

	if !user.IsActive {
		return ErrAccountDeactivated
	}

	tokens, err := h.deps.Tokens.IssuePair(user.SessionSubject())
	if err != nil {
		return err
	}

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventSessionRefreshed,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(&LoginResponse{User: user, Tokens: tokens})
	}

	return nil
}
