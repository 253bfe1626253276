package identity

import (
	"context"
	"strings"
)

type GetProfileMessage struct {
	UserID     string
	OnResponse func(user *User)
}

func (m GetProfileMessage) Type() string { return "user.profile.get" }

type GetProfileHandler struct {
	deps Dependencies
}

func NewGetProfileHandler(deps Dependencies) *GetProfileHandler {
	return &GetProfileHandler{deps: deps.withDefaults()}
}

func (h *GetProfileHandler) Execute(ctx context.Context, event GetProfileMessage) error {
	return runCommand(ctx, "profile lookup", func(ctx context.Context) error {
		user, err := loadUser(ctx, h.deps.Repo.Users(), event.UserID)
		if err != nil {
			return err
		}
		if event.OnResponse != nil {
			event.OnResponse(user)
		}
		return nil
	})
}

type UpdateProfileMessage struct {
	UserID     string `json:"-"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	OnResponse func(user *User)
}

func (m UpdateProfileMessage) Type() string { return "user.profile.update" }

// UpdateProfileHandler edits the caller's own profile. A new email runs the
// email change transition: the identity becomes unverified and a fresh
// verification token is sent to the new address.
type UpdateProfileHandler struct {
	deps Dependencies
}

func NewUpdateProfileHandler(deps Dependencies) *UpdateProfileHandler {
	return &UpdateProfileHandler{deps: deps.withDefaults()}
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	return runCommand(ctx, "profile update", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	users := h.deps.Repo.Users()

	user, err := loadUser(ctx, users, event.UserID)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(event.Name)

	switch {
	case RequiresEmailChange(user, event.Email):
		user, err = h.changeEmail(ctx, user, name, event.Email)
	case name != "" && name != user.Name:
		user, err = users.UpdateName(ctx, user.ID, name)
	}
	if err != nil {
		return mapUserWriteError(err, "failed to update profile")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *UpdateProfileHandler) changeEmail(ctx context.Context, user *User, name, email string) (*User, error) {
	if _, err := NextVerificationState(user.VerificationState(), TransitionEmailChange); err != nil {
		return nil, err
	}

	if err := ensureEmailAvailable(ctx, h.deps.Repo.Users(), email, user.ID); err != nil {
		return nil, err
	}

	token, _, err := h.deps.OneTime.VerificationToken(false)
	if err != nil {
		return nil, err
	}

	previous := user.Email
	updated, err := h.deps.Repo.Users().ChangeEmail(ctx, user.ID, name, EmailChange{
		Email:             email,
		VerificationToken: token,
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, h.deps.Logger, "verification", func(ctx context.Context) error {
		return h.deps.Notifier.SendVerification(ctx, updated.Recipient(), token)
	})

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventEmailChanged,
		Actor:     userActor(updated.ID.String()),
		UserID:    updated.ID.String(),
		Metadata: map[string]any{
			"previous_email": previous,
			"transition":     string(TransitionEmailChange),
		},
	})

	return updated, nil
}

func mapUserWriteError(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case err == ErrDuplicateEmail, err == ErrNotFound, err == ErrInvalidTransition:
		return err
	case isRecordNotFound(err):
		return ErrNotFound
	}

	if IsKind(err, KindInternal) {
		return Internal(err, message)
	}
	return err
}
