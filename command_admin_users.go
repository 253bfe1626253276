package identity

import (
	"context"
	"strings"
)

// AdminUsersHandler serves the administrative operations on identities.
// Every operation runs the AdminOnly guard against the acting identity,
// on top of whatever the transport layer already checked.
type AdminUsersHandler struct {
	deps  Dependencies
	guard Guard
}

func NewAdminUsersHandler(deps Dependencies) *AdminUsersHandler {
	return &AdminUsersHandler{deps: deps.withDefaults(), guard: AdminOnly}
}

type AdminGetUserMessage struct {
	Actor      *AuthenticatedContext
	UserID     string
	OnResponse func(user *User)
}

func (m AdminGetUserMessage) Type() string { return "admin.user.get" }

func (h *AdminUsersHandler) GetUser(ctx context.Context, event AdminGetUserMessage) error {
	return runCommand(ctx, "admin user lookup", func(ctx context.Context) error {
		if err := h.guard.Check(event.Actor); err != nil {
			return err
		}

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

type AdminUpdateUserMessage struct {
	Actor      *AuthenticatedContext
	UserID     string
	Update     AdminUserUpdate
	OnResponse func(user *User)
}

func (m AdminUpdateUserMessage) Type() string { return "admin.user.update" }

// UpdateUser applies an administrative edit. Unlike a self-service profile
// update, an email set here does not reset verification.
func (h *AdminUsersHandler) UpdateUser(ctx context.Context, event AdminUpdateUserMessage) error {
	return runCommand(ctx, "admin user update", func(ctx context.Context) error {
		if err := h.guard.Check(event.Actor); err != nil {
			return err
		}

		users := h.deps.Repo.Users()
		user, err := loadUser(ctx, users, event.UserID)
		if err != nil {
			return err
		}

		update := event.Update
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return ErrBlankName
			}
			update.Name = &name
		}

		if update.Email != nil {
			if *update.Email == user.Email {
				update.Email = nil
			} else if err := ensureEmailAvailable(ctx, users, *update.Email, user.ID); err != nil {
				return err
			}
		}

		if update.Role != nil && update.Role.IsZero() {
			return ErrInvalidRole
		}

		updated, err := users.AdminUpdate(ctx, user.ID, update)
		if err != nil {
			return mapUserWriteError(err, "failed to update user")
		}

		recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
			EventType: ActivityEventUserUpdated,
			Actor:     adminActor(event.Actor),
			UserID:    updated.ID.String(),
		})

		if event.OnResponse != nil {
			event.OnResponse(updated)
		}
		return nil
	})
}

type AdminDeleteUserMessage struct {
	Actor  *AuthenticatedContext
	UserID string
}

func (m AdminDeleteUserMessage) Type() string { return "admin.user.delete" }

func (h *AdminUsersHandler) DeleteUser(ctx context.Context, event AdminDeleteUserMessage) error {
	return runCommand(ctx, "admin user delete", func(ctx context.Context) error {
		if err := h.guard.Check(event.Actor); err != nil {
			return err
		}

		user, err := loadUser(ctx, h.deps.Repo.Users(), event.UserID)
		if err != nil {
			return err
		}

		if err := h.deps.Repo.Users().Remove(ctx, user.ID); err != nil {
			return mapUserWriteError(err, "failed to delete user")
		}

		recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
			EventType: ActivityEventUserDeleted,
			Actor:     adminActor(event.Actor),
			UserID:    user.ID.String(),
		})
		return nil
	})
}

type AdminChangeRoleMessage struct {
	Actor      *AuthenticatedContext
	UserID     string
	Role       Role
	OnResponse func(user *User)
}

func (m AdminChangeRoleMessage) Type() string { return "admin.user.role" }

func (h *AdminUsersHandler) ChangeRole(ctx context.Context, event AdminChangeRoleMessage) error {
	return runCommand(ctx, "admin role change", func(ctx context.Context) error {
		if err := h.guard.Check(event.Actor); err != nil {
			return err
		}

		if event.Role.IsZero() {
			return ErrInvalidRole
		}

		user, err := loadUser(ctx, h.deps.Repo.Users(), event.UserID)
		if err != nil {
			return err
		}

		updated, err := h.deps.Repo.Users().SetRole(ctx, user.ID, event.Role)
		if err != nil {
			return mapUserWriteError(err, "failed to change role")
		}

		recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
			EventType: ActivityEventRoleChanged,
			Actor:     adminActor(event.Actor),
			UserID:    updated.ID.String(),
			Metadata: map[string]any{
				"from": user.Role.String(),
				"to":   updated.Role.String(),
			},
		})

		if event.OnResponse != nil {
			event.OnResponse(updated)
		}
		return nil
	})
}

type AdminToggleStatusMessage struct {
	Actor      *AuthenticatedContext
	UserID     string
	OnResponse func(user *User)
}

func (m AdminToggleStatusMessage) Type() string { return "admin.user.status" }

// ToggleStatus flips is_active in place. Sessions issued earlier stay valid
// until they expire.
func (h *AdminUsersHandler) ToggleStatus(ctx context.Context, event AdminToggleStatusMessage) error {
	return runCommand(ctx, "admin status toggle", func(ctx context.Context) error {
		if err := h.guard.Check(event.Actor); err != nil {
			return err
		}

		user, err := loadUser(ctx, h.deps.Repo.Users(), event.UserID)
		if err != nil {
			return err
		}

		updated, err := h.deps.Repo.Users().ToggleActive(ctx, user.ID)
		if err != nil {
			return mapUserWriteError(err, "failed to change status")
		}

		recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
			EventType: ActivityEventStatusChanged,
			Actor:     adminActor(event.Actor),
			UserID:    updated.ID.String(),
			Metadata: map[string]any{
				"is_active": updated.IsActive,
			},
		})

		if event.OnResponse != nil {
			event.OnResponse(updated)
		}
		return nil
	})
}
