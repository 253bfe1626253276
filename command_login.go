package identity

import (
	"context"
	"sync"
)

type LoginMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	OnResponse func(resp *LoginResponse)
}

func (e LoginMessage) Type() string { return "user.login" }

// LoginResponse is returned by login and session refresh.
type LoginResponse struct {
	User   *User
	Tokens TokenPair
}

type LoginHandler struct {
	deps Dependencies

	dummyMu   sync.Mutex
	dummyHash string
}

func NewLoginHandler(deps Dependencies) *LoginHandler {
	return &LoginHandler{deps: deps.withDefaults()}
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	return runCommand(ctx, "login", func(ctx context.Context) error {
		return h.execute(ctx, event)
	})
}

func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	user, err := h.deps.Repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if !isRecordNotFound(err) {
			return Internal(err, "failed to load user")
		}
		// keep unknown emails as slow as wrong passwords
		dummy, err := h.timingHash(ctx)
		if err != nil {
			return Internal(err, "failed to verify password")
		}
		if _, err := h.deps.Hasher.Verify(ctx, event.Password, dummy); err != nil {
			return Internal(err, "failed to verify password")
		}
		h.recordFailure(ctx, "", "unknown_email")
		return ErrInvalidCredentials
	}

	if !user.IsActive {
		h.recordFailure(ctx, user.ID.String(), "deactivated")
		return ErrAccountDeactivated
	}

	ok, err := h.deps.Hasher.Verify(ctx, event.Password, user.PasswordHash)
	if err != nil {
		return Internal(err, "failed to verify password")
	}
	if !ok {
		h.recordFailure(ctx, user.ID.String(), "bad_password")
		return ErrInvalidCredentials
	}

	tokens, err := h.deps.Tokens.IssuePair(user.SessionSubject())
	if err != nil {
		return err
	}

	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(&LoginResponse{User: user, Tokens: tokens})
	}

	return nil
}

// timingHash returns the hash compared against on unknown emails. It is only
// stored once a hash succeeds, a failed attempt is retried by the next caller.
func (h *LoginHandler) timingHash(ctx context.Context) (string, error) {
	h.dummyMu.Lock()
	defer h.dummyMu.Unlock()

	if h.dummyHash != "" {
		return h.dummyHash, nil
	}

	hash, err := h.deps.Hasher.Hash(ctx, "timing-equalizer-password")
	if err != nil {
		return "", err
	}
	h.dummyHash = hash
	return hash, nil
}

func (h *LoginHandler) recordFailure(ctx context.Context, userID, reason string) {
	recordActivity(ctx, h.deps.Activity, h.deps.Logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     userActor(userID),
		UserID:    userID,
		Metadata: map[string]any{
			"reason": reason,
		},
	})
}
