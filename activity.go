package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered        ActivityEventType = "identity.registered"
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventSessionRefreshed  ActivityEventType = "auth.session.refreshed"
	ActivityEventEmailVerified     ActivityEventType = "identity.email.verified"
	ActivityEventEmailChanged      ActivityEventType = "identity.email.changed"
	ActivityEventPasswordResetSent ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordReset     ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged   ActivityEventType = "auth.password.changed"
	ActivityEventRoleChanged       ActivityEventType = "identity.role.changed"
	ActivityEventStatusChanged     ActivityEventType = "identity.status.changed"
	ActivityEventUserUpdated       ActivityEventType = "identity.updated"
	ActivityEventUserDeleted       ActivityEventType = "identity.deleted"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// NewLoggerActivitySink writes every event to logger at info level.
func NewLoggerActivitySink(logger Logger) ActivitySink {
	logger = resolveLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		logger.Info("activity %s user=%s actor=%s:%s", event.EventType, event.UserID, event.Actor.Type, event.Actor.ID)
		return nil
	})
}

func userActor(id string) ActorRef {
	return ActorRef{ID: id, Type: "user"}
}

func adminActor(auth *AuthenticatedContext) ActorRef {
	if auth == nil {
		return ActorRef{Type: "admin"}
	}
	return ActorRef{ID: auth.UserID, Type: "admin"}
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		resolveLogger(logger).Warn("activity sink error for %s: %v", event.EventType, err)
	}
}
