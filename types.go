package identity

import (
	"context"
	"fmt"
	"log/slog"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Recipient is the addressee of a notification.
type Recipient struct {
	Email string
	Name  string
}

// Notifier delivers single-use tokens to their owner. Delivery is best
// effort: callers log failures and never roll back the token.
type Notifier interface {
	SendVerification(ctx context.Context, to Recipient, token string) error
	SendPasswordReset(ctx context.Context, to Recipient, token string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to Logger. Messages are formatted
// before they reach the handler.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(format string, args ...any) {
	s.l.Debug(fmt.Sprintf(format, args...))
}

func (s slogLogger) Info(format string, args ...any) {
	s.l.Info(fmt.Sprintf(format, args...))
}

func (s slogLogger) Warn(format string, args ...any) {
	s.l.Warn(fmt.Sprintf(format, args...))
}

func (s slogLogger) Error(format string, args ...any) {
	s.l.Error(fmt.Sprintf(format, args...))
}

func resolveLogger(logger Logger) Logger {
	if logger == nil {
		return defLogger{}
	}
	return logger
}
