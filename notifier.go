package identity

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

const (
	templateVerifyEmail   = "verify_email"
	templateResetPassword = "reset_password"

	subjectVerifyEmail   = "Email Verification"
	subjectResetPassword = "Password Reset"
)

// EmailMessage is a rendered notification.
type EmailMessage struct {
	To      Recipient
	Subject string
	Link    string
	HTML    string
}

// EmailRenderer renders notification bodies from the embedded templates.
type EmailRenderer struct {
	engine      *django.Engine
	frontendURL string
}

// NewEmailRenderer loads the embedded email templates. Links point at
// frontendURL.
func NewEmailRenderer(frontendURL string) (*EmailRenderer, error) {
	sub, err := fs.Sub(templatesFS, "templates/email")
	if err != nil {
		return nil, Internal(err, "failed to open email templates")
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, Internal(err, "failed to load email templates")
	}

	return &EmailRenderer{
		engine:      engine,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}, nil
}

// VerificationEmail renders the email verification message.
func (r *EmailRenderer) VerificationEmail(to Recipient, token string) (EmailMessage, error) {
	return r.render(templateVerifyEmail, subjectVerifyEmail, to, r.link("/verify-email", token), "")
}

// PasswordResetEmail renders the password reset message.
func (r *EmailRenderer) PasswordResetEmail(to Recipient, token string) (EmailMessage, error) {
	return r.render(templateResetPassword, subjectResetPassword, to, r.link("/reset-password", token), "1 hour")
}

func (r *EmailRenderer) link(path, token string) string {
	return r.frontendURL + path + "?token=" + url.QueryEscape(token)
}

func (r *EmailRenderer) render(name, subject string, to Recipient, link, expires string) (EmailMessage, error) {
	var buf bytes.Buffer
	err := r.engine.Render(&buf, name, map[string]any{
		"name":    displayName(to),
		"link":    link,
		"expires": expires,
	})
	if err != nil {
		return EmailMessage{}, Internal(err, "failed to render email")
	}

	return EmailMessage{
		To:      to,
		Subject: subject,
		Link:    link,
		HTML:    buf.String(),
	}, nil
}

func displayName(to Recipient) string {
	if to.Name != "" {
		return to.Name
	}
	return to.Email
}

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier delivers notifications over SMTP. It is constructed once at
// process start and passed to the handlers that need it.
type SMTPNotifier struct {
	cfg      SMTPConfig
	auth     smtp.Auth
	renderer *EmailRenderer
	sendMail SendMailFunc
}

// SMTPOption customizes SMTPNotifier.
type SMTPOption func(*SMTPNotifier)

// WithSendMail replaces the transport (useful for tests).
func WithSendMail(fn SendMailFunc) SMTPOption {
	return func(n *SMTPNotifier) {
		if fn != nil {
			n.sendMail = fn
		}
	}
}

var errSMTPMisconfigured = goerrors.New("smtp notifier is misconfigured", goerrors.CategoryInternal).
	WithTextCode(string(KindInternal)).
	WithCode(goerrors.CodeInternal)

// NewSMTPNotifier creates an SMTP backed Notifier.
func NewSMTPNotifier(cfg SMTPConfig, renderer *EmailRenderer, opts ...SMTPOption) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.Port <= 0 || cfg.From == "" || renderer == nil {
		return nil, errSMTPMisconfigured
	}

	n := &SMTPNotifier{
		cfg:      cfg,
		renderer: renderer,
		sendMail: smtp.SendMail,
	}

	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}

	return n, nil
}

func (n *SMTPNotifier) SendVerification(ctx context.Context, to Recipient, token string) error {
	msg, err := n.renderer.VerificationEmail(to, token)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, to Recipient, token string) error {
	msg, err := n.renderer.PasswordResetEmail(to, token)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg)
}

func (n *SMTPNotifier) deliver(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.sendMail(addr, n.auth, n.cfg.From, []string{msg.To.Email}, n.compose(msg)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send email").
			WithMetadata(map[string]any{
				"subject": msg.Subject,
			})
	}
	return nil
}

func (n *SMTPNotifier) compose(msg EmailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogNotifier writes verification and reset links to the logger. Meant for
// local development.
type LogNotifier struct {
	renderer *EmailRenderer
	logger   Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(renderer *EmailRenderer, logger Logger) *LogNotifier {
	return &LogNotifier{renderer: renderer, logger: resolveLogger(logger)}
}

func (n *LogNotifier) SendVerification(_ context.Context, to Recipient, token string) error {
	msg, err := n.renderer.VerificationEmail(to, token)
	if err != nil {
		return err
	}
	n.logger.Info("verification email for %s: %s", to.Email, msg.Link)
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, to Recipient, token string) error {
	msg, err := n.renderer.PasswordResetEmail(to, token)
	if err != nil {
		return err
	}
	n.logger.Info("password reset email for %s: %s", to.Email, msg.Link)
	return nil
}

// AsyncNotifier dispatches notifications in the background so a slow mail
// server never holds a request. Close waits for in-flight sends.
type AsyncNotifier struct {
	next    Notifier
	logger  Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncNotifier wraps next. Each send gets its own timeout.
func NewAsyncNotifier(next Notifier, timeout time.Duration, logger Logger) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncNotifier{
		next:    next,
		logger:  resolveLogger(logger),
		timeout: timeout,
	}
}

var errNotifierClosed = goerrors.New("notifier is closed", goerrors.CategoryOperation)

func (n *AsyncNotifier) SendVerification(_ context.Context, to Recipient, token string) error {
	return n.dispatch("verification", func(ctx context.Context) error {
		return n.next.SendVerification(ctx, to, token)
	})
}

func (n *AsyncNotifier) SendPasswordReset(_ context.Context, to Recipient, token string) error {
	return n.dispatch("password reset", func(ctx context.Context) error {
		return n.next.SendPasswordReset(ctx, to, token)
	})
}

func (n *AsyncNotifier) dispatch(kind string, send func(ctx context.Context) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return errNotifierClosed
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			n.logger.Error("failed to deliver %s email: %v", kind, err)
		}
	}()

	return nil
}

// Close stops accepting sends and waits for pending ones, or for ctx.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
