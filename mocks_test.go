package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessSecret  = "access-secret-0123456789"
	testRefreshSecret = "refresh-secret-0123456789"
	testPassword      = "correct horse battery"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier keeps the last token sent to every address.
type recordingNotifier struct {
	mu            sync.Mutex
	verifications map[string]string
	resets        map[string]string
	err           error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		verifications: map[string]string{},
		resets:        map[string]string{},
	}
}

func (n *recordingNotifier) SendVerification(_ context.Context, to identity.Recipient, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications[to.Email] = token
	return n.err
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to identity.Recipient, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets[to.Email] = token
	return n.err
}

func (n *recordingNotifier) VerificationToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verifications[email]
}

func (n *recordingNotifier) ResetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets[email]
}

// MockActivitySink implements identity.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event identity.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockNotifier implements identity.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendVerification(ctx context.Context, to identity.Recipient, token string) error {
	args := m.Called(ctx, to, token)
	return args.Error(0)
}

func (m *MockNotifier) SendPasswordReset(ctx context.Context, to identity.Recipient, token string) error {
	args := m.Called(ctx, to, token)
	return args.Error(0)
}

// newTestPersistence opens an in-memory sqlite database behind a
// persistence client. Migrations are registered but not applied.
func newTestPersistence(t *testing.T, opts ...identity.PersistenceOption) *persistence.Client {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// one connection keeps the in-memory database alive for the whole test
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	client, err := identity.NewPersistenceClient(identity.PersistenceConfig{
		Driver: identity.DriverSQLite,
		Server: ":memory:",
	}, sqldb, sqlitedialect.New(), opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.DB().Close()
	})

	return client
}

// newTestDB returns a migrated in-memory database.
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	client := newTestPersistence(t)
	require.NoError(t, identity.Migrate(context.Background(), client))

	return client.DB()
}

type fixture struct {
	db       *bun.DB
	repo     identity.RepositoryManager
	tokens   *identity.TokenService
	clock    *testClock
	notifier *recordingNotifier
	deps     identity.Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	repo := identity.NewRepositoryManager(db)

	clock := newTestClock(time.Now().UTC().Truncate(time.Second))

	tokens, err := identity.NewTokenService(identity.TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
	})
	require.NoError(t, err)

	notifier := newRecordingNotifier()

	return &fixture{
		db:       db,
		repo:     repo,
		tokens:   tokens,
		clock:    clock,
		notifier: notifier,
		deps: identity.Dependencies{
			Repo:     repo,
			Hasher:   identity.NewPasswordHasher(identity.WithHashCost(bcrypt.MinCost)),
			Tokens:   tokens,
			OneTime:  identity.NewOneTimeTokens(identity.WithOneTimeClock(clock.Now)),
			Notifier: notifier,
			Logger:   testLogger{},
		},
	}
}

func (f *fixture) register(t *testing.T, name, email string) *identity.User {
	t.Helper()

	var user *identity.User
	err := identity.NewRegisterUserHandler(f.deps).Execute(context.Background(), identity.RegisterUserMessage{
		Name:     name,
		Email:    email,
		Password: testPassword,
		OnResponse: func(u *identity.User) {
			user = u
		},
	})
	require.NoError(t, err)
	require.NotNil(t, user)

	return user
}

func (f *fixture) registerAdmin(t *testing.T, email string) (*identity.User, *identity.AuthenticatedContext) {
	t.Helper()

	user := f.register(t, "Admin", email)
	admin, err := f.repo.Users().SetRole(context.Background(), user.ID, identity.RoleAdmin)
	require.NoError(t, err)

	return admin, &identity.AuthenticatedContext{
		UserID: admin.ID.String(),
		Email:  admin.Email,
		Role:   admin.Role,
	}
}

func (f *fixture) login(email, password string) (*identity.LoginResponse, error) {
	var resp *identity.LoginResponse
	err := identity.NewLoginHandler(f.deps).Execute(context.Background(), identity.LoginMessage{
		Email:    email,
		Password: password,
		OnResponse: func(r *identity.LoginResponse) {
			resp = r
		},
	})
	return resp, err
}
