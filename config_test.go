package identity_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"APP_ENV", "PORT", "DATABASE_URL", "FRONTEND_URL", "BCRYPT_COST", "DETERMINISTIC_IDS",
	"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "JWT_ACCESS_EXPIRES_IN", "JWT_REFRESH_EXPIRES_IN", "JWT_ISSUER",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "EMAIL_FROM",
	"RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_MAX_REQUESTS",
	"DB_DEBUG", "DB_PING_TIMEOUT", "DB_OTEL_IDENTIFIER",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := identity.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 3000, cfg.Port)
	assert.NotEmpty(t, cfg.DatabaseURL)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiresIn.Std())
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiresIn.Std())
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.NotZero(t, cfg.BcryptCost)
	assert.False(t, cfg.IsProduction())

	db := cfg.PersistenceConfig()
	assert.Equal(t, identity.DriverSQLite, db.GetDriver())
	assert.Equal(t, cfg.DatabaseURL, db.GetServer())
	assert.Equal(t, 5*time.Second, db.GetPingTimeout())
}

func TestLoadConfig_FileAndEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TEST_REFRESH_SECRET", "refresh-from-env-expansion")
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_ACCESS_EXPIRES_IN", "30m")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
env: production
port: 4000
frontend_url: https://app.example.com
database_url: postgres://identity@localhost:5432/identity
database:
  debug: true
  ping_timeout: 2s
jwt:
  access_secret: access-from-file-secret
  refresh_secret: ${TEST_REFRESH_SECRET}
  access_expires_in: 5m
  refresh_expires_in: 14d
email:
  host: smtp.example.com
  port: 587
  from: no-reply@example.com
rate_limit:
  window_ms: 60000
  max_requests: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := identity.LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8080, cfg.Port, "environment overrides the file")
	assert.Equal(t, "refresh-from-env-expansion", cfg.JWT.RefreshSecret)
	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessExpiresIn.Std())
	assert.Equal(t, 14*24*time.Hour, cfg.JWT.RefreshExpiresIn.Std())
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)

	require.NoError(t, cfg.Validate())

	tokens := cfg.TokenConfig()
	assert.Equal(t, "access-from-file-secret", tokens.AccessSecret)
	assert.Equal(t, 30*time.Minute, tokens.AccessTTL)

	db := cfg.PersistenceConfig()
	assert.Equal(t, identity.DriverPostgres, db.GetDriver())
	assert.True(t, db.GetDebug())
	assert.Equal(t, 2*time.Second, db.GetPingTimeout())

	smtp := cfg.SMTPConfig()
	assert.Equal(t, "smtp.example.com", smtp.Host)
	assert.Equal(t, 587, smtp.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearConfigEnv(t)

	_, err := identity.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *identity.Config {
		return &identity.Config{
			Env:         "development",
			Port:        3000,
			DatabaseURL: "file::memory:",
			FrontendURL: "http://localhost:5173",
			BcryptCost:  10,
			JWT: identity.JWTConfig{
				AccessSecret:     "access-secret-0123456789",
				RefreshSecret:    "refresh-secret-0123456789",
				AccessExpiresIn:  identity.Duration(15 * time.Minute),
				RefreshExpiresIn: identity.Duration(7 * 24 * time.Hour),
			},
			RateLimit: identity.RateLimitConfig{WindowMS: 900000, MaxRequests: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *identity.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *identity.Config) {}},
		{name: "missing access secret", mutate: func(c *identity.Config) { c.JWT.AccessSecret = "" }, wantErr: true},
		{name: "short refresh secret", mutate: func(c *identity.Config) { c.JWT.RefreshSecret = "short" }, wantErr: true},
		{
			name:    "shared secrets",
			mutate:  func(c *identity.Config) { c.JWT.RefreshSecret = c.JWT.AccessSecret },
			wantErr: true,
		},
		{name: "production without smtp", mutate: func(c *identity.Config) { c.Env = "production" }, wantErr: true},
		{name: "unknown env", mutate: func(c *identity.Config) { c.Env = "staging" }, wantErr: true},
		{name: "smtp without sender", mutate: func(c *identity.Config) {
			c.Email.Host = "smtp.example.com"
			c.Email.Port = 25
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, identity.KindValidation, identity.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "15m", want: 15 * time.Minute},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "xd", wantErr: true},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d identity.Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Std())
		})
	}
}
