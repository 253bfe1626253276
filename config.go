package identity

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Duration accepts Go durations plus a day suffix ("7d").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

type JWTConfig struct {
	AccessSecret     string   `yaml:"access_secret" env:"JWT_ACCESS_SECRET"`
	RefreshSecret    string   `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET"`
	AccessExpiresIn  Duration `yaml:"access_expires_in" env:"JWT_ACCESS_EXPIRES_IN"`
	RefreshExpiresIn Duration `yaml:"refresh_expires_in" env:"JWT_REFRESH_EXPIRES_IN"`
	Issuer           string   `yaml:"issuer" env:"JWT_ISSUER"`
}

type EmailConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"EMAIL_FROM"`
}

type DatabaseConfig struct {
	Debug          bool     `yaml:"debug" env:"DB_DEBUG"`
	PingTimeout    Duration `yaml:"ping_timeout" env:"DB_PING_TIMEOUT"`
	OtelIdentifier string   `yaml:"otel_identifier" env:"DB_OTEL_IDENTIFIER"`
}

type RateLimitConfig struct {
	WindowMS    int `yaml:"window_ms" env:"RATE_LIMIT_WINDOW_MS"`
	MaxRequests int `yaml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

// Config is the service configuration. Values are resolved as defaults,
// then the optional YAML file, then environment variables.
type Config struct {
	Env              string          `yaml:"env" env:"APP_ENV"`
	Port             int             `yaml:"port" env:"PORT"`
	DatabaseURL      string          `yaml:"database_url" env:"DATABASE_URL"`
	FrontendURL      string          `yaml:"frontend_url" env:"FRONTEND_URL"`
	BcryptCost       int             `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	DeterministicIDs bool            `yaml:"deterministic_ids" env:"DETERMINISTIC_IDS"`
	Database         DatabaseConfig  `yaml:"database"`
	JWT              JWTConfig       `yaml:"jwt"`
	Email            EmailConfig     `yaml:"email"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

// LoadConfig reads path (when not empty), expands ${VAR} references,
// applies environment overrides and fills defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "file:identity.db?cache=shared"
	}
	if c.Database.PingTimeout == 0 {
		c.Database.PingTimeout = Duration(defaultPingTimeout)
	}
	if c.JWT.AccessExpiresIn == 0 {
		c.JWT.AccessExpiresIn = Duration(DefaultAccessTTL)
	}
	if c.JWT.RefreshExpiresIn == 0 {
		c.JWT.RefreshExpiresIn = Duration(DefaultRefreshTTL)
	}
	if c.RateLimit.WindowMS == 0 {
		c.RateLimit.WindowMS = 900000
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = passwordHashCost()
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration can start the service.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Env, validation.In("development", "production", "test")),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.DatabaseURL, validation.Required),
		validation.Field(&c.FrontendURL, validation.Required, is.URL),
		validation.Field(&c.BcryptCost, validation.Min(4), validation.Max(31)),
	)
	if err == nil {
		err = validation.ValidateStruct(&c.JWT,
			validation.Field(&c.JWT.AccessSecret, validation.Required, validation.Length(16, 0)),
			validation.Field(&c.JWT.RefreshSecret, validation.Required, validation.Length(16, 0),
				validation.NotIn(c.JWT.AccessSecret).Error("must differ from the access secret")),
			validation.Field(&c.JWT.AccessExpiresIn, validation.Min(Duration(time.Second))),
			validation.Field(&c.JWT.RefreshExpiresIn, validation.Min(Duration(time.Second))),
		)
	}
	if err == nil && c.Email.Host != "" {
		err = validation.ValidateStruct(&c.Email,
			validation.Field(&c.Email.Port, validation.Required, validation.Min(1), validation.Max(65535)),
			validation.Field(&c.Email.From, validation.Required),
		)
	}
	if err == nil && c.IsProduction() && c.Email.Host == "" {
		err = fmt.Errorf("email: smtp host is required in production")
	}
	if err == nil {
		err = validation.ValidateStruct(&c.RateLimit,
			validation.Field(&c.RateLimit.WindowMS, validation.Min(1)),
			validation.Field(&c.RateLimit.MaxRequests, validation.Min(1)),
		)
	}

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return nil
}

// PersistenceConfig returns the database client settings.
func (c *Config) PersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Driver:         DriverForURL(c.DatabaseURL),
		Server:         c.DatabaseURL,
		Debug:          c.Database.Debug,
		PingTimeout:    c.Database.PingTimeout.Std(),
		OtelIdentifier: c.Database.OtelIdentifier,
	}
}

// TokenConfig returns the session token settings.
func (c *Config) TokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  c.JWT.AccessSecret,
		RefreshSecret: c.JWT.RefreshSecret,
		AccessTTL:     c.JWT.AccessExpiresIn.Std(),
		RefreshTTL:    c.JWT.RefreshExpiresIn.Std(),
		Issuer:        c.JWT.Issuer,
	}
}

// SMTPConfig returns the notifier settings.
func (c *Config) SMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.User,
		Password: c.Email.Password,
		From:     c.Email.From,
	}
}
