package identity

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	migrationsRoot     = "data/sql/migrations"
	defaultPingTimeout = 5 * time.Second
)

// PersistenceConfig holds the database client settings.
type PersistenceConfig struct {
	Driver         string
	Server         string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (p PersistenceConfig) GetDebug() bool {
	return p.Debug
}

func (p PersistenceConfig) GetDriver() string {
	return p.Driver
}

func (p PersistenceConfig) GetServer() string {
	return p.Server
}

func (p PersistenceConfig) GetPingTimeout() time.Duration {
	if p.PingTimeout <= 0 {
		return defaultPingTimeout
	}
	return p.PingTimeout
}

func (p PersistenceConfig) GetOtelIdentifier() string {
	return p.OtelIdentifier
}

// DriverForURL picks the driver from a database URL. Anything that is not a
// postgres URL is treated as a sqlite DSN.
func DriverForURL(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

type persistenceOptions struct {
	migrations fs.FS
}

// PersistenceOption customizes NewPersistenceClient.
type PersistenceOption func(*persistenceOptions)

// WithMigrationsFS replaces the embedded migrations. fsys must hold one
// directory per dialect ("postgres", "sqlite").
func WithMigrationsFS(fsys fs.FS) PersistenceOption {
	return func(o *persistenceOptions) {
		if fsys != nil {
			o.migrations = fsys
		}
	}
}

var registerModels sync.Once

// NewPersistenceClient creates the persistence client for sqldb with the
// identity models and dialect migrations registered. Call Migrate to apply
// pending migrations.
func NewPersistenceClient(cfg PersistenceConfig, sqldb *sql.DB, dialect schema.Dialect, opts ...PersistenceOption) (*persistence.Client, error) {
	registerModels.Do(func() {
		persistence.RegisterModel((*User)(nil))
	})

	o := &persistenceOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.migrations == nil {
		sub, err := fs.Sub(GetMigrationsFS(), migrationsRoot)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open embedded migrations")
		}
		o.migrations = sub
	}

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to create persistence client")
	}

	client.RegisterDialectMigrations(
		o.migrations,
		persistence.WithDialectSourceLabel(migrationsRoot),
		persistence.WithValidationTargets(DriverPostgres, DriverSQLite),
	)

	return client, nil
}

// Migrate checks that every dialect ships the same migrations and applies
// the ones not yet recorded as applied.
func Migrate(ctx context.Context, client *persistence.Client) error {
	if err := client.ValidateDialects(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "migration dialects do not match")
	}

	if err := client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to apply migrations")
	}
	return nil
}
