package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	identity "github.com/goliatone/go-identity"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

const (
	notifyTimeout   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := identity.NewSlogLogger(slog.New(handler))

	if err := run(*configPath, logger); err != nil {
		logger.Error("identityd: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, logger identity.Logger) error {
	cfg, err := identity.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	dbCfg := cfg.PersistenceConfig()

	sqldb, dialect, err := openDB(dbCfg)
	if err != nil {
		return err
	}

	client, err := identity.NewPersistenceClient(dbCfg, sqldb, dialect)
	if err != nil {
		sqldb.Close()
		return err
	}
	defer client.DB().Close()

	if err := identity.Migrate(ctx, client); err != nil {
		return err
	}

	repo := identity.NewRepositoryManager(client.DB())
	repo.MustValidate()

	tokens, err := identity.NewTokenService(cfg.TokenConfig(), identity.WithTokenLogger(logger))
	if err != nil {
		return err
	}

	renderer, err := identity.NewEmailRenderer(cfg.FrontendURL)
	if err != nil {
		return err
	}

	var delivery identity.Notifier
	if cfg.Email.Host != "" {
		delivery, err = identity.NewSMTPNotifier(cfg.SMTPConfig(), renderer)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("smtp host not configured, emails are written to the log")
		delivery = identity.NewLogNotifier(renderer, logger)
	}
	notifier := identity.NewAsyncNotifier(delivery, notifyTimeout, logger)

	ctrl := identity.NewController(identity.Dependencies{
		Repo:             repo,
		Hasher:           identity.NewPasswordHasher(identity.WithHashCost(cfg.BcryptCost)),
		Tokens:           tokens,
		OneTime:          identity.NewOneTimeTokens(),
		Notifier:         notifier,
		Activity:         identity.NewLoggerActivitySink(logger),
		Logger:           logger,
		DeterministicIDs: cfg.DeterministicIDs,
	})

	srv := identity.NewServer(ctrl, identity.ServerOptionsFromConfig(cfg, logger))

	errc := make(chan error, 1)
	go func() {
		logger.Info("identityd listening on :%d (%s)", cfg.Port, cfg.Env)
		errc <- srv.Serve(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case sig := <-waitExitSignal():
		logger.Info("received %s, shutting down", sig)
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown: %v", err)
	}

	if err := notifier.Close(shutdownCtx); err != nil {
		logger.Error("notifier shutdown: %v", err)
	}

	return nil
}

func openDB(cfg identity.PersistenceConfig) (*sql.DB, schema.Dialect, error) {
	if cfg.GetDriver() == identity.DriverPostgres {
		sqldb, err := sql.Open("postgres", cfg.GetServer())
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return sqldb, pgdialect.New(), nil
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetServer())
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	return sqldb, sqlitedialect.New(), nil
}

func waitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
