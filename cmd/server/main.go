package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"HoneyHubUsers/internal/auth"
	"HoneyHubUsers/internal/config"
	"HoneyHubUsers/internal/httpapi"
	"HoneyHubUsers/internal/metrics"
	"HoneyHubUsers/internal/outbox"
	"HoneyHubUsers/internal/service"
	"HoneyHubUsers/internal/store/postgres"
	"HoneyHubUsers/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("db open failed", "driver", cfg.DBDriver, "err", err)
		os.Exit(1)
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	policy, err := cfg.HashPolicy()
	if err != nil {
		logger.Error("invalid hash policy", "err", err)
		os.Exit(1)
	}
	hasherOpts := cfg.HasherOpts()
	hasherOpts.Observe = m.ObserveHash
	hasher, err := auth.NewHasher(policy, hasherOpts)
	if err != nil {
		logger.Error("hasher init failed", "err", err)
		os.Exit(1)
	}
	logger.Info("password hashing configured", "policy", policy.String(), "max_concurrent", hasher.Capacity())

	usersSvc := &service.ProvisioningService{
		Users:   st.users,
		Plans:   st.plans,
		Outbox:  st.outbox,
		Hasher:  hasher,
		Metrics: m,
		Logger:  logger,
	}

	if err := bootstrapAdminUser(ctx, logger, usersSvc, cfg.AdminBootstrapEmail, cfg.AdminBootstrapUsername, cfg.AdminBootstrapPassword); err != nil {
		logger.Error("bootstrap admin failed", "err", err)
		os.Exit(1)
	}
	if cfg.InternalToken == "" {
		logger.Warn("internal routes disabled: APP_INTERNAL_TOKEN is not set")
	}

	apiRouter := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:         logger,
		IsProd:         cfg.IsProd(),
		DBPing:         st.ping,
		Users:          usersSvc,
		Metrics:        m,
		InternalToken:  cfg.InternalToken,
		GoogleClientID: cfg.GoogleClientID,
		AppleServiceID: cfg.AppleServiceID,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "db_driver", cfg.DBDriver)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}
}

type storage struct {
	users  service.UsersStore
	plans  service.PlansStore
	outbox service.OutboxReader
	ping   func(context.Context) error
	close  func()
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DBDSN, cfg.DBMaxConns)
		if err != nil {
			return storage{}, err
		}
		if cfg.DBAutoMigrate {
			applied, err := postgres.Migrate(ctx, pool)
			if err != nil {
				pool.Close()
				return storage{}, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", "count", len(applied), "names", applied)
		}
		return storage{
			users:  postgres.NewUsersStore(pool),
			plans:  postgres.NewPlansStore(pool),
			outbox: postgres.NewOutboxStore(pool),
			ping:   pool.Ping,
			close:  pool.Close,
		}, nil

	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.DBDSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return storage{}, fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err := sqlite.Open(cfg.DBDSN)
		if err != nil {
			return storage{}, err
		}
		return storage{
			users:  db,
			plans:  db,
			outbox: db,
			ping:   db.Ping,
			close:  func() { _ = db.Close() },
		}, nil

	default:
		return storage{}, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

// bootstrapAdminUser provisions the configured admin account through the
// regular admin path so it gets the same outbox event as any other user.
func bootstrapAdminUser(ctx context.Context, logger *slog.Logger, users *service.ProvisioningService, email, username, password string) error {
	if password == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(password) < 12 {
		return errors.New("APP_ADMIN_BOOTSTRAP_PASSWORD: must be at least 12 characters")
	}
	if email == "" || username == "" {
		return errors.New("admin bootstrap: email and username are required")
	}

	res, err := users.AdminCreateUser(ctx, service.AdminCreateUserInput{
		UserName:       username,
		Email:          email,
		Password:       password,
		EmailConfirmed: true,
		IsActive:       true,
		LockoutEnabled: true,
		CreatedBy:      outbox.SystemActor,
	})
	if err != nil {
		return fmt.Errorf("admin bootstrap: create user: %w", err)
	}
	if f := res.Failure; f != nil {
		switch f.Code {
		case "username_taken", "email_taken":
			logger.Info("admin bootstrap: user already exists", "email", email)
			return nil
		}
		return fmt.Errorf("admin bootstrap: %w", f.Err())
	}

	logger.Info("admin bootstrap: created admin user", "email", email, "user_id", res.PublicID.String())
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
