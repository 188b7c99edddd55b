package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campusmesh/campusauth"
	"github.com/campusmesh/campusauth/httpapi"
	"github.com/campusmesh/campusauth/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	engineCfg := buildEngineConfig(cfg)

	if cfg.Postgres.AutoMigrate {
		for _, schema := range []string{identitySchema, session.Schema} {
			if _, err := db.Exec(ctx, schema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
	}
	if err := seedAdmin(ctx, db, cfg, engineCfg); err != nil {
		return err
	}

	builder := campusauth.New().
		WithConfig(engineCfg).
		WithIdentityProvider(newPGIdentityProvider(db)).
		WithAuditSink(campusauth.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger).
		WithMetrics(campusauth.NewMetrics(nil))

	// Redis, when configured, takes over the session records and the MFA
	// challenge store; Postgres keeps the identities either way.
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		builder.WithRedis(rdb)
	} else {
		builder.WithSessionStore(session.NewPostgresStore(db, engineCfg.Session.TTL))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	api := httpapi.NewServer(engine, logger, httpapi.Options{
		CookieSecure: cfg.Server.CookieSecure,
	})
	api.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildEngineConfig(cfg *appConfig) campusauth.Config {
	engineCfg := campusauth.DefaultConfig()
	engineCfg.Token.AccessSecret = []byte(cfg.Token.AccessSecret)
	engineCfg.Token.RefreshSecret = []byte(cfg.Token.RefreshSecret)
	engineCfg.Token.AccessTTL = cfg.Token.AccessTTL
	engineCfg.Token.RefreshTTL = cfg.Token.RefreshTTL
	engineCfg.Token.Issuer = cfg.Token.Issuer
	engineCfg.Session.TTL = cfg.Token.RefreshTTL
	engineCfg.TOTP.Issuer = cfg.TOTP.Issuer
	return engineCfg
}

func newLogger(cfg *appConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zc zap.Config
	if cfg.Logging.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
