// Command goRenew-server runs the HTTP auth API: password and federated login, silent
// renewal, logout, session listing, JWKS and metrics.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/audit/kafkasink"
	"github.com/MrEthical07/goRenew/directory"
	"github.com/MrEthical07/goRenew/federation"
	"github.com/MrEthical07/goRenew/internal/config"
	"github.com/MrEthical07/goRenew/internal/dbx"
	"github.com/MrEthical07/goRenew/internal/migrations"
	"github.com/MrEthical07/goRenew/password"
	"github.com/MrEthical07/goRenew/session"
	"github.com/MrEthical07/goRenew/transport/httpapi"
	"github.com/redis/go-redis/v9"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.FromEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Server) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func signingKey(cfg config.Server, logger *slog.Logger) ([]byte, error) {
	if cfg.SigningKeyFile != "" {
		return os.ReadFile(cfg.SigningKeyFile)
	}
	logger.Warn("no signing key configured, generated an ephemeral ed25519 key; tokens will not survive a restart")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, err
}

func run(ctx context.Context, cfg config.Server, logger *slog.Logger) error {
	key, err := signingKey(cfg, logger)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	engineCfg := cfg.EngineConfig(key)

	// -------- DATABASE --------
	dialect, err := dbx.ParseDialect(cfg.DatabaseDialect)
	if err != nil {
		return err
	}
	db, err := sql.Open(dialect.DriverName(), cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if dialect == dbx.SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := migrations.Up(ctx, db, dialect); err != nil {
		return err
	}

	dir := directory.New(db, dialect, []string{"user"})
	if err := bootstrapPrincipal(ctx, cfg, engineCfg, dir, logger); err != nil {
		return err
	}

	builder := goRenew.New().
		WithConfig(engineCfg).
		WithLogger(logger).
		WithDirectory(dir).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)

	// -------- SESSION STORE --------
	switch cfg.SessionStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		builder = builder.WithRedis(rdb)
	case "memory":
		builder = builder.WithSessionStore(session.NewMemoryStore())
	default:
		builder = builder.WithSessionStore(session.NewSQLStore(db, dialect))
	}

	// -------- FEDERATION --------
	if cfg.FederationFile != "" {
		providers, err := config.LoadProviders(cfg.FederationFile)
		if err != nil {
			return err
		}
		verifier, err := federation.NewVerifier(engineCfg.JWT.Leeway, providers...)
		if err != nil {
			return err
		}
		builder = builder.WithFederation(verifier)
		logger.Info("federated login enabled", "providers", verifier.Providers())
	}

	// -------- AUDIT --------
	var sink *kafkasink.Sink
	if len(cfg.KafkaBrokers) > 0 {
		sink = kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic, kafkasink.WithLogger(logger))
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	for _, w := range engineCfg.Lint() {
		logger.Warn("configuration finding", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	api := httpapi.NewServer(engine, httpapi.Options{
		Logger:             logger,
		SecureCookies:      cfg.SecureCookies,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
		LoginRatePerMinute: cfg.HTTPRatePerMinute,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "session_store", cfg.SessionStore, "validation_mode", cfg.ValidationMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := engine.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("engine close: %w", err))
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if dropped := engine.AuditDropped(); dropped > 0 {
		logger.Warn("audit events dropped", "count", dropped)
	}
	return errors.Join(errs...)
}

// bootstrapPrincipal creates the configured first principal unless the email is taken.
func bootstrapPrincipal(ctx context.Context, cfg config.Server, engineCfg goRenew.Config, dir *directory.Store, logger *slog.Logger) error {
	if cfg.BootstrapEmail == "" {
		return nil
	}
	hasher, err := password.NewArgon2(password.Config{
		Memory:      engineCfg.Password.Memory,
		Time:        engineCfg.Password.Time,
		Parallelism: engineCfg.Password.Parallelism,
		SaltLength:  engineCfg.Password.SaltLength,
		KeyLength:   engineCfg.Password.KeyLength,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(cfg.BootstrapPassword)
	if err != nil {
		return err
	}
	p, err := dir.CreatePrincipal(ctx, cfg.BootstrapEmail, hash, []string{"user", "admin"})
	switch {
	case errors.Is(err, directory.ErrEmailTaken):
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap principal: %w", err)
	}
	logger.Info("bootstrap principal created", "principal_id", p.ID)
	return nil
}
