package goRenew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goRenew/credential"
	"github.com/MrEthical07/goRenew/internal/audit"
	"github.com/MrEthical07/goRenew/internal/flows"
	"github.com/MrEthical07/goRenew/internal/ids"
	"github.com/MrEthical07/goRenew/internal/rate"
	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/password"
	"github.com/MrEthical07/goRenew/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be used for one Build call only.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	logger *slog.Logger
	redis  redis.UniversalClient
	now    func() time.Time

	store       session.Store
	limiter     LoginLimiter
	credentials CredentialValidator
	directory   credential.Directory
	federation  credential.AssertionVerifier
	auditSink   AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the logger for operational warnings. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis supplies the client used for the default session store and rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore overrides the session store. It takes precedence over WithRedis.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithCredentials sets the validator used by LoginWithPassword and LoginWithFederated.
func (b *Builder) WithCredentials(v CredentialValidator) *Builder {
	b.credentials = v
	return b
}

// WithDirectory builds the default credential validator over dir with an argon2id hasher
// configured from Config.Password. WithCredentials takes precedence.
func (b *Builder) WithDirectory(dir credential.Directory) *Builder {
	b.directory = dir
	return b
}

// WithFederation enables federated login for the validator built by WithDirectory.
func (b *Builder) WithFederation(v credential.AssertionVerifier) *Builder {
	b.federation = v
	return b
}

// WithLimiter overrides the login and refresh limiter.
func (b *Builder) WithLimiter(l LoginLimiter) *Builder {
	b.limiter = l
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used for token timestamps and for the session store the
// builder creates.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "goRenew")

	// -------- TOKENS --------
	manager, err := jwt.NewManager(jwt.Config{
		SigningMethod:  jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:     cfg.JWT.PrivateKey,
		PublicKey:      cfg.JWT.PublicKey,
		KeyID:          cfg.JWT.KeyID,
		VerifyKeys:     cfg.JWT.VerifyKeys,
		Issuer:         cfg.JWT.Issuer,
		Audience:       cfg.JWT.Audience,
		Leeway:         cfg.JWT.Leeway,
		AccessTTL:      cfg.JWT.AccessTTL,
		RefreshTTL:     cfg.JWT.RefreshTTL,
		AntiForgeryTTL: cfg.AntiForgery.TTL,
		Now:            b.now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		opts := []session.Option{
			session.WithRetention(cfg.Session.Retention),
			session.WithPendingTTL(cfg.Session.PendingTTL),
		}
		if b.now != nil {
			opts = append(opts, session.WithClock(b.now))
		}
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, opts...)
	}

	// -------- RATE LIMITER --------
	limiter := b.limiter
	if limiter == nil {
		rcfg := rate.Config{
			Prefix:                  cfg.Session.RedisPrefix,
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		}
		if b.redis != nil {
			limiter = rate.New(b.redis, rcfg)
		} else {
			limiter = rate.NewLocal(rcfg)
		}
	}

	// -------- CREDENTIALS --------
	credentials := b.credentials
	if credentials == nil && b.directory != nil {
		hasher, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, fmt.Errorf("password: %w", err)
		}
		opts := []credential.Option{
			credential.WithLogger(logger),
			credential.WithLinkVerifiedEmail(cfg.Security.LinkVerifiedEmail),
		}
		if b.federation != nil {
			opts = append(opts, credential.WithFederation(b.federation))
		}
		credentials = credential.NewValidator(b.directory, hasher, opts...)
	}

	// -------- AUDIT + METRICS --------
	sink := b.auditSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	e := &Engine{
		config:      cfg,
		logger:      logger,
		jwt:         manager,
		store:       store,
		limiter:     limiter,
		credentials: credentials,
		audit:       dispatcher,
		metrics:     NewMetrics(cfg.Metrics),
	}
	e.flows = flows.New(e.flowDeps())

	b.built = true
	return e, nil
}

func (e *Engine) flowDeps() flows.Deps {
	warn := func(ctx context.Context, msg string, args ...any) {
		e.logger.WarnContext(ctx, msg, args...)
	}

	var refreshLimiter flows.RefreshRateLimiter
	if e.config.Security.EnableRefreshThrottle && e.limiter != nil {
		refreshLimiter = e.limiter
	}

	return flows.Deps{
		Issue: flows.IssueDeps{
			Signer:       e.jwt,
			SessionStore: e.store,
			NewTokenID:   ids.New,
			Warn:         warn,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: e.jwt.VerifyRefresh,
			Signer:        e.jwt,
			NewTokenID:    ids.New,
			RateLimiter:   refreshLimiter,
			SessionStore:  e.store,
		},
		Validate: flows.ValidateDeps{
			VerifyAccess: e.jwt.VerifyAccess,
			Mode:         int(e.config.ValidationMode),
			SessionStore: e.store,
		},
		AntiForgery: flows.AntiForgeryDeps{
			VerifyAntiForgery: e.jwt.VerifyAntiForgery,
			SessionBound:      e.config.AntiForgery.Mode == AntiForgerySessionBound,
			SessionStore:      e.store,
		},
		Logout: flows.LogoutDeps{
			InspectRefresh: e.jwt.InspectRefresh,
			SessionStore:   e.store,
		},
		Introspection: flows.IntrospectionDeps{
			SessionStore:       e.store,
			EngineNotReadyErr:  ErrEngineNotReady,
			SessionNotFoundErr: ErrSessionNotFound,
			InvalidInputErr:    ErrInvalidArgument,
		},
	}
}
