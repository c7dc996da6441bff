package examcore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/examcore/catalog"
	"github.com/MrEthical07/examcore/cursor"
	"github.com/MrEthical07/examcore/exam"
	internalaudit "github.com/MrEthical07/examcore/internal/audit"
	"github.com/MrEthical07/examcore/internal/coord"
	"github.com/MrEthical07/examcore/internal/flows"
	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/MrEthical07/examcore/internal/rate"
	"github.com/MrEthical07/examcore/jwt"
	"github.com/MrEthical07/examcore/quota"
	"github.com/MrEthical07/examcore/session"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder can be used once.
//
// Builder instances are intended to be configured during initialization and then treated as immutable.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	catalog    catalog.Catalog
	accounts   AccountProvider
	membership quota.MembershipCatalog
	generator  quota.Generator
	auditSink  AuditSink

	logger     *slog.Logger
	registerer prometheus.Registerer
	clock      clockwork.Clock
	storeHooks bool

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config:     DefaultConfig(),
		storeHooks: true,
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the coordination store client shared by every component.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStoreHooks controls whether Build installs the circuit breaker and
// latency hooks on the Redis client. Disable it when the client was created
// with coord hooks already in place.
func (b *Builder) WithStoreHooks(enabled bool) *Builder {
	b.storeHooks = enabled
	return b
}

// WithCatalog describes the withcatalog operation and its observable behavior.
//
// The catalog is read-only to the engine and required for practice delivery
// and exam assembly.
func (b *Builder) WithCatalog(cat catalog.Catalog) *Builder {
	b.catalog = cat
	return b
}

// WithAccountProvider sets the account lookup used for quota initialization.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithMembership overrides the membership catalog. The default is a static
// catalog built from Config.Quota.Levels.
func (b *Builder) WithMembership(m quota.MembershipCatalog) *Builder {
	b.membership = m
	return b
}

// WithGenerator sets the text generator gated by Engine.Generate.
func (b *Builder) WithGenerator(g quota.Generator) *Builder {
	b.generator = g
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsRegisterer registers the engine's collectors on reg instead of a
// private registry.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock replaces the wall clock. Tests pass a clockwork fake clock.
func (b *Builder) WithClock(c clockwork.Clock) *Builder {
	b.clock = c
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when configuration validation or dependency wiring fails.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.catalog == nil {
		return nil, errors.New("question catalog required")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}

	loc, err := loadLocation(cfg.Quota.Timezone)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	engine := &Engine{
		config:   cloneConfig(cfg),
		redis:    b.redis,
		clock:    clock,
		logger:   logger,
		accounts: b.accounts,
		location: loc,
	}

	// -------- METRICS --------
	if cfg.Metrics.Enabled {
		reg := b.registerer
		if reg == nil {
			engine.registry = metrics.NewRegistry()
			reg = engine.registry
		}
		engine.metrics = metrics.New(reg)
	}

	if b.storeHooks {
		engine.breaker = coord.Instrument(b.redis, coord.Options{
			Breaker: coord.BreakerSettings{
				ConsecutiveFailures: cfg.Redis.BreakerConsecutiveFailures,
				Cooldown:            cfg.Redis.BreakerCooldown,
			},
			Logger:  logger,
			Metrics: engine.metrics,
		})
	}

	retry := coord.RetryPolicy{
		MaxAttempts:     cfg.Redis.RetryMaxAttempts,
		InitialInterval: cfg.Redis.RetryInitialInterval,
		MaxInterval:     cfg.Redis.RetryMaxInterval,
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	engine.jwtManager = jm

	// -------- SESSION REGISTRY --------
	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Redis.OperationTimeout, retry)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
		Metrics:    engine.metrics,
	}, b.auditSink)
	engine.loginLimiter = rate.New(b.redis, rate.Config{
		Prefix:           cfg.Session.RedisPrefix,
		Limit:            cfg.Session.LoginLimit,
		Window:           cfg.Session.LoginWindow,
		OperationTimeout: cfg.Redis.OperationTimeout,
	})
	engine.flowService = flows.New(engine.flowDeps())

	// -------- QUOTA LEDGER --------
	var store quota.Store
	switch cfg.Quota.Backend {
	case "memory":
		store = quota.NewMemoryStore()
	default:
		store = quota.NewRedisStore(b.redis, cfg.Quota.RedisPrefix, cfg.Redis.OperationTimeout, retry)
	}
	membership := b.membership
	if membership == nil {
		membership = quota.StaticMembership(cfg.Quota.Levels)
	}
	engine.ledger = quota.NewLedger(quota.Options{
		Store:      store,
		Levels:     levelSource{accounts: b.accounts},
		Membership: membership,
		Clock:      clock,
		Location:   loc,
		Logger:     logger,
		Metrics:    engine.metrics,
	})
	if b.generator != nil {
		engine.generator = quota.NewGatedGenerator(engine.ledger, b.generator, cfg.Quota.GenerationCost)
	}

	// -------- DELIVERY CURSOR --------
	engine.cursor = cursor.New(b.redis, b.catalog, cursor.Options{
		Prefix:           cfg.Cursor.RedisPrefix,
		TTL:              cfg.Cursor.TTL,
		OperationTimeout: cfg.Redis.OperationTimeout,
		Retry:            retry,
		Logger:           logger,
		Metrics:          engine.metrics,
	})

	// -------- EXAM ASSEMBLER --------
	engine.exams = exam.New(b.redis, b.catalog, exam.Options{
		Prefix:           cfg.Exam.RedisPrefix,
		Retention:        cfg.Exam.Retention,
		OperationTimeout: cfg.Redis.OperationTimeout,
		Retry:            retry,
		Now:              clock.Now,
		Logger:           logger,
		Metrics:          engine.metrics,
	})

	b.built = true

	return engine, nil
}

func (e *Engine) flowDeps() flows.Deps {
	common := flows.Common{
		ParseToken:       e.jwtManager.Parse,
		Store:            e.sessionStore,
		Now:              e.clock.Now,
		EmitAudit:        e.emitAudit,
		StoreUnavailable: ErrStoreUnavailable,
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			Common:     common,
			IssueToken: e.jwtManager.Issue,
			NewTokenID: uuid.NewString,
			SessionTTL: e.config.Session.TTL,
			Throttle:   e.throttleLogin,
			OnLogin: func(result string) {
				e.metrics.Login(result)
			},
			OnSuperseded: e.metrics.Superseded,
			Errors: flows.LoginErrors{
				EngineNotReady: ErrEngineNotReady,
				InvalidAccount: ErrInvalidAccount,
			},
		},
		Validate: flows.ValidateDeps{
			Common: common,
			OnValidate: func(result string) {
				e.metrics.Validation(result)
			},
		},
		Logout: flows.LogoutDeps{
			Common: common,
		},
	}
}
