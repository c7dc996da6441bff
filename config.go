package examcore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/examcore/quota"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of the engine. Env tags are relative to the
// EXAMCORE_ prefix used by LoadConfigFromEnv.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	JWT     JWTConfig     `envPrefix:"JWT_"`
	Session SessionConfig `envPrefix:"SESSION_"`
	Quota   QuotaConfig   `envPrefix:"QUOTA_"`
	Cursor  CursorConfig  `envPrefix:"CURSOR_"`
	Exam    ExamConfig    `envPrefix:"EXAM_"`
	Audit   AuditConfig   `envPrefix:"AUDIT_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`
	Log     LogConfig     `envPrefix:"LOG_"`
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig covers the coordination store connection and the fault
// handling applied to every call.
type RedisConfig struct {
	URL              string        `env:"URL"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT"`

	RetryMaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS"`
	RetryInitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL"`
	RetryMaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL"`

	BreakerConsecutiveFailures uint32        `env:"BREAKER_FAILURES"`
	BreakerCooldown            time.Duration `env:"BREAKER_COOLDOWN"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing. Keys are never read from struct
// tags; LoadConfigFromEnv fills them from EXAMCORE_JWT_SECRET or the
// base64 EXAMCORE_JWT_PRIVATE_KEY / EXAMCORE_JWT_PUBLIC_KEY pair.
type JWTConfig struct {
	SigningMethod string        `env:"SIGNING_METHOD"` // "ed25519" (default) or "hs256"
	Issuer        string        `env:"ISSUER"`
	Audience      string        `env:"AUDIENCE"`
	Leeway        time.Duration `env:"LEEWAY"`
	PrivateKey    []byte
	PublicKey     []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the login registry. TTL is both the token
// lifetime and the registry entry lifetime. LoginLimit caps logins per
// account per LoginWindow; zero disables the cap.
type SessionConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"`
	LoginLimit  int           `env:"LOGIN_LIMIT"`
	LoginWindow time.Duration `env:"LOGIN_WINDOW"`
}

/*
====================================
QUOTA CONFIG
====================================
*/

// QuotaConfig configures the AI usage ledger.
type QuotaConfig struct {
	// Backend is "redis" (default) or "memory" for single-instance use.
	Backend     string `env:"BACKEND"`
	RedisPrefix string `env:"REDIS_PREFIX"`
	// Timezone names the IANA zone whose midnight starts a new day.
	Timezone string `env:"TIMEZONE"`
	// GenerationCost is charged per gated generation.
	GenerationCost int64 `env:"GENERATION_COST"`
	// Levels maps membership level to limits. From env as
	// "free=3/50,premium=20/500".
	Levels map[string]quota.Limits
}

/*
====================================
CURSOR CONFIG
====================================
*/

// CursorConfig configures practice delivery cursors.
type CursorConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	TTL         time.Duration `env:"TTL"`
}

/*
====================================
EXAM CONFIG
====================================
*/

// ExamConfig configures exam blueprints. A zero Retention keeps frozen
// blueprints until discarded.
type ExamConfig struct {
	RedisPrefix string        `env:"REDIS_PREFIX"`
	Retention   time.Duration `env:"RETENTION"`
}

/*
====================================
AUDIT / METRICS / LOG CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled bool `env:"ENABLED"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"`
	Format string `env:"FORMAT"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT keys are empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{
			URL:                        "redis://localhost:6379/0",
			OperationTimeout:           2 * time.Second,
			RetryMaxAttempts:           3,
			RetryInitialInterval:       25 * time.Millisecond,
			RetryMaxInterval:           250 * time.Millisecond,
			BreakerConsecutiveFailures: 5,
			BreakerCooldown:            10 * time.Second,
		},
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Issuer:        "examcore",
			Leeway:        5 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "es",
			TTL:         12 * time.Hour,
			LoginLimit:  30,
			LoginWindow: time.Minute,
		},
		Quota: QuotaConfig{
			Backend:        "redis",
			RedisPrefix:    "eq",
			Timezone:       "Local",
			GenerationCost: 1,
			Levels: map[string]quota.Limits{
				"free":    {Daily: 5, Monthly: 100},
				"premium": {Daily: 50, Monthly: 1000},
			},
		},
		Cursor: CursorConfig{
			RedisPrefix: "ec",
			TTL:         30 * time.Minute,
		},
		Exam: ExamConfig{
			RedisPrefix: "ex",
			Retention:   30 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.Quota.Levels != nil {
		out.Quota.Levels = make(map[string]quota.Limits, len(cfg.Quota.Levels))
		for k, v := range cfg.Quota.Levels {
			out.Quota.Levels[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	// Redis
	if c.Redis.OperationTimeout <= 0 {
		return errors.New("Redis OperationTimeout must be > 0")
	}
	if c.Redis.OperationTimeout >= 10*time.Second {
		return errors.New("Redis OperationTimeout must be < 10s")
	}
	if c.Redis.RetryMaxAttempts < 1 {
		return errors.New("Redis RetryMaxAttempts must be >= 1")
	}
	if c.Redis.RetryInitialInterval < 0 || c.Redis.RetryMaxInterval < c.Redis.RetryInitialInterval {
		return errors.New("Redis retry intervals must satisfy 0 <= initial <= max")
	}
	if c.Redis.BreakerConsecutiveFailures == 0 {
		return errors.New("Redis BreakerConsecutiveFailures must be > 0")
	}
	if c.Redis.BreakerCooldown <= 0 {
		return errors.New("Redis BreakerCooldown must be > 0")
	}

	// JWT
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		return errors.New("JWT Leeway must be between 0 and 1m")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.LoginLimit < 0 {
		return errors.New("Session LoginLimit must be >= 0")
	}
	if c.Session.LoginLimit > 0 && c.Session.LoginWindow <= 0 {
		return errors.New("Session LoginWindow must be > 0 when LoginLimit is set")
	}

	// Quota
	if c.Quota.Backend != "redis" && c.Quota.Backend != "memory" {
		return errors.New("Quota Backend must be 'redis' or 'memory'")
	}
	if c.Quota.RedisPrefix == "" {
		return errors.New("Quota RedisPrefix must not be empty")
	}
	if _, err := loadLocation(c.Quota.Timezone); err != nil {
		return fmt.Errorf("Quota Timezone: %w", err)
	}
	if c.Quota.GenerationCost < 1 {
		return errors.New("Quota GenerationCost must be >= 1")
	}
	if len(c.Quota.Levels) == 0 {
		return errors.New("Quota Levels must define at least one membership level")
	}
	for level, l := range c.Quota.Levels {
		if level == "" {
			return errors.New("Quota Levels contains an empty level name")
		}
		if l.Daily < 0 || l.Monthly < 0 {
			return fmt.Errorf("Quota level %q has negative limits", level)
		}
		if l.Daily > l.Monthly {
			return fmt.Errorf("Quota level %q daily limit exceeds monthly limit", level)
		}
	}

	// Cursor
	if c.Cursor.RedisPrefix == "" {
		return errors.New("Cursor RedisPrefix must not be empty")
	}
	if c.Cursor.TTL <= 0 {
		return errors.New("Cursor TTL must be > 0")
	}

	// Exam
	if c.Exam.RedisPrefix == "" {
		return errors.New("Exam RedisPrefix must not be empty")
	}
	if c.Exam.Retention < 0 {
		return errors.New("Exam Retention must be >= 0")
	}

	prefixes := map[string]string{}
	for section, p := range map[string]string{
		"Session": c.Session.RedisPrefix,
		"Quota":   c.Quota.RedisPrefix,
		"Cursor":  c.Cursor.RedisPrefix,
		"Exam":    c.Exam.RedisPrefix,
	} {
		if other, dup := prefixes[p]; dup {
			return fmt.Errorf("%s and %s share RedisPrefix %q", section, other, p)
		}
		prefixes[p] = section
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

/*
====================================
ENVIRONMENT LOADING
====================================
*/

type secretEnv struct {
	JWTSecret     string `env:"EXAMCORE_JWT_SECRET"`
	JWTPrivateKey string `env:"EXAMCORE_JWT_PRIVATE_KEY"`
	JWTPublicKey  string `env:"EXAMCORE_JWT_PUBLIC_KEY"`
	QuotaLevels   string `env:"EXAMCORE_QUOTA_LEVELS"`
}

// LoadConfigFromEnv starts from DefaultConfig, loads an optional .env file
// and overlays EXAMCORE_* variables. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "EXAMCORE_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	var secrets secretEnv
	if err := env.Parse(&secrets); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := applySecrets(&cfg, secrets); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applySecrets(cfg *Config, s secretEnv) error {
	if s.JWTSecret != "" {
		cfg.JWT.PrivateKey = []byte(s.JWTSecret)
	}
	if s.JWTPrivateKey != "" {
		key, err := base64.StdEncoding.DecodeString(s.JWTPrivateKey)
		if err != nil {
			return fmt.Errorf("EXAMCORE_JWT_PRIVATE_KEY must be base64: %w", err)
		}
		cfg.JWT.PrivateKey = key
	}
	if s.JWTPublicKey != "" {
		key, err := base64.StdEncoding.DecodeString(s.JWTPublicKey)
		if err != nil {
			return fmt.Errorf("EXAMCORE_JWT_PUBLIC_KEY must be base64: %w", err)
		}
		cfg.JWT.PublicKey = key
	}
	if s.QuotaLevels != "" {
		levels, err := ParseQuotaLevels(s.QuotaLevels)
		if err != nil {
			return err
		}
		cfg.Quota.Levels = levels
	}
	return nil
}

// ParseQuotaLevels parses "level=daily/monthly" pairs separated by commas.
func ParseQuotaLevels(raw string) (map[string]quota.Limits, error) {
	out := make(map[string]quota.Limits)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, limits, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("quota level %q: want level=daily/monthly", part)
		}
		dailyRaw, monthlyRaw, ok := strings.Cut(limits, "/")
		if !ok {
			return nil, fmt.Errorf("quota level %q: want level=daily/monthly", part)
		}
		daily, err := strconv.ParseInt(strings.TrimSpace(dailyRaw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("quota level %q daily: %w", name, err)
		}
		monthly, err := strconv.ParseInt(strings.TrimSpace(monthlyRaw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("quota level %q monthly: %w", name, err)
		}
		out[strings.TrimSpace(name)] = quota.Limits{Daily: daily, Monthly: monthly}
	}
	if len(out) == 0 {
		return nil, errors.New("quota levels: no entries")
	}
	return out, nil
}
