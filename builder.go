package goSession

import (
	"database/sql"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hvolkner/goSession/jwt"
	"github.com/hvolkner/goSession/session"
)

// Builder defines a public type used by goSession APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	db    *sql.DB
	redis redis.UniversalClient
	store session.Store

	directory UserDirectory
	methods   []MethodSpec
	drivers   map[string]MethodFactory
	auditSink AuditSink

	clock func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config:  defaultConfig(),
		drivers: BuiltinDrivers(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDB selects the SQL backend. The handle's driver must already be
// registered; pass the matching placeholder style through
// [DatabaseConfig.Bind].
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithRedis selects the Redis backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore injects a custom [session.Store], overriding both WithDB and
// WithRedis.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithDirectory describes the withdirectory operation and its observable behavior.
//
// WithDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithMethods declares the auth methods available to this engine.
func (b *Builder) WithMethods(specs ...MethodSpec) *Builder {
	b.methods = append(b.methods, specs...)
	return b
}

// WithDriver registers an additional auth-method driver under name,
// alongside the builtin ones.
func (b *Builder) WithDriver(name string, factory MethodFactory) *Builder {
	b.drivers[name] = factory
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the engine's notion of now. Intended for tests that
// simulate expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
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

	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	// -------- SESSION STORE --------
	var store session.Store
	switch {
	case b.store != nil:
		store = b.store
	case b.db != nil:
		store = session.NewSQLStore(b.db, cfg.Database.Tables, cfg.Database.Bind)
	case b.redis != nil:
		store = session.NewRedisStore(b.redis, cfg.Database.RedisPrefix)
	default:
		return nil, errors.New("a storage backend is required: WithDB, WithRedis or WithStore")
	}

	// -------- AUTH METHOD REGISTRY --------
	registry, err := NewRegistry(MethodDeps{Directory: b.directory}, b.methods, b.drivers)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		cfg:       cfg,
		store:     store,
		directory: b.directory,
		registry:  registry,
		now:       time.Now,
	}
	if b.clock != nil {
		engine.now = b.clock
	}

	engine.auth = NewAuthenticator(b.directory, registry, store, cfg.Auth.Fallback)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.Assert.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Assert.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Assert.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Assert.PrivateKey),
			PublicKey:     cloneBytes(cfg.Assert.PublicKey),
			Issuer:        cfg.Assert.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.assert = jm
	}

	b.built = true

	return engine, nil
}
