package goSession

import (
	"errors"
	"time"

	"github.com/hvolkner/goSession/session"
)

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Session   SessionConfig
	Autologin AutologinConfig
	Cookie    CookieConfig
	Auth      AuthConfig
	Assert    AssertConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Database  DatabaseConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goSession APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	// Length is how long a non-autologin session stays valid after its
	// last touch.
	Length time.Duration
	// GCInterval is the minimum spacing between garbage-collection sweeps.
	GCInterval time.Duration
	// IPCheckOctets is the number of leading IPv4 octets that must match
	// between the request and the stored session IP. 0 disables the check,
	// 4 requires a full match.
	IPCheckOctets int
	// AnonymousUserID is the sentinel account representing "not logged
	// in". It must exist in the user directory.
	AnonymousUserID int64
}

// AutologinConfig defines a public type used by goSession APIs.
//
// AutologinConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AutologinConfig struct {
	// Allow globally enables persistent logins. When false, persistence
	// requests are ignored and existing autologin sessions expire.
	Allow bool
	// MaxDays bounds the age of autologin sessions and sets the cookie
	// lifetime. 0 means autologin sessions never expire by age (cookies
	// then fall back to 365 days).
	MaxDays int
}

// CookieConfig defines a public type used by goSession APIs.
//
// CookieConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CookieConfig struct {
	// Name is the base cookie name; the engine appends _sid, _uid, _key.
	Name   string
	Path   string
	Domain string
	Secure bool
}

// AuthConfig defines a public type used by goSession APIs.
//
// AuthConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuthConfig struct {
	// Fallback causes every active method to be tried in priority order
	// even when the user's assigned method fails.
	Fallback bool
}

// AssertConfig configures optional signed session assertions (short-lived
// JWTs host applications can hand to backend services).
//
// AssertConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AssertConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// AuditConfig defines a public type used by goSession APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goSession APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DATABASE CONFIG
====================================
*/

// DatabaseConfig defines a public type used by goSession APIs.
//
// DatabaseConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DatabaseConfig struct {
	// Tables configures the SQL table names. An empty Variables name
	// disables session variables entirely.
	Tables session.Tables
	// Bind selects the SQL placeholder style of the configured driver.
	Bind session.BindStyle
	// RedisPrefix namespaces keys when the Redis backend is used.
	RedisPrefix string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration [New] starts from.
// Callers tweak it and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Length:          time.Hour,
			GCInterval:      time.Hour,
			IPCheckOctets:   0,
			AnonymousUserID: 1,
		},
		Autologin: AutologinConfig{
			Allow:   true,
			MaxDays: 365,
		},
		Cookie: CookieConfig{
			Name:   "gosession",
			Path:   "/",
			Secure: true,
		},
		Auth: AuthConfig{
			Fallback: false,
		},
		Assert: AssertConfig{
			Enabled:       false,
			TTL:           5 * time.Minute,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Database: DatabaseConfig{
			Tables:      session.DefaultTables(),
			RedisPrefix: "gs",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Assert.PrivateKey = cloneBytes(cfg.Assert.PrivateKey)
	out.Assert.PublicKey = cloneBytes(cfg.Assert.PublicKey)
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

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Session
	if c.Session.Length <= 0 {
		return errors.New("Session Length must be > 0")
	}
	if c.Session.GCInterval <= 0 {
		return errors.New("Session GCInterval must be > 0")
	}
	if c.Session.IPCheckOctets < 0 || c.Session.IPCheckOctets > 4 {
		return errors.New("Session IPCheckOctets must be between 0 and 4")
	}
	if c.Session.AnonymousUserID <= 0 {
		return errors.New("Session AnonymousUserID must be > 0")
	}

	// Autologin
	if c.Autologin.MaxDays < 0 {
		return errors.New("Autologin MaxDays must be >= 0")
	}

	// Cookie
	if c.Cookie.Name == "" {
		return errors.New("Cookie Name is required")
	}
	if c.Cookie.Path == "" {
		return errors.New("Cookie Path is required")
	}

	// Assertions
	if c.Assert.Enabled {
		if c.Assert.TTL <= 0 {
			return errors.New("Assert TTL must be > 0")
		}
		if c.Assert.SigningMethod != "ed25519" && c.Assert.SigningMethod != "hs256" {
			return errors.New("unsupported Assert signing method")
		}
		if c.Assert.SigningMethod == "ed25519" && len(c.Assert.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if c.Assert.SigningMethod == "ed25519" && len(c.Assert.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if c.Assert.SigningMethod == "hs256" && len(c.Assert.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}

// cookieLifetimeDays returns the cookie expiry in days: MaxDays when set,
// 365 otherwise. Cookie lifetimes stay consistent regardless of whether the
// current session is actually persistent, so a later escalation to
// autologin does not need new cookies.
func (c *Config) cookieLifetimeDays() int {
	if c.Autologin.MaxDays > 0 {
		return c.Autologin.MaxDays
	}
	return 365
}
