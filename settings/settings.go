// Package settings loads engine configuration from the flat name/value
// settings typical of web-application control panels. A [Provider] abstracts
// the source; TOML files and plain maps are built in, and [Apply] maps the
// well-known setting names onto a goSession config.
package settings

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	goSession "github.com/hvolkner/goSession"
)

// Provider defines a public type used by goSession APIs.
type Provider interface {
	// Get returns the raw value for a setting name and whether it exists.
	Get(name string) (string, bool)
}

// MapProvider serves settings from a plain map.
type MapProvider map[string]string

// Get describes the get operation and its observable behavior.
func (m MapProvider) Get(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// FileProvider serves settings parsed from a flat TOML file.
type FileProvider struct {
	values map[string]string
}

// LoadFile parses a TOML file of scalar settings. Nested tables are
// flattened with dots, so `[cookie] name = "x"` is reachable as
// "cookie.name".
//
// LoadFile may return an error when input validation, dependency calls, or security checks fail.
func LoadFile(path string) (*FileProvider, error) {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	p := &FileProvider{values: make(map[string]string)}
	p.flatten("", raw)
	return p, nil
}

func (p *FileProvider) flatten(prefix string, raw map[string]interface{}) {
	for k, v := range raw {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			p.flatten(name, val)
		case string:
			p.values[name] = val
		case bool:
			p.values[name] = strconv.FormatBool(val)
		case int64:
			p.values[name] = strconv.FormatInt(val, 10)
		case float64:
			p.values[name] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
}

// Get describes the get operation and its observable behavior.
func (p *FileProvider) Get(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Apply overlays the well-known session settings from p onto cfg. Settings
// absent from the provider leave the corresponding field unchanged, so cfg
// should arrive pre-filled with defaults. Durations are given in seconds,
// max_autologin_time in days.
//
// Apply may return an error when input validation, dependency calls, or security checks fail.
func Apply(p Provider, cfg *goSession.Config) error {
	if v, ok := p.Get("session_length"); ok {
		secs, err := parseInt(v, "session_length")
		if err != nil {
			return err
		}
		cfg.Session.Length = time.Duration(secs) * time.Second
	}
	if v, ok := p.Get("session_gc"); ok {
		secs, err := parseInt(v, "session_gc")
		if err != nil {
			return err
		}
		cfg.Session.GCInterval = time.Duration(secs) * time.Second
	}
	if v, ok := p.Get("ip_check"); ok {
		octets, err := parseInt(v, "ip_check")
		if err != nil {
			return err
		}
		cfg.Session.IPCheckOctets = int(octets)
	}
	if v, ok := p.Get("anonymous_user_id"); ok {
		id, err := parseInt(v, "anonymous_user_id")
		if err != nil {
			return err
		}
		cfg.Session.AnonymousUserID = id
	}
	if v, ok := p.Get("allow_autologin"); ok {
		cfg.Autologin.Allow = parseBool(v)
	}
	if v, ok := p.Get("max_autologin_time"); ok {
		days, err := parseInt(v, "max_autologin_time")
		if err != nil {
			return err
		}
		cfg.Autologin.MaxDays = int(days)
	}
	if v, ok := p.Get("auth_fallback"); ok {
		cfg.Auth.Fallback = parseBool(v)
	}
	if v, ok := p.Get("cookie_name"); ok {
		cfg.Cookie.Name = v
	}
	if v, ok := p.Get("cookie_path"); ok {
		cfg.Cookie.Path = v
	}
	if v, ok := p.Get("cookie_domain"); ok {
		cfg.Cookie.Domain = v
	}
	if v, ok := p.Get("cookie_secure"); ok {
		cfg.Cookie.Secure = parseBool(v)
	}
	return nil
}

func parseInt(v, name string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("settings: %s: %w", name, err)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
