package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

func Default() *Config {
	return &Config{
		AP: AP{
			AddressTimeout: 60 * time.Second,
		},
		Portal: Portal{
			Port:            3000,
			Body:            "Hello, World!",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Firewall: Firewall{
			Rollback:      true,
			CleanupOnExit: true,
		},
		DNS: DNS{
			Port: 5300,
			TTL:  60,
		},
		MDNS: MDNS{
			Instance: "wifi-manager setup",
			Service:  "_http._tcp",
		},
		Redis: Redis{
			Host:     "127.0.0.1",
			Port:     6379,
			Prefix:   "portal:",
			VisitTTL: time.Hour,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over Default, applies environment overrides and
// validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("AP_NAME"); v != "" {
		c.AP.SSID = v
	}
	if getenv("SKIP_NETWORK_TEST") == "true" {
		c.AP.Force = true
	}
	if v := getenv("PORTAL_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORTAL_PORT: %v", ErrInvalid, err)
		}
		c.Portal.Port = p
	}
	return nil
}

// Validate checks cross-field constraints. It runs after every override,
// including the SSID fallback applied by the caller.
func (c *Config) Validate() error {
	if n := len(c.AP.SSID); n == 0 || n > 32 {
		return fmt.Errorf("%w: ap.ssid must be 1 to 32 bytes, got %d", ErrInvalid, n)
	}
	if !validPort(c.Portal.Port) {
		return fmt.Errorf("%w: portal.port %d out of range", ErrInvalid, c.Portal.Port)
	}
	if c.DNS.Enabled {
		if !validPort(c.DNS.Port) {
			return fmt.Errorf("%w: dns.port %d out of range", ErrInvalid, c.DNS.Port)
		}
		if c.DNS.Port == c.Portal.Port {
			return fmt.Errorf("%w: dns.port must differ from portal.port", ErrInvalid)
		}
	}
	if c.Redis.Enabled && !validPort(c.Redis.Port) {
		return fmt.Errorf("%w: redis.port %d out of range", ErrInvalid, c.Redis.Port)
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "portal:"
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	for name, d := range map[string]time.Duration{
		"ap.address_timeout":      c.AP.AddressTimeout,
		"portal.read_timeout":     c.Portal.ReadTimeout,
		"portal.write_timeout":    c.Portal.WriteTimeout,
		"portal.idle_timeout":     c.Portal.IdleTimeout,
		"portal.shutdown_timeout": c.Portal.ShutdownTimeout,
		"redis.visit_ttl":         c.Redis.VisitTTL,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalid, name)
		}
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// Resolve "env:XXX" to actual secret.
func ResolveSecret(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty secret_ref")
	}
	if strings.HasPrefix(ref, "env:") {
		key := strings.TrimPrefix(ref, "env:")
		v := os.Getenv(key)
		if v == "" {
			return "", fmt.Errorf("env %s is empty", key)
		}
		return v, nil
	}
	// future extension: file:/path
	return ref, nil
}
