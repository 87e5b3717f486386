// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	TLS          TLSConfig          `yaml:"tls"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Challenges   ChallengeConfig    `yaml:"challenges"`
	Lockout      LockoutConfig      `yaml:"lockout"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Storage      StorageConfig      `yaml:"storage"`
	Directory    DirectoryConfig    `yaml:"directory"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Health       HealthConfig       `yaml:"health"`
	Auth         AuthConfig         `yaml:"auth"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Timeouts in seconds; zero keeps the net/http defaults
	ReadTimeoutSecs     int `yaml:"read_timeout_secs"`
	WriteTimeoutSecs    int `yaml:"write_timeout_secs"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// RedactUsers replaces usernames in audit events with a stable digest
	RedactUsers bool `yaml:"redact_users"`
}

// RelyingPartyConfig carries the WebAuthn relying-party identity and
// ceremony policy knobs.
type RelyingPartyConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Origin string `yaml:"origin"`

	// UserVerification is required, preferred or discouraged
	UserVerification string `yaml:"user_verification"`

	// Algorithms is a comma-separated COSE algorithm list, e.g. "ES256, RS256"
	Algorithms string `yaml:"algorithms"`

	DiscoverableLogin    bool `yaml:"discoverable_login"`
	DisablePasswordLogin bool `yaml:"disable_password_login"`
}

// ChallengeConfig controls the challenge store
type ChallengeConfig struct {
	TTLSecs   int `yaml:"ttl_secs"`
	Size      int `yaml:"size"`
	SweepSecs int `yaml:"sweep_secs"`
}

// LockoutConfig controls the per-account failure limiter
type LockoutConfig struct {
	WindowSecs   int `yaml:"window_secs"`
	Threshold    int `yaml:"threshold"`
	DurationSecs int `yaml:"duration_secs"`
}

// RateLimitConfig controls per-client HTTP rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health probe endpoints
type HealthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StorageConfig selects the store backend for challenges and credentials
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, pudge
	Path    string `yaml:"path"`    // data directory for pudge
}

// DirectoryConfig seeds the built-in user directory. Deployments that
// integrate a host identity store leave both empty and wire their own
// directory implementation instead.
type DirectoryConfig struct {
	UsersFile string      `yaml:"users_file"`
	Users     []UserEntry `yaml:"users"`
}

// UserEntry is a single account in the built-in directory
type UserEntry struct {
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name"`
}

// AuthConfig controls post-authentication token issuance
type AuthConfig struct {
	JWT *JWTConfig `yaml:"jwt,omitempty"`
}

// JWTConfig controls the JWT generator
type JWTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	PrivateKeyFile string   `yaml:"private_key_file"`
	Issuer         string   `yaml:"issuer"`
	Audience       []string `yaml:"audience"`
	ExpiresMins    int      `yaml:"expires_mins"`
}

// Default returns a configuration suitable for local development:
// memory stores, text logging, no TLS.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8443,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RelyingParty: RelyingPartyConfig{
			ID:               "localhost",
			Name:             "go-passkey",
			Origin:           "https://localhost:8443",
			UserVerification: "required",
			Algorithms:       "ES256",
		},
		Challenges: ChallengeConfig{
			TTLSecs: 120,
			Size:    32,
		},
		Lockout: LockoutConfig{
			WindowSecs:   300,
			Threshold:    5,
			DurationSecs: 900,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	// Server settings
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("PASSKEY_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				port, cfg.Server.Port, err)
		} else if p < 1 || p > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				port, cfg.Server.Port)
		} else {
			cfg.Server.Port = p
		}
	}

	// Logging
	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Relying party identity
	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.RelyingParty.ID = rpID
	}
	if rpName := os.Getenv("PASSKEY_RP_NAME"); rpName != "" {
		cfg.RelyingParty.Name = rpName
	}
	if origin := os.Getenv("PASSKEY_RP_ORIGIN"); origin != "" {
		cfg.RelyingParty.Origin = origin
	}

	// Storage
	if dataDir := os.Getenv("PASSKEY_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	// TLS
	if certFile := os.Getenv("PASSKEY_TLS_CERT"); certFile != "" {
		cfg.TLS.CertFile = certFile
		cfg.TLS.Enabled = true
	}
	if keyFile := os.Getenv("PASSKEY_TLS_KEY"); keyFile != "" {
		cfg.TLS.KeyFile = keyFile
	}

	// JWT
	if keyFile := os.Getenv("PASSKEY_JWT_KEY_FILE"); keyFile != "" {
		if cfg.Auth.JWT == nil {
			cfg.Auth.JWT = &JWTConfig{Enabled: true}
		}
		cfg.Auth.JWT.PrivateKeyFile = keyFile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// Validate relying party identity
	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying_party id must be specified")
	}
	if c.RelyingParty.Name == "" {
		return fmt.Errorf("relying_party name must be specified")
	}
	if c.RelyingParty.Origin == "" {
		return fmt.Errorf("relying_party origin must be specified")
	}
	origin, err := url.Parse(c.RelyingParty.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("invalid relying_party origin: %s", c.RelyingParty.Origin)
	}

	uv := strings.ToLower(c.RelyingParty.UserVerification)
	switch uv {
	case "", "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user_verification: %s (must be required, preferred, or discouraged)",
			c.RelyingParty.UserVerification)
	}

	// Validate challenge settings
	if c.Challenges.TTLSecs < 1 {
		return fmt.Errorf("challenge ttl_secs must be positive")
	}
	if c.Challenges.Size != 0 && c.Challenges.Size < 16 {
		return fmt.Errorf("challenge size must be at least 16 bytes")
	}

	// Validate lockout settings
	if c.Lockout.Threshold < 0 {
		return fmt.Errorf("lockout threshold must not be negative")
	}
	if c.Lockout.Threshold > 0 {
		if c.Lockout.WindowSecs < 1 {
			return fmt.Errorf("lockout window_secs must be positive when lockout is enabled")
		}
		if c.Lockout.DurationSecs < 1 {
			return fmt.Errorf("lockout duration_secs must be positive when lockout is enabled")
		}
	}

	// Validate rate limiting
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	// Validate storage
	switch c.Storage.Backend {
	case "memory":
	case "pudge":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the pudge backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or pudge)", c.Storage.Backend)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate JWT settings
	if c.Auth.JWT != nil && c.Auth.JWT.Enabled {
		if c.Auth.JWT.PrivateKeyFile == "" {
			return fmt.Errorf("auth jwt private_key_file is required when enabled")
		}
		if c.Auth.JWT.ExpiresMins < 0 {
			return fmt.Errorf("auth jwt expires_mins must not be negative")
		}
	}

	return nil
}
