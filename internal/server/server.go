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

// Package server assembles the relying-party core and its ambient
// services into a runnable HTTP server.
package server

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/internal/directory"
	"github.com/jeremyhahn/go-passkey/pkg/audit"
	"github.com/jeremyhahn/go-passkey/pkg/correlation"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey/pkg/rp"
	rphttp "github.com/jeremyhahn/go-passkey/pkg/rp/http"
	"github.com/jeremyhahn/go-passkey/pkg/rp/pudgestore"
)

// Server is the standalone passkey relying-party server.
type Server struct {
	cfg       *config.Config
	log       *logging.Logger
	server    *http.Server
	tlsConfig *tls.Config
	checker   *health.Checker
	limiter   *ratelimit.Limiter
	collector *metrics.ResourceCollector
	service   *rp.Service
	directory *directory.Static

	// closers release store resources on shutdown, in order
	closers []func() error
}

// New builds a server from configuration. The configuration must have
// passed Validate.
func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	log := logging.New(cfg.Logging.Format, cfg.Logging.Level, os.Stderr)

	policy, err := rp.NewPolicy(rp.Policy{
		RPID:                 cfg.RelyingParty.ID,
		RPName:               cfg.RelyingParty.Name,
		Origin:               cfg.RelyingParty.Origin,
		UserVerification:     cfg.RelyingParty.UserVerification,
		Algorithms:           cfg.RelyingParty.Algorithms,
		DiscoverableLogin:    cfg.RelyingParty.DiscoverableLogin,
		DisablePasswordLogin: cfg.RelyingParty.DisablePasswordLogin,
		ChallengeTTL:         time.Duration(cfg.Challenges.TTLSecs) * time.Second,
		ChallengeSize:        cfg.Challenges.Size,
		RateLimitWindow:      time.Duration(cfg.Lockout.WindowSecs) * time.Second,
		LockoutThreshold:     cfg.Lockout.Threshold,
		LockoutDuration:      time.Duration(cfg.Lockout.DurationSecs) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid relying-party policy: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		checker: health.NewChecker(),
	}

	challenges, credentials, err := s.buildStores(policy)
	if err != nil {
		return nil, err
	}

	users, err := buildDirectory(&cfg.Directory)
	if err != nil {
		return nil, err
	}
	s.directory = users

	auditOpts := []audit.Option{}
	if cfg.Logging.RedactUsers {
		auditOpts = append(auditOpts, audit.WithRedaction())
	}

	tokens, err := buildTokenGenerator(cfg.Auth.JWT)
	if err != nil {
		return nil, err
	}

	service, err := rp.NewService(rp.ServiceParams{
		Policy:      policy,
		Challenges:  challenges,
		Credentials: credentials,
		Lockout:     rp.NewLockoutGuardFromPolicy(policy),
		Directory:   users,
		Audit:       observedSink{audit.NewLogger(log.Slog(), auditOpts...)},
		Tokens:      tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build relying-party service: %w", err)
	}
	s.service = service

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		})
	}

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		return nil, err
	}
	s.tlsConfig = tlsConfig

	router := s.setupRouter()

	readTimeout := 15 * time.Second
	if cfg.Server.ReadTimeoutSecs > 0 {
		readTimeout = time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second
	}
	writeTimeout := 15 * time.Second
	if cfg.Server.WriteTimeoutSecs > 0 {
		writeTimeout = time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
		TLSConfig:    tlsConfig,
	}

	return s, nil
}

// buildStores creates the challenge store and credential repository for
// the configured storage backend and registers their health checks.
func (s *Server) buildStores(policy *rp.Policy) (rp.ChallengeStore, rp.CredentialRepository, error) {
	switch s.cfg.Storage.Backend {
	case "pudge":
		challenges, err := pudgestore.NewChallengeStore(
			s.cfg.Storage.Path, policy.ChallengeSize, policy.ChallengeTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open challenge store: %w", err)
		}
		credentials, err := pudgestore.NewCredentialStore(s.cfg.Storage.Path)
		if err != nil {
			_ = challenges.Close()
			return nil, nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		s.closers = append(s.closers, challenges.Close, credentials.Close)

		s.checker.RegisterCheck("challenge_store", func(ctx context.Context) health.CheckResult {
			if _, err := challenges.Count(); err != nil {
				return health.CheckResult{Name: "challenge_store", Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Name: "challenge_store", Status: health.StatusHealthy}
		})
		s.checker.RegisterCheck("credential_store", func(ctx context.Context) health.CheckResult {
			if _, err := credentials.Count(); err != nil {
				return health.CheckResult{Name: "credential_store", Status: health.StatusUnhealthy, Error: err.Error()}
			}
			return health.CheckResult{Name: "credential_store", Status: health.StatusHealthy}
		})

		if s.cfg.Metrics.Enabled {
			metrics.RegisterChallengeGauge(func() float64 {
				count, err := challenges.Count()
				if err != nil {
					return 0
				}
				return float64(count)
			})
			if count, err := credentials.Count(); err == nil {
				metrics.SetCredentialsTotal("pudge", float64(count))
			}
		}
		return challenges, credentials, nil

	default: // memory; Validate rejects anything else
		challenges := rp.NewChallengeStoreFromPolicy(policy)
		if s.cfg.Challenges.SweepSecs > 0 {
			challenges.StartSweeper(time.Duration(s.cfg.Challenges.SweepSecs) * time.Second)
		}
		credentials := rp.NewMemoryCredentialRepository()
		s.closers = append(s.closers, func() error {
			challenges.Stop()
			return nil
		})

		if s.cfg.Metrics.Enabled {
			metrics.RegisterChallengeGauge(func() float64 {
				return float64(challenges.Count())
			})
			metrics.SetCredentialsTotal("memory", float64(credentials.Count()))
		}
		return challenges, credentials, nil
	}
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(correlation.Middleware)
	if s.cfg.Metrics.Enabled {
		metrics.Enable()
		r.Use(metrics.HTTPMiddleware)
	} else {
		metrics.Disable()
	}
	if s.limiter != nil {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	if s.cfg.Health.Enabled {
		r.Get("/health/live", health.LiveHandler(s.checker))
		r.Get("/health/ready", health.ReadyHandler(s.checker))
		r.Get("/health/startup", health.StartupHandler(s.checker))
	}

	if s.cfg.Metrics.Enabled {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	handler := rphttp.NewHandler(s.service, s.directory).WithLogger(s.log.Slog())
	r.Route("/api/v1/passkey", func(r chi.Router) {
		rphttp.MountChi(r, handler)
	})

	return r
}

// buildDirectory seeds the built-in user directory from configuration.
func buildDirectory(cfg *config.DirectoryConfig) (*directory.Static, error) {
	entries := make([]directory.Entry, 0, len(cfg.Users))
	for _, user := range cfg.Users {
		entries = append(entries, directory.Entry{
			Username:    user.Username,
			DisplayName: user.DisplayName,
		})
	}

	if cfg.UsersFile != "" {
		fileEntries, err := directory.LoadFile(cfg.UsersFile)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}

	return directory.NewStatic(entries...), nil
}

// buildTokenGenerator creates the JWT generator when configured, nil
// otherwise.
func buildTokenGenerator(cfg *config.JWTConfig) (rp.TokenGenerator, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	key, err := loadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT signing key: %w", err)
	}

	expiresIn := time.Duration(cfg.ExpiresMins) * time.Minute
	return rp.NewJWTGenerator(&rp.JWTGeneratorConfig{
		PrivateKey: key,
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		ExpiresIn:  expiresIn,
	})
}

// loadPrivateKey reads a PEM-encoded PKCS#8, EC or PKCS#1 private key.
func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	// #nosec G304 - Key file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format in %s", path)
}

// Start starts the server. Blocks until the listener stops.
func (s *Server) Start() error {
	if s.cfg.Metrics.Enabled {
		s.collector = metrics.StartResourceCollector(context.Background(), 15*time.Second)
	}
	s.checker.MarkStarted()

	if s.tlsConfig != nil {
		s.log.Info("Starting HTTPS server",
			"addr", s.server.Addr,
			"rp_id", s.cfg.RelyingParty.ID,
			"storage", s.cfg.Storage.Backend)
		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.log.Info("Starting HTTP server",
		"addr", s.server.Addr,
		"rp_id", s.cfg.RelyingParty.ID,
		"storage", s.cfg.Storage.Backend)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and releases store resources.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down server")
	s.checker.MarkNotStarted()

	shutdownErr := s.server.Shutdown(ctx)

	if s.collector != nil {
		s.collector.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	for _, closeStore := range s.closers {
		s.log.MaybeError(closeStore())
	}

	if shutdownErr != nil {
		return fmt.Errorf("failed to shutdown server: %w", shutdownErr)
	}
	s.log.Info("Server stopped")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the assembled HTTP handler, used by tests to drive
// the server without a listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
