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

// Package audit provides a structured-log audit sink for ceremony and
// login events. Usernames can be redacted to a keyed-less blake2b-128
// digest when the deployment must not persist identities in logs;
// credential IDs are always logged as hex, never key material.
package audit

import (
	"context"
	"encoding/hex"
	"log/slog"

	"golang.org/x/crypto/blake2b"
)

// Logger emits audit events through a slog.Logger.
type Logger struct {
	log    *slog.Logger
	redact bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithRedaction replaces usernames with a blake2b-128 hex digest. The
// digest is stable, so events for the same account still correlate.
func WithRedaction() Option {
	return func(l *Logger) {
		l.redact = true
	}
}

// NewLogger creates an audit sink writing to the given structured
// logger. A nil logger falls back to slog.Default().
func NewLogger(log *slog.Logger, opts ...Option) *Logger {
	if log == nil {
		log = slog.Default()
	}
	l := &Logger{log: log}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegistrationSucceeded records a completed credential registration.
func (l *Logger) RegistrationSucceeded(ctx context.Context, username string, credentialID []byte) {
	l.log.InfoContext(ctx, "registration succeeded",
		"event", "registration_succeeded",
		"user", l.username(username),
		"credential_id", hex.EncodeToString(credentialID))
}

// LoginSucceeded records a successful passkey login.
func (l *Logger) LoginSucceeded(ctx context.Context, username string, credentialID []byte) {
	l.log.InfoContext(ctx, "login succeeded",
		"event", "login_succeeded",
		"user", l.username(username),
		"credential_id", hex.EncodeToString(credentialID))
}

// LoginFailed records a failed login with its failure kind. The kind is
// a stable taxonomy label, never raw error text.
func (l *Logger) LoginFailed(ctx context.Context, username, clientID, kind string) {
	l.log.WarnContext(ctx, "login failed",
		"event", "login_failed",
		"user", l.username(username),
		"client", clientID,
		"kind", kind)
}

// LockoutTriggered records that repeated failures locked an account key.
func (l *Logger) LockoutTriggered(ctx context.Context, username, clientID string) {
	l.log.WarnContext(ctx, "lockout triggered",
		"event", "lockout_triggered",
		"user", l.username(username),
		"client", clientID)
}

// PasswordLoginBlocked records a password attempt against an account
// where password login is administratively disabled.
func (l *Logger) PasswordLoginBlocked(ctx context.Context, username, clientID string) {
	l.log.WarnContext(ctx, "password login blocked",
		"event", "password_login_blocked",
		"user", l.username(username),
		"client", clientID)
}

// CredentialRevoked records a credential revocation and its actor.
func (l *Logger) CredentialRevoked(ctx context.Context, username, actor string, credentialID []byte) {
	l.log.InfoContext(ctx, "credential revoked",
		"event", "credential_revoked",
		"user", l.username(username),
		"actor", actor,
		"credential_id", hex.EncodeToString(credentialID))
}

func (l *Logger) username(name string) string {
	if !l.redact || name == "" {
		return name
	}
	sum := blake2b.Sum256([]byte(name))
	return hex.EncodeToString(sum[:16])
}
