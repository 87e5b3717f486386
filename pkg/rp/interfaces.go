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

package rp

import (
	"context"
	"time"
)

// ChallengeStore issues and consumes single-use ceremony challenges.
// Implementations must make Consume an atomic test-and-delete: two
// concurrent consumers of the same token must not both succeed.
type ChallengeStore interface {
	// Issue creates a challenge bound to boundUsername (empty for
	// registration and discoverable flows) with the store's TTL.
	Issue(ctx context.Context, boundUsername string) (*Challenge, error)

	// Consume atomically looks up and deletes the challenge for token.
	// Returns ErrChallengeInvalid for unknown or already-consumed tokens
	// and ErrChallengeExpired (deleting the entry) after the TTL.
	Consume(ctx context.Context, token string) (*Challenge, error)
}

// CredentialRepository persists public-key credential records. There is
// no delete operation; revocation is the only terminal state transition.
type CredentialRepository interface {
	// FindByCredentialID returns the credential with the given ID or
	// ErrCredentialUnknown.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)

	// FindAllForUser returns every credential registered to the user
	// handle, revoked ones included. Empty slice when none exist.
	FindAllForUser(ctx context.Context, userHandle []byte) ([]*Credential, error)

	// Insert stores a new credential. Credential IDs are unique
	// system-wide: an ID already stored for any user fails
	// ErrCredentialExists and leaves the stored record untouched.
	Insert(ctx context.Context, cred *Credential) (*Credential, error)

	// Save updates mutable fields of an existing credential. Fails
	// ErrCredentialUnknown when the ID is not stored.
	Save(ctx context.Context, cred *Credential) (*Credential, error)

	// UpdateSignCount applies a compare-and-set counter update together
	// with the last-used timestamp. Fails ErrCounterConflict when the
	// stored counter no longer equals prev.
	UpdateSignCount(ctx context.Context, credentialID []byte, prev, next uint32, usedAt time.Time) error

	// MarkCloneWarning flags the credential for review after a counter
	// regression. The stored counter is left untouched.
	MarkCloneWarning(ctx context.Context, credentialID []byte) error

	// Revoke terminally disables the credential. Idempotent: revoking an
	// already-revoked credential is a no-op, not an error.
	Revoke(ctx context.Context, credentialID []byte, actor string) error
}

// LockoutGuard implements sliding-window failure counting and time-boxed
// lockout per (username, client) pair. The username is part of the key
// even before identity is confirmed so that an unknown-user response
// cannot be used to bypass the lockout.
type LockoutGuard interface {
	// Check fails ErrLockedOut when the pair is under an active lockout.
	// Called before any verification work.
	Check(ctx context.Context, username, clientID string) error

	// RecordFailure appends a timestamped failure and starts or extends
	// the lockout once the threshold is reached within the window.
	RecordFailure(ctx context.Context, username, clientID string) error

	// RecordSuccess clears all failure and lockout state for the pair.
	RecordSuccess(ctx context.Context, username, clientID string) error
}

// UserDirectory is the host user store, consumed through this narrow
// contract. Implementations must keep the not-found path cost-equivalent
// to the found path; the engines take care of shape.
type UserDirectory interface {
	// LookupByUsername resolves a username to a user reference or
	// ErrUserNotFound.
	LookupByUsername(ctx context.Context, name string) (*User, error)
}

// AuditSink receives structured security events. Implementations decide
// whether usernames are hashed or redacted; raw secrets are never passed.
type AuditSink interface {
	RegistrationSucceeded(ctx context.Context, username string, credentialID []byte)
	LoginSucceeded(ctx context.Context, username string, credentialID []byte)
	LoginFailed(ctx context.Context, username, clientID, kind string)
	LockoutTriggered(ctx context.Context, username, clientID string)
	PasswordLoginBlocked(ctx context.Context, username, clientID string)
	CredentialRevoked(ctx context.Context, username, actor string, credentialID []byte)
}

// TokenGenerator optionally issues a post-authentication token carried in
// the verdict. If absent, the verdict carries no token.
type TokenGenerator interface {
	GenerateToken(ctx context.Context, user *User, cred *Credential) (string, error)
}

// NopAuditSink discards all events.
type NopAuditSink struct{}

func (NopAuditSink) RegistrationSucceeded(context.Context, string, []byte)     {}
func (NopAuditSink) LoginSucceeded(context.Context, string, []byte)            {}
func (NopAuditSink) LoginFailed(context.Context, string, string, string)       {}
func (NopAuditSink) LockoutTriggered(context.Context, string, string)          {}
func (NopAuditSink) PasswordLoginBlocked(context.Context, string, string)      {}
func (NopAuditSink) CredentialRevoked(context.Context, string, string, []byte) {}
