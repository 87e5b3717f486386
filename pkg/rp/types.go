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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// User identifies an account in the host user directory. The directory
// owns the account; the relying party only references it.
type User struct {
	// Handle is the WebAuthn user handle (opaque, max 64 bytes).
	Handle []byte `json:"handle"`

	// Name is the username the host directory resolves.
	Name string `json:"name"`

	// DisplayName is shown by authenticator UIs.
	DisplayName string `json:"display_name"`
}

// Credential is one registered authenticator for one user. Credentials
// are created only by a completed registration ceremony, mutated only by
// assertion bookkeeping or revocation, and never physically deleted.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Unique across the whole relying party.
	ID []byte `json:"id"`

	// UserHandle is the WebAuthn user handle this credential belongs to.
	UserHandle []byte `json:"user_handle"`

	// Username is the owning account's name in the host directory.
	Username string `json:"username"`

	// PublicKey is the credential public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// Algorithm is the COSE signature algorithm identifier.
	Algorithm int64 `json:"algorithm"`

	// SignCount is the authenticator-reported signature counter.
	// Zero means the authenticator does not maintain one.
	SignCount uint32 `json:"sign_count"`

	// Label is the user-assigned, mutable display label.
	Label string `json:"label"`

	// AttestationType records how the credential was attested.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports reported at registration.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// Flags captures the authenticator flags observed at registration.
	Flags CredentialFlags `json:"flags"`

	// AAGUID identifies the authenticator model.
	AAGUID []byte `json:"aaguid,omitempty"`

	// CloneWarning is set when a sign-counter regression flagged this
	// credential for review. It is never cleared automatically.
	CloneWarning bool `json:"clone_warning"`

	// CreatedAt is when the credential was registered. Immutable.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is updated on every successful assertion.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`

	// Revoked marks the credential terminally unusable.
	Revoked bool `json:"revoked"`

	// RevokedAt is when revocation happened. Set exactly once.
	RevokedAt time.Time `json:"revoked_at,omitempty"`

	// RevokedBy records the actor that revoked the credential.
	RevokedBy string `json:"revoked_by,omitempty"`
}

// Descriptor returns the credential as an allow/exclude-list entry.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transport,
	}
}

// CredentialFlags captures authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the ceremony.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// Challenge is a single-use, short-lived ceremony challenge. The token is
// the caller-facing handle; the raw bytes are embedded in ceremony
// options and never act as the sole secret.
type Challenge struct {
	// Token is the opaque correlation handle returned to the caller.
	Token string `json:"token"`

	// Bytes is the raw random challenge embedded in ceremony options.
	Bytes []byte `json:"bytes"`

	// Username binds the challenge to an account for non-discoverable
	// assertion flows. Empty for registration and discoverable login.
	Username string `json:"username,omitempty"`

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time `json:"issued_at"`

	// TTL bounds the challenge lifetime.
	TTL time.Duration `json:"ttl"`
}

// Expired reports whether the challenge TTL has elapsed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.IssuedAt.Add(c.TTL))
}

// RegistrationOptions pairs a creation-options document with the opaque
// challenge token the caller hands back on the finish call.
type RegistrationOptions struct {
	Options *protocol.CredentialCreation `json:"options"`
	Token   string                       `json:"token"`
}

// AssertionOptions pairs a request-options document with the opaque
// challenge token the caller hands back on the finish call.
type AssertionOptions struct {
	Options *protocol.CredentialAssertion `json:"options"`
	Token   string                        `json:"token"`
}

// VerifiedAssertion is the result of a successful login ceremony.
type VerifiedAssertion struct {
	// Credential is the stored credential, with sign count and
	// last-used-at already updated.
	Credential *Credential

	// Source is the parsed assertion the verdict was derived from.
	Source *protocol.ParsedCredentialAssertionData

	// UserVerified reports whether the authenticator asserted UV.
	UserVerified bool

	// VerifiedAt is when verification completed.
	VerifiedAt time.Time
}
