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

package http

import (
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/rp"
)

// HeaderChallengeToken carries the opaque challenge token between the
// begin and finish calls of a ceremony.
const HeaderChallengeToken = "X-Challenge-Token"

// HeaderUsername identifies the account on finish calls.
const HeaderUsername = "X-Username"

// HeaderCredentialLabel optionally names a credential at registration.
const HeaderCredentialLabel = "X-Credential-Label"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// Username is the account registering a passkey (required). The
	// route must be mounted behind the host's authentication middleware;
	// this handler does not establish identity.
	Username string `json:"username"`
}

// BeginLoginRequest is the request body for starting authentication.
type BeginLoginRequest struct {
	// Username selects the account. Empty (or an empty body) requests
	// the discoverable, usernameless flow.
	Username string `json:"username,omitempty"`
}

// RegistrationResponse is returned after a completed registration.
type RegistrationResponse struct {
	// CredentialID is the base64url-encoded credential ID.
	CredentialID string `json:"credential_id"`

	// Label is the stored credential label.
	Label string `json:"label"`
}

// LoginResponse is the outward authentication verdict.
type LoginResponse struct {
	// Authenticated reports whether the ceremony succeeded.
	Authenticated bool `json:"authenticated"`

	// Code is one of the rp.Verdict* codes.
	Code string `json:"code"`

	// Username is set only on success.
	Username string `json:"username,omitempty"`

	// Token is a post-authentication token when the service issues one.
	Token string `json:"token,omitempty"`
}

// CredentialSummary is one entry in a credential listing. Key material
// never leaves the service.
type CredentialSummary struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	CreatedAt    time.Time `json:"created_at"`
	LastUsedAt   time.Time `json:"last_used_at,omitempty"`
	Revoked      bool      `json:"revoked"`
	CloneWarning bool      `json:"clone_warning"`
}

// RevokeRequest is the request body for revoking a credential.
type RevokeRequest struct {
	// Actor records who requested the revocation.
	Actor string `json:"actor,omitempty"`
}

// ErrorResponse is the response format for errors. Code is deliberately
// coarse; ceremony failure detail stays in the audit trail.
type ErrorResponse struct {
	// Code is one of the ErrorCode* constants.
	Code string `json:"code"`
}

// Error codes returned in ErrorResponse.
const (
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeFailed         = rp.VerdictFailed
	ErrorCodeLockedOut      = rp.VerdictLockedOut
	ErrorCodeTryLater       = rp.VerdictTryLater
)
