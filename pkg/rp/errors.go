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
	"errors"
	"fmt"
)

// Sentinel errors for relying-party operations. Each one represents a
// distinct failure kind; callers match with errors.Is.
var (
	// ErrChallengeInvalid is returned when a challenge token is unknown
	// or has already been consumed.
	ErrChallengeInvalid = errors.New("challenge invalid")

	// ErrChallengeExpired is returned when a challenge's TTL has elapsed.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrOriginMismatch is returned when the client data origin does not
	// exactly match the relying party origin.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrTypeMismatch is returned when the client data ceremony type is
	// wrong for the operation.
	ErrTypeMismatch = errors.New("ceremony type mismatch")

	// ErrRPIDMismatch is returned when the authenticator data RP ID hash
	// does not match the configured relying party ID.
	ErrRPIDMismatch = errors.New("relying party ID mismatch")

	// ErrSignatureInvalid is returned when the assertion signature does
	// not verify against the stored public key.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrAlgorithmNotAllowed is returned when a credential uses a
	// signature algorithm outside the policy allowlist.
	ErrAlgorithmNotAllowed = errors.New("algorithm not allowed")

	// ErrAttestationInvalid is returned when an attestation statement
	// fails its format's verification procedure.
	ErrAttestationInvalid = errors.New("attestation invalid")

	// ErrUserVerificationRequired is returned when policy demands user
	// verification and the authenticator did not assert it.
	ErrUserVerificationRequired = errors.New("user verification required")

	// ErrUserPresenceRequired is returned when the authenticator did not
	// assert user presence.
	ErrUserPresenceRequired = errors.New("user presence required")

	// ErrCredentialUnknown is returned when no stored credential matches
	// the credential ID in an assertion response.
	ErrCredentialUnknown = errors.New("credential unknown")

	// ErrCredentialExists is returned when registering a credential ID
	// that is already stored.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrCredentialRevoked is returned when an assertion references a
	// revoked credential.
	ErrCredentialRevoked = errors.New("credential revoked")

	// ErrCounterRegression is returned when the reported sign counter is
	// not strictly greater than the stored counter (clone detection).
	ErrCounterRegression = errors.New("sign counter regression")

	// ErrCounterConflict is returned by a repository when a compare-and-set
	// counter update observes a stale previous value.
	ErrCounterConflict = errors.New("sign counter conflict")

	// ErrLockedOut is returned when the (username, client) pair is under
	// an active lockout.
	ErrLockedOut = errors.New("locked out")

	// ErrNoCredentials is returned when assertion options are requested
	// for a user with no usable credentials. Callers must not distinguish
	// this from an unknown username in any outward response.
	ErrNoCredentials = errors.New("no credentials")

	// ErrUserNotFound is returned by a UserDirectory when a username does
	// not resolve. It must never leave the service boundary.
	ErrUserNotFound = errors.New("user not found")

	// ErrDiscoverableDisabled is returned when a usernameless assertion
	// is requested but policy does not allow discoverable login.
	ErrDiscoverableDisabled = errors.New("discoverable login disabled")

	// ErrInfrastructure wraps store or I/O failures. It is not an
	// authentication verdict and never counts against the rate limiter.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// CeremonyError wraps a failure with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{Op: op, Err: err}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// Infra wraps a store or I/O failure as an infrastructure error so it is
// distinguishable from a verification verdict.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CeremonyError{Op: op, Err: fmt.Errorf("%w: %v", ErrInfrastructure, err)}
}

// IsVerificationFailure reports whether err is an authentication verdict,
// as opposed to an infrastructure failure. Only verification failures are
// recorded against the rate limiter.
func IsVerificationFailure(err error) bool {
	if err == nil || errors.Is(err, ErrInfrastructure) {
		return false
	}
	for _, kind := range []error{
		ErrChallengeInvalid, ErrChallengeExpired, ErrOriginMismatch,
		ErrTypeMismatch, ErrRPIDMismatch, ErrSignatureInvalid,
		ErrAlgorithmNotAllowed, ErrAttestationInvalid,
		ErrUserVerificationRequired, ErrUserPresenceRequired,
		ErrCredentialUnknown, ErrCredentialExists, ErrCredentialRevoked,
		ErrCounterRegression, ErrNoCredentials, ErrUserNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// FailureKind returns a stable label for an error kind, suitable for audit
// logs and metrics. Raw error text never reaches the outward response.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, ErrChallengeInvalid):
		return "challenge_invalid"
	case errors.Is(err, ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrRPIDMismatch):
		return "rpid_mismatch"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrAlgorithmNotAllowed):
		return "algorithm_not_allowed"
	case errors.Is(err, ErrAttestationInvalid):
		return "attestation_invalid"
	case errors.Is(err, ErrUserVerificationRequired):
		return "user_verification_required"
	case errors.Is(err, ErrUserPresenceRequired):
		return "user_presence_required"
	case errors.Is(err, ErrCredentialUnknown):
		return "credential_unknown"
	case errors.Is(err, ErrCredentialExists):
		return "credential_exists"
	case errors.Is(err, ErrCredentialRevoked):
		return "credential_revoked"
	case errors.Is(err, ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, ErrCounterConflict):
		return "counter_conflict"
	case errors.Is(err, ErrLockedOut):
		return "locked_out"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrDiscoverableDisabled):
		return "discoverable_disabled"
	case errors.Is(err, ErrInfrastructure):
		return "infrastructure"
	default:
		return "unknown"
	}
}
