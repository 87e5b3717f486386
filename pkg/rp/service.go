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
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
)

// Verdict codes surfaced to callers. Every verification failure collapses
// to VerdictFailed so the outward response never reveals why
// authentication failed; lockout and infrastructure are the only
// distinguishable outcomes.
const (
	VerdictOK        = "ok"
	VerdictFailed    = "authentication_failed"
	VerdictLockedOut = "locked_out"
	VerdictTryLater  = "try_later"
)

// Verdict is the outward authentication decision.
type Verdict struct {
	// Authenticated reports whether the ceremony succeeded.
	Authenticated bool `json:"authenticated"`

	// Code is one of the Verdict* constants.
	Code string `json:"code"`

	// Username is set only on success.
	Username string `json:"username,omitempty"`

	// Credential is the credential that authenticated, on success.
	Credential *Credential `json:"-"`

	// Token is a post-authentication token when a TokenGenerator is
	// configured.
	Token string `json:"token,omitempty"`
}

// LoginRequest is a single authentication attempt presented to the
// backend chain.
type LoginRequest struct {
	// Username is empty for the discoverable flow.
	Username string

	// ClientID identifies the network origin of the attempt. Opaque.
	ClientID string

	// ChallengeToken correlates the attempt with the options phase.
	ChallengeToken string

	// Assertion is the parsed WebAuthn assertion, nil for non-passkey
	// attempts.
	Assertion *protocol.ParsedCredentialAssertionData

	// PasswordPresented marks an attempt carrying password material.
	// The password itself never enters this package.
	PasswordPresented bool
}

// Service is the authentication-service adapter around the ceremony
// engines: it enforces lockout before verification, records failures and
// successes with the rate limiter, emits audit events, and collapses
// failure detail into an outward verdict.
type Service struct {
	policy       *Policy
	registration *RegistrationEngine
	assertion    *AssertionEngine
	credentials  CredentialRepository
	lockout      LockoutGuard
	directory    UserDirectory
	audit        AuditSink
	tokens       TokenGenerator
}

// ServiceParams contains dependencies for creating a Service.
type ServiceParams struct {
	// Policy is the relying-party policy (required).
	Policy *Policy

	// Challenges is the challenge store (required).
	Challenges ChallengeStore

	// Credentials is the credential repository (required).
	Credentials CredentialRepository

	// Lockout is the rate limiter / lockout guard (required).
	Lockout LockoutGuard

	// Directory is the host user directory (required).
	Directory UserDirectory

	// Audit receives security events. Defaults to NopAuditSink.
	Audit AuditSink

	// Tokens optionally issues post-authentication tokens.
	Tokens TokenGenerator
}

// NewService creates a new relying-party service with the provided
// dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Policy == nil {
		return nil, fmt.Errorf("policy is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential repository is required")
	}
	if params.Lockout == nil {
		return nil, fmt.Errorf("lockout guard is required")
	}
	if params.Directory == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if params.Audit == nil {
		params.Audit = NopAuditSink{}
	}

	return &Service{
		policy:       params.Policy,
		registration: NewRegistrationEngine(params.Policy, params.Challenges, params.Credentials),
		assertion:    NewAssertionEngine(params.Policy, params.Challenges, params.Credentials, params.Directory),
		credentials:  params.Credentials,
		lockout:      params.Lockout,
		directory:    params.Directory,
		audit:        params.Audit,
		tokens:       params.Tokens,
	}, nil
}

// Policy returns the service policy.
func (s *Service) Policy() *Policy {
	return s.policy
}

// BeginRegistration builds creation options for an already-authenticated
// user, excluding their existing credentials.
func (s *Service) BeginRegistration(ctx context.Context, user *User) (*RegistrationOptions, error) {
	existing, err := s.credentials.FindAllForUser(ctx, user.Handle)
	if err != nil {
		return nil, Infra("begin registration", err)
	}
	return s.registration.BeginRegistration(ctx, user, existing)
}

// CompleteRegistration verifies the attestation response and persists the
// new credential, emitting an audit event on success.
func (s *Service) CompleteRegistration(ctx context.Context, response *protocol.ParsedCredentialCreationData, token string, user *User, label string) (*Credential, error) {
	cred, err := s.registration.CompleteRegistration(ctx, response, token, user, label)
	if err != nil {
		return nil, err
	}
	s.audit.RegistrationSucceeded(ctx, user.Name, cred.ID)
	return cred, nil
}

// BeginLogin builds assertion options for username, or for the
// discoverable flow when username is empty.
func (s *Service) BeginLogin(ctx context.Context, username string) (*AssertionOptions, error) {
	return s.assertion.BeginAssertion(ctx, username)
}

// Login runs one passkey authentication attempt end to end: lockout is
// checked before any verification work, verification failures are
// recorded against the limiter, infrastructure failures are not, and a
// success clears the failure history.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*Verdict, error) {
	if err := s.lockout.Check(ctx, req.Username, req.ClientID); err != nil {
		if errors.Is(err, ErrLockedOut) {
			s.audit.LoginFailed(ctx, req.Username, req.ClientID, FailureKind(err))
			return &Verdict{Code: VerdictLockedOut}, nil
		}
		return &Verdict{Code: VerdictTryLater}, nil
	}

	var expected *User
	if req.Username != "" {
		user, err := s.directory.LookupByUsername(ctx, req.Username)
		switch {
		case err == nil:
			expected = user
		case errors.Is(err, ErrUserNotFound):
			// Fall through to verification with no expected user; the
			// credential lookup fails the same way a wrong credential
			// does, keeping shape and cost uniform.
		default:
			return &Verdict{Code: VerdictTryLater}, nil
		}
	}

	verified, err := s.assertion.CompleteAssertion(ctx, req.Assertion, req.ChallengeToken, expected)
	if err != nil {
		return s.failLogin(ctx, req, err), nil
	}

	if err := s.lockout.RecordSuccess(ctx, verified.Credential.Username, req.ClientID); err != nil {
		// Bookkeeping only; the authentication decision stands.
		_ = err
	}
	s.audit.LoginSucceeded(ctx, verified.Credential.Username, verified.Credential.ID)

	verdict := &Verdict{
		Authenticated: true,
		Code:          VerdictOK,
		Username:      verified.Credential.Username,
		Credential:    verified.Credential,
	}
	if s.tokens != nil {
		user := expected
		if user == nil {
			user = &User{Handle: verified.Credential.UserHandle, Name: verified.Credential.Username}
		}
		token, err := s.tokens.GenerateToken(ctx, user, verified.Credential)
		if err != nil {
			return &Verdict{Code: VerdictTryLater}, nil
		}
		verdict.Token = token
	}
	return verdict, nil
}

// failLogin maps a ceremony failure to an outward verdict and updates the
// rate limiter. Only verification failures count; store failures do not.
func (s *Service) failLogin(ctx context.Context, req *LoginRequest, err error) *Verdict {
	kind := FailureKind(err)
	s.audit.LoginFailed(ctx, req.Username, req.ClientID, kind)

	if errors.Is(err, ErrInfrastructure) {
		return &Verdict{Code: VerdictTryLater}
	}

	if IsVerificationFailure(err) {
		_ = s.lockout.RecordFailure(ctx, req.Username, req.ClientID)
		if s.lockout.Check(ctx, req.Username, req.ClientID) != nil {
			s.audit.LockoutTriggered(ctx, req.Username, req.ClientID)
		}
	}
	return &Verdict{Code: VerdictFailed}
}

// Credentials lists a user's credentials, revoked ones included.
func (s *Service) Credentials(ctx context.Context, username string) ([]*Credential, error) {
	user, err := s.directory.LookupByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return []*Credential{}, nil
		}
		return nil, Infra("list credentials", err)
	}
	return s.credentials.FindAllForUser(ctx, user.Handle)
}

// Revoke terminally disables a credential and emits an audit event.
// Idempotent.
func (s *Service) Revoke(ctx context.Context, credentialID []byte, actor string) error {
	cred, err := s.credentials.FindByCredentialID(ctx, credentialID)
	if err != nil {
		return err
	}
	if err := s.credentials.Revoke(ctx, credentialID, actor); err != nil {
		return err
	}
	s.audit.CredentialRevoked(ctx, cred.Username, actor, credentialID)
	return nil
}

// Relabel updates a credential's user-assigned label.
func (s *Service) Relabel(ctx context.Context, credentialID []byte, label string) error {
	cred, err := s.credentials.FindByCredentialID(ctx, credentialID)
	if err != nil {
		return err
	}
	cred.Label = label
	_, err = s.credentials.Save(ctx, cred)
	return err
}
