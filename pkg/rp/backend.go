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

import "context"

// Backend is one authentication method in a chain. Authenticate returns
// matched=false when the request is not shaped for this backend, letting
// the chain move on; once a backend matches, its verdict is final.
type Backend interface {

	// Name returns a stable identifier for logs and audit.
	Name() string

	// Authenticate attempts the request. When matched is false the
	// verdict is ignored and the next backend is consulted.
	Authenticate(ctx context.Context, req *LoginRequest) (matched bool, verdict *Verdict, err error)
}

// Chain consults backends in order and returns the verdict of the first
// one that matches the request shape.
type Chain struct {
	backends []Backend
}

// NewChain creates an authentication chain. Backends are consulted in
// the order given.
func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

// Authenticate dispatches the request to the first matching backend. A
// request no backend recognizes is not authenticated.
func (c *Chain) Authenticate(ctx context.Context, req *LoginRequest) (*Verdict, error) {
	for _, backend := range c.backends {
		matched, verdict, err := backend.Authenticate(ctx, req)
		if !matched {
			continue
		}
		if err != nil {
			return &Verdict{Code: VerdictTryLater}, err
		}
		return verdict, nil
	}
	return &Verdict{Code: VerdictFailed}, nil
}

// PasskeyBackend authenticates requests carrying a WebAuthn assertion.
type PasskeyBackend struct {
	service *Service
}

// NewPasskeyBackend creates a passkey backend over the service.
func NewPasskeyBackend(service *Service) *PasskeyBackend {
	return &PasskeyBackend{service: service}
}

// Name implements Backend.
func (b *PasskeyBackend) Name() string {
	return "passkey"
}

// Authenticate implements Backend. Matches any request with an assertion
// payload.
func (b *PasskeyBackend) Authenticate(ctx context.Context, req *LoginRequest) (bool, *Verdict, error) {
	if req.Assertion == nil {
		return false, nil, nil
	}
	verdict, err := b.service.Login(ctx, req)
	return true, verdict, err
}

// PasswordBackend is the legacy password method's slot in the chain.
// When the policy disables password login it matches password-shaped
// requests and rejects them with the same generic verdict a wrong
// password would produce, so callers cannot probe whether passwords are
// accepted. When password login is enabled the actual verification is
// delegated to the host application's verifier.
type PasswordBackend struct {
	policy *Policy
	audit  AuditSink
	verify PasswordVerifier
}

// PasswordVerifier is implemented by the host application. The password
// material itself never enters this package.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, username, clientID string) (*Verdict, error)
}

// NewPasswordBackend creates a password backend. verify may be nil when
// the policy disables password login.
func NewPasswordBackend(policy *Policy, audit AuditSink, verify PasswordVerifier) *PasswordBackend {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &PasswordBackend{policy: policy, audit: audit, verify: verify}
}

// Name implements Backend.
func (b *PasswordBackend) Name() string {
	return "password"
}

// Authenticate implements Backend. Matches requests that presented
// password material and carry no assertion.
func (b *PasswordBackend) Authenticate(ctx context.Context, req *LoginRequest) (bool, *Verdict, error) {
	if !req.PasswordPresented || req.Assertion != nil {
		return false, nil, nil
	}

	if b.policy.DisablePasswordLogin {
		b.audit.PasswordLoginBlocked(ctx, req.Username, req.ClientID)
		return true, &Verdict{Code: VerdictFailed}, nil
	}

	if b.verify == nil {
		return true, &Verdict{Code: VerdictFailed}, nil
	}
	verdict, err := b.verify.VerifyPassword(ctx, req.Username, req.ClientID)
	return true, verdict, err
}
