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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service   *Service
	challenges *MemoryChallengeStore
	repo      *MemoryCredentialRepository
	lockout   *MemoryLockoutGuard
	directory mapDirectory
	audit     *recordingAudit
	user      *User
	auth      *MockAuthenticator
}

func newServiceFixture(t *testing.T, mutate func(*Policy), tokens TokenGenerator) *serviceFixture {
	t.Helper()

	policy := testPolicy(t, func(p *Policy) {
		p.LockoutThreshold = 3
		if mutate != nil {
			mutate(p)
		}
	})
	challenges := NewChallengeStoreFromPolicy(policy)
	repo := NewMemoryCredentialRepository()
	lockout := NewLockoutGuardFromPolicy(policy)
	user := testUser("alice")
	directory := mapDirectory{"alice": user}
	audit := &recordingAudit{}

	svc, err := NewService(ServiceParams{
		Policy:      policy,
		Challenges:  challenges,
		Credentials: repo,
		Lockout:     lockout,
		Directory:   directory,
		Audit:       audit,
		Tokens:      tokens,
	})
	require.NoError(t, err)

	auth, err := NewMockAuthenticator(testRPID, WithSignCount(1))
	require.NoError(t, err)

	ctx := context.Background()
	opts, err := svc.BeginRegistration(ctx, user)
	require.NoError(t, err)
	response, err := auth.Register(opts.Options.Response.Challenge, testOrigin)
	require.NoError(t, err)
	_, err = svc.CompleteRegistration(ctx, response, opts.Token, user, "test key")
	require.NoError(t, err)

	return &serviceFixture{
		service:    svc,
		challenges: challenges,
		repo:       repo,
		lockout:    lockout,
		directory:  directory,
		audit:      audit,
		user:       user,
		auth:       auth,
	}
}

// loginRequest builds a complete attempt, optionally corrupting the
// signature first.
func (f *serviceFixture) loginRequest(t *testing.T, corrupt bool) *LoginRequest {
	t.Helper()
	ctx := context.Background()

	opts, err := f.service.BeginLogin(ctx, "alice")
	require.NoError(t, err)

	f.auth.CorruptSignature = corrupt
	response, err := f.auth.Assert(opts.Options.Response.Challenge, f.user.Handle, testOrigin)
	require.NoError(t, err)
	f.auth.CorruptSignature = false

	return &LoginRequest{
		Username:       "alice",
		ClientID:       "10.0.0.1",
		ChallengeToken: opts.Token,
		Assertion:      response,
	}
}

func TestService_LoginSuccess(t *testing.T) {
	f := newServiceFixture(t, nil, nil)

	verdict, err := f.service.Login(context.Background(), f.loginRequest(t, false))
	require.NoError(t, err)

	assert.True(t, verdict.Authenticated)
	assert.Equal(t, VerdictOK, verdict.Code)
	assert.Equal(t, "alice", verdict.Username)
	assert.Empty(t, verdict.Token)
	assert.Contains(t, f.audit.events, "login:alice")
}

func TestService_LoginFailureVerdictIsOpaque(t *testing.T) {
	f := newServiceFixture(t, nil, nil)

	verdict, err := f.service.Login(context.Background(), f.loginRequest(t, true))
	require.NoError(t, err)

	assert.False(t, verdict.Authenticated)
	assert.Equal(t, VerdictFailed, verdict.Code)
	assert.Empty(t, verdict.Username)

	// The audit trail keeps the precise kind the response hides.
	require.NotEmpty(t, f.audit.kinds)
	assert.Equal(t, "signature_invalid", f.audit.kinds[0])
}

func TestService_LockoutAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	for i := 0; i < 3; i++ {
		verdict, err := f.service.Login(ctx, f.loginRequest(t, true))
		require.NoError(t, err)
		assert.Equal(t, VerdictFailed, verdict.Code)
	}

	// Fourth attempt is refused before any verification work.
	verdict, err := f.service.Login(ctx, f.loginRequest(t, false))
	require.NoError(t, err)
	assert.Equal(t, VerdictLockedOut, verdict.Code)
	assert.Contains(t, f.audit.events, "lockout:alice")
}

func TestService_SuccessClearsFailureHistory(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	for i := 0; i < 2; i++ {
		_, err := f.service.Login(ctx, f.loginRequest(t, true))
		require.NoError(t, err)
	}
	require.Equal(t, 2, f.lockout.Failures("alice", "10.0.0.1"))

	verdict, err := f.service.Login(ctx, f.loginRequest(t, false))
	require.NoError(t, err)
	require.Equal(t, VerdictOK, verdict.Code)

	assert.Equal(t, 0, f.lockout.Failures("alice", "10.0.0.1"))
}

func TestService_LoginIssuesToken(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tokens, err := NewJWTGenerator(&JWTGeneratorConfig{
		PrivateKey: key,
		Issuer:     "login.example.com",
	})
	require.NoError(t, err)

	f := newServiceFixture(t, nil, tokens)

	verdict, err := f.service.Login(context.Background(), f.loginRequest(t, false))
	require.NoError(t, err)
	require.True(t, verdict.Authenticated)
	require.NotEmpty(t, verdict.Token)

	claims, err := tokens.VerifyToken(verdict.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["username"])
	assert.Equal(t, "login.example.com", claims["iss"])
	assert.Contains(t, claims, "cid")
}

func TestService_RevokeEmitsAudit(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	require.NoError(t, f.service.Revoke(ctx, f.auth.CredentialID, "admin"))
	assert.Contains(t, f.audit.events, "revoked:alice")

	// Revoked credential can no longer log in.
	_, err := f.service.BeginLogin(ctx, "alice")
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestService_CredentialsListing(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	creds, err := f.service.Credentials(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "test key", creds[0].Label)

	// Unknown users get an empty list, not an error.
	none, err := f.service.Credentials(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_Relabel(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, nil, nil)

	require.NoError(t, f.service.Relabel(ctx, f.auth.CredentialID, "desk key"))

	creds, err := f.service.Credentials(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "desk key", creds[0].Label)
}

func TestChain_PasskeyDispatch(t *testing.T) {
	f := newServiceFixture(t, nil, nil)
	chain := NewChain(
		NewPasskeyBackend(f.service),
		NewPasswordBackend(f.service.Policy(), f.audit, nil),
	)

	verdict, err := chain.Authenticate(context.Background(), f.loginRequest(t, false))
	require.NoError(t, err)
	assert.True(t, verdict.Authenticated)
}

// With passwords disabled by policy, a password attempt gets the exact
// verdict shape a failed passkey attempt gets.
func TestChain_PasswordLoginDisabled(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, func(p *Policy) { p.DisablePasswordLogin = true }, nil)
	chain := NewChain(
		NewPasskeyBackend(f.service),
		NewPasswordBackend(f.service.Policy(), f.audit, nil),
	)

	passwordVerdict, err := chain.Authenticate(ctx, &LoginRequest{
		Username:          "alice",
		ClientID:          "10.0.0.1",
		PasswordPresented: true,
	})
	require.NoError(t, err)

	passkeyVerdict, err := chain.Authenticate(ctx, f.loginRequest(t, true))
	require.NoError(t, err)

	assert.Equal(t, passkeyVerdict.Code, passwordVerdict.Code)
	assert.False(t, passwordVerdict.Authenticated)
	assert.Contains(t, f.audit.events, "password_blocked:alice")
}

func TestChain_NoBackendMatches(t *testing.T) {
	f := newServiceFixture(t, nil, nil)
	chain := NewChain(NewPasskeyBackend(f.service))

	verdict, err := chain.Authenticate(context.Background(), &LoginRequest{
		Username: "alice",
		ClientID: "10.0.0.1",
	})
	require.NoError(t, err)
	assert.False(t, verdict.Authenticated)
	assert.Equal(t, VerdictFailed, verdict.Code)
}

func TestService_RequiredDependencies(t *testing.T) {
	policy := testPolicy(t, nil)
	challenges := NewChallengeStoreFromPolicy(policy)
	repo := NewMemoryCredentialRepository()
	lockout := NewLockoutGuardFromPolicy(policy)
	directory := mapDirectory{}

	tests := []struct {
		name   string
		params ServiceParams
	}{
		{"missing policy", ServiceParams{Challenges: challenges, Credentials: repo, Lockout: lockout, Directory: directory}},
		{"missing challenges", ServiceParams{Policy: policy, Credentials: repo, Lockout: lockout, Directory: directory}},
		{"missing credentials", ServiceParams{Policy: policy, Challenges: challenges, Lockout: lockout, Directory: directory}},
		{"missing lockout", ServiceParams{Policy: policy, Challenges: challenges, Credentials: repo, Directory: directory}},
		{"missing directory", ServiceParams{Policy: policy, Challenges: challenges, Credentials: repo, Lockout: lockout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.params)
			require.Error(t, err)
		})
	}
}

// Compile-time interface checks for the in-memory implementations.
var (
	_ ChallengeStore       = (*MemoryChallengeStore)(nil)
	_ CredentialRepository = (*MemoryCredentialRepository)(nil)
	_ LockoutGuard         = (*MemoryLockoutGuard)(nil)
	_ TokenGenerator       = (*JWTGenerator)(nil)
	_ Backend              = (*PasskeyBackend)(nil)
	_ Backend              = (*PasswordBackend)(nil)
	_ AuditSink            = (*recordingAudit)(nil)
	_ UserDirectory        = (mapDirectory)(nil)
)
