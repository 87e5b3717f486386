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
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testOrigin = "https://example.com"
	testRPID   = "example.com"
)

// mapDirectory is a fixed-content UserDirectory for tests.
type mapDirectory map[string]*User

func (d mapDirectory) LookupByUsername(ctx context.Context, name string) (*User, error) {
	user, ok := d[name]
	if !ok {
		return nil, NewError("lookup user", ErrUserNotFound)
	}
	return user, nil
}

func testUser(name string) *User {
	return &User{
		Handle:      []byte("handle-" + name),
		Name:        name,
		DisplayName: name + " example",
	}
}

// recordingAudit captures event labels in order.
type recordingAudit struct {
	events []string
	kinds  []string
}

func (a *recordingAudit) RegistrationSucceeded(_ context.Context, username string, _ []byte) {
	a.events = append(a.events, "registration:"+username)
}

func (a *recordingAudit) LoginSucceeded(_ context.Context, username string, _ []byte) {
	a.events = append(a.events, "login:"+username)
}

func (a *recordingAudit) LoginFailed(_ context.Context, username, _, kind string) {
	a.events = append(a.events, "failed:"+username)
	a.kinds = append(a.kinds, kind)
}

func (a *recordingAudit) LockoutTriggered(_ context.Context, username, _ string) {
	a.events = append(a.events, "lockout:"+username)
}

func (a *recordingAudit) PasswordLoginBlocked(_ context.Context, username, _ string) {
	a.events = append(a.events, "password_blocked:"+username)
}

func (a *recordingAudit) CredentialRevoked(_ context.Context, username, _ string, _ []byte) {
	a.events = append(a.events, "revoked:"+username)
}

// registerCredential runs a full registration ceremony for user with the
// mock authenticator and returns the stored credential.
func registerCredential(t *testing.T, engine *RegistrationEngine, auth *MockAuthenticator, user *User) *Credential {
	t.Helper()
	ctx := context.Background()

	opts, err := engine.BeginRegistration(ctx, user, nil)
	require.NoError(t, err)

	response, err := auth.Register(opts.Options.Response.Challenge, testOrigin)
	require.NoError(t, err)

	cred, err := engine.CompleteRegistration(ctx, response, opts.Token, user, "test key")
	require.NoError(t, err)
	return cred
}
