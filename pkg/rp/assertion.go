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
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// AssertionEngine runs the login ceremony: it builds assertion options
// for a known user or for the discoverable (usernameless) flow, and
// verifies signed assertions against stored credentials.
type AssertionEngine struct {
	policy      *Policy
	challenges  ChallengeStore
	credentials CredentialRepository
	directory   UserDirectory
}

// NewAssertionEngine creates an assertion engine.
func NewAssertionEngine(policy *Policy, challenges ChallengeStore, credentials CredentialRepository, directory UserDirectory) *AssertionEngine {
	return &AssertionEngine{
		policy:      policy,
		challenges:  challenges,
		credentials: credentials,
		directory:   directory,
	}
}

// BeginAssertion builds assertion options. With a username the allowed
// credential list is restricted to that user's non-revoked credentials;
// the caller-visible failure for an unknown username and for a known
// user without credentials is the same ErrNoCredentials, and both paths
// perform equivalent work, so neither timing nor shape reveals whether
// the account exists. With an empty username the discoverable flow
// issues unrestricted options and never fails with ErrNoCredentials.
func (e *AssertionEngine) BeginAssertion(ctx context.Context, username string) (*AssertionOptions, error) {
	if username == "" {
		if !e.policy.DiscoverableLogin {
			return nil, NewError("begin assertion", ErrDiscoverableDisabled)
		}
		return e.issueOptions(ctx, "", nil)
	}

	user, err := e.directory.LookupByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Equivalent-cost path: query the repository with a derived
			// handle before reporting the same failure a credential-less
			// account gets.
			fake := sha256.Sum256([]byte(username))
			_, _ = e.credentials.FindAllForUser(ctx, fake[:])
			return nil, NewError("begin assertion", ErrNoCredentials)
		}
		return nil, Infra("begin assertion", err)
	}

	all, err := e.credentials.FindAllForUser(ctx, user.Handle)
	if err != nil {
		return nil, Infra("begin assertion", err)
	}

	usable := make([]*Credential, 0, len(all))
	for _, cred := range all {
		if !cred.Revoked {
			usable = append(usable, cred)
		}
	}
	if len(usable) == 0 {
		return nil, NewError("begin assertion", ErrNoCredentials)
	}

	allow := make([]protocol.CredentialDescriptor, 0, len(usable))
	for _, cred := range usable {
		allow = append(allow, cred.Descriptor())
	}
	return e.issueOptions(ctx, username, allow)
}

// issueOptions issues a challenge bound to username (empty for the
// discoverable flow) and assembles the request options.
func (e *AssertionEngine) issueOptions(ctx context.Context, username string, allow []protocol.CredentialDescriptor) (*AssertionOptions, error) {
	ch, err := e.challenges.Issue(ctx, username)
	if err != nil {
		return nil, WrapError("begin assertion", err)
	}

	options := &protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:          protocol.URLEncodedBase64(ch.Bytes),
			Timeout:            int(e.policy.CeremonyTimeout.Milliseconds()),
			RelyingPartyID:     e.policy.RPID,
			AllowedCredentials: allow,
			UserVerification:   e.policy.UserVerificationRequirement(),
		},
	}
	return &AssertionOptions{Options: options, Token: ch.Token}, nil
}

// CompleteAssertion consumes the challenge token and verifies the signed
// assertion. On success the stored sign counter and last-used timestamp
// are updated through a compare-and-set, so two racing assertions against
// the same credential cannot both commit.
func (e *AssertionEngine) CompleteAssertion(ctx context.Context, response *protocol.ParsedCredentialAssertionData, token string, expectedUser *User) (*VerifiedAssertion, error) {
	ch, err := e.challenges.Consume(ctx, token)
	if err != nil {
		return nil, WrapError("complete assertion", err)
	}
	if ch.Username != "" && expectedUser != nil && expectedUser.Name != ch.Username {
		// Options phase and verify phase disagree about the account.
		return nil, NewError("complete assertion", ErrChallengeInvalid)
	}

	cred, err := e.credentials.FindByCredentialID(ctx, response.RawID)
	if err != nil {
		return nil, WrapError("complete assertion", err)
	}

	// Ownership checks. A credential belonging to another account is
	// reported exactly like an unknown one.
	if ch.Username != "" && cred.Username != ch.Username {
		return nil, NewError("complete assertion", ErrCredentialUnknown)
	}
	if expectedUser != nil && !bytes.Equal(cred.UserHandle, expectedUser.Handle) {
		return nil, NewError("complete assertion", ErrCredentialUnknown)
	}
	if handle := response.Response.UserHandle; len(handle) > 0 && !bytes.Equal(handle, cred.UserHandle) {
		return nil, NewError("complete assertion", ErrCredentialUnknown)
	}

	if cred.Revoked {
		return nil, NewError("complete assertion", ErrCredentialRevoked)
	}

	if err := verifyClientData(&response.Response.CollectedClientData, protocol.AssertCeremony, ch.Bytes, e.policy.Origin); err != nil {
		return nil, err
	}

	authData := &response.Response.AuthenticatorData
	if err := verifyAuthenticatorData(authData, e.policy.RPID, e.policy.RequiresUserVerification()); err != nil {
		return nil, err
	}

	if err := verifyAssertionSignature(
		cred.PublicKey,
		response.Raw.AssertionResponse.AuthenticatorData,
		response.Raw.AssertionResponse.ClientDataJSON,
		response.Response.Signature,
	); err != nil {
		return nil, err
	}

	next, err := e.verifySignCount(ctx, cred, authData.Counter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := e.credentials.UpdateSignCount(ctx, cred.ID, cred.SignCount, next, now); err != nil {
		return nil, WrapError("complete assertion", err)
	}
	cred.SignCount = next
	cred.LastUsedAt = now

	return &VerifiedAssertion{
		Credential:   cred,
		Source:       response,
		UserVerified: authData.Flags.UserVerified(),
		VerifiedAt:   now,
	}, nil
}

// verifySignCount applies the clone-detection rule: when both the stored
// and reported counters are non-zero the reported value must be strictly
// greater, or the assertion fails and the credential is flagged for
// review with the stored counter left untouched. A zero counter on
// either side means the authenticator does not maintain one and the
// check is skipped.
func (e *AssertionEngine) verifySignCount(ctx context.Context, cred *Credential, reported uint32) (uint32, error) {
	if cred.SignCount != 0 && reported != 0 && reported <= cred.SignCount {
		_ = e.credentials.MarkCloneWarning(ctx, cred.ID)
		return 0, NewError("complete assertion", ErrCounterRegression)
	}
	if reported > cred.SignCount {
		return reported, nil
	}
	return cred.SignCount, nil
}
