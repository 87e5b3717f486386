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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// RegistrationEngine runs the credential creation ceremony: it builds
// creation options and verifies the attestation response against the
// issued challenge, persisting a new credential on success.
//
// Registration is always performed for an already-authenticated user;
// challenges are issued unbound.
type RegistrationEngine struct {
	policy      *Policy
	challenges  ChallengeStore
	credentials CredentialRepository
}

// NewRegistrationEngine creates a registration engine.
func NewRegistrationEngine(policy *Policy, challenges ChallengeStore, credentials CredentialRepository) *RegistrationEngine {
	return &RegistrationEngine{
		policy:      policy,
		challenges:  challenges,
		credentials: credentials,
	}
}

// BeginRegistration builds creation options for the user. The user's
// existing credentials are excluded so the same authenticator cannot be
// registered twice.
func (e *RegistrationEngine) BeginRegistration(ctx context.Context, user *User, existing []*Credential) (*RegistrationOptions, error) {
	ch, err := e.challenges.Issue(ctx, "")
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	exclude := make([]protocol.CredentialDescriptor, 0, len(existing))
	for _, cred := range existing {
		exclude = append(exclude, cred.Descriptor())
	}

	options := &protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			Challenge: protocol.URLEncodedBase64(ch.Bytes),
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: e.policy.RPName},
				ID:               e.policy.RPID,
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: user.Name},
				DisplayName:      user.DisplayName,
				ID:               protocol.URLEncodedBase64(user.Handle),
			},
			Parameters:            e.policy.CredentialParameters(),
			Timeout:               int(e.policy.CeremonyTimeout.Milliseconds()),
			CredentialExcludeList: exclude,
			AuthenticatorSelection: protocol.AuthenticatorSelection{
				UserVerification: e.policy.UserVerificationRequirement(),
			},
			Attestation: protocol.PreferNoAttestation,
		},
	}

	return &RegistrationOptions{Options: options, Token: ch.Token}, nil
}

// CompleteRegistration consumes the challenge token, verifies the
// attestation response and persists the new credential. All failures are
// typed; none carry authenticator secrets.
func (e *RegistrationEngine) CompleteRegistration(ctx context.Context, response *protocol.ParsedCredentialCreationData, token string, user *User, label string) (*Credential, error) {
	ch, err := e.challenges.Consume(ctx, token)
	if err != nil {
		return nil, WrapError("complete registration", err)
	}
	if ch.Username != "" {
		// Registration challenges are issued unbound; a bound challenge
		// was issued for a different ceremony.
		return nil, NewError("complete registration", ErrChallengeInvalid)
	}

	if err := verifyClientData(&response.Response.CollectedClientData, protocol.CreateCeremony, ch.Bytes, e.policy.Origin); err != nil {
		return nil, err
	}

	authData := &response.Response.AttestationObject.AuthData
	if err := verifyAuthenticatorData(authData, e.policy.RPID, e.policy.RequiresUserVerification()); err != nil {
		return nil, err
	}
	if !authData.Flags.HasAttestedCredentialData() {
		return nil, NewError("complete registration", ErrChallengeInvalid)
	}

	credentialID := authData.AttData.CredentialID
	if len(response.RawID) > 0 && !bytes.Equal(response.RawID, credentialID) {
		return nil, NewError("complete registration", ErrCredentialUnknown)
	}

	// Verify the attestation statement with its format's procedure. The
	// "none" format passes only with an empty statement; anything else
	// must carry a valid attestation signature.
	clientDataHash := sha256.Sum256(response.Raw.AttestationResponse.ClientDataJSON)
	if err := response.Response.AttestationObject.Verify(e.policy.RPID, clientDataHash[:], e.policy.RequiresUserVerification()); err != nil {
		return nil, NewError("complete registration", ErrAttestationInvalid)
	}

	alg, err := credentialAlgorithm(authData.AttData.CredentialPublicKey)
	if err != nil {
		return nil, err
	}
	if !e.policy.AlgorithmAllowed(alg) {
		return nil, NewError("complete registration", ErrAlgorithmNotAllowed)
	}

	if label == "" {
		label = "passkey"
	}

	cred := &Credential{
		ID:              credentialID,
		UserHandle:      user.Handle,
		Username:        user.Name,
		PublicKey:       authData.AttData.CredentialPublicKey,
		Algorithm:       alg,
		SignCount:       authData.Counter,
		Label:           label,
		AttestationType: response.Response.AttestationObject.Format,
		Transport:       response.Response.Transports,
		Flags:           credentialFlags(authData.Flags),
		AAGUID:          authData.AttData.AAGUID,
		CreatedAt:       time.Now().UTC(),
	}

	stored, err := e.credentials.Insert(ctx, cred)
	if err != nil {
		return nil, WrapError("complete registration", err)
	}
	return stored, nil
}
