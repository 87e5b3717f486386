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
	"crypto/sha256"
	"encoding/base64"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// verifyClientData checks the collected client data of either ceremony:
// the ceremony type must match, the embedded challenge must equal the
// consumed challenge byte-for-byte, and the origin must exactly match the
// policy origin.
func verifyClientData(cd *protocol.CollectedClientData, expectedType protocol.CeremonyType, challenge []byte, origin string) error {
	if cd.Type != expectedType {
		return NewError("verify client data", ErrTypeMismatch)
	}

	got, err := base64.RawURLEncoding.DecodeString(cd.Challenge)
	if err != nil {
		return NewError("verify client data", ErrChallengeInvalid)
	}
	if !bytes.Equal(got, challenge) {
		return NewError("verify client data", ErrChallengeInvalid)
	}

	if cd.Origin != origin {
		return NewError("verify client data", ErrOriginMismatch)
	}
	return nil
}

// verifyAuthenticatorData checks the authenticator data common to both
// ceremonies: RP ID hash, user presence, and user verification when the
// policy demands it.
func verifyAuthenticatorData(ad *protocol.AuthenticatorData, rpID string, requireUV bool) error {
	rpIDHash := sha256.Sum256([]byte(rpID))
	if !bytes.Equal(ad.RPIDHash, rpIDHash[:]) {
		return NewError("verify authenticator data", ErrRPIDMismatch)
	}

	if !ad.Flags.UserPresent() {
		return NewError("verify authenticator data", ErrUserPresenceRequired)
	}
	if requireUV && !ad.Flags.UserVerified() {
		return NewError("verify authenticator data", ErrUserVerificationRequired)
	}
	return nil
}

// credentialAlgorithm parses a COSE public key and returns its signature
// algorithm identifier.
func credentialAlgorithm(publicKey []byte) (int64, error) {
	key, err := webauthncose.ParsePublicKey(publicKey)
	if err != nil {
		return 0, NewError("parse public key", ErrAlgorithmNotAllowed)
	}

	switch k := key.(type) {
	case webauthncose.EC2PublicKeyData:
		return k.Algorithm, nil
	case webauthncose.RSAPublicKeyData:
		return k.Algorithm, nil
	case webauthncose.OKPPublicKeyData:
		return k.Algorithm, nil
	default:
		return 0, NewError("parse public key", ErrAlgorithmNotAllowed)
	}
}

// verifyAssertionSignature verifies the assertion signature with the
// stored COSE public key. The signed message is the raw authenticator
// data concatenated with the SHA-256 hash of the client data JSON.
func verifyAssertionSignature(publicKey, rawAuthData, clientDataJSON, signature []byte) error {
	key, err := webauthncose.ParsePublicKey(publicKey)
	if err != nil {
		return NewError("verify signature", ErrSignatureInvalid)
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := make([]byte, 0, len(rawAuthData)+len(clientDataHash))
	signed = append(signed, rawAuthData...)
	signed = append(signed, clientDataHash[:]...)

	valid, err := webauthncose.VerifySignature(key, signed, signature)
	if err != nil || !valid {
		return NewError("verify signature", ErrSignatureInvalid)
	}
	return nil
}

// credentialFlags decodes the raw authenticator flags byte.
func credentialFlags(flags protocol.AuthenticatorFlags) CredentialFlags {
	raw := byte(flags)
	return CredentialFlags{
		UserPresent:    raw&0x01 != 0,
		UserVerified:   raw&0x04 != 0,
		BackupEligible: raw&0x08 != 0,
		BackupState:    raw&0x10 != 0,
	}
}
