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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a WebAuthn authenticator. It produces
// attestation and assertion payloads the ceremony engines accept, and
// exposes tamper hooks so tests can produce every rejection the engines
// implement without hand-crafting CBOR.
type MockAuthenticator struct {
	// AAGUID is the authenticator's unique identifier (16 bytes).
	AAGUID []byte

	// privateKey is the authenticator's signing key.
	privateKey *ecdsa.PrivateKey

	// CredentialID is the credential identifier.
	CredentialID []byte

	// SignCount is the current signature counter for clone detection.
	SignCount uint32

	// UserPresent indicates whether the UP flag is set.
	UserPresent bool

	// UserVerified indicates whether the UV flag is set.
	UserVerified bool

	// BackupEligible and BackupState control the BE/BS flags.
	BackupEligible bool
	BackupState    bool

	// Tamper hooks. Zero values leave the payload honest.

	// TamperOrigin replaces the origin in the client data.
	TamperOrigin string

	// TamperChallenge replaces the challenge in the client data.
	TamperChallenge []byte

	// TamperCeremonyType replaces the ceremony type in the client data.
	TamperCeremonyType string

	// CorruptSignature flips a bit in the assertion signature.
	CorruptSignature bool

	// TamperAttestation replaces the "none" attestation with a packed
	// self-attestation statement carrying a garbage signature.
	TamperAttestation bool

	// rpID is the Relying Party ID.
	rpID string

	// rpIDHash is the SHA-256 hash of the RP ID.
	rpIDHash []byte
}

// MockAuthenticatorOption is a functional option for configuring a MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithAAGUID sets a custom AAGUID.
func WithAAGUID(aaguid []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.AAGUID = aaguid
	}
}

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithUserPresent sets the UP flag.
func WithUserPresent(up bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserPresent = up
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// WithBackupFlags sets the BE and BS flags.
func WithBackupFlags(be, bs bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.BackupEligible = be
		m.BackupState = bs
	}
}

// NewMockAuthenticator creates a mock authenticator bound to rpID with a
// fresh P-256 key pair, a random AAGUID and credential ID, and UP+UV set.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		privateKey:   privateKey,
		CredentialID: credID,
		SignCount:    0,
		UserPresent:  true,
		UserVerified: true,
		rpID:         rpID,
		rpIDHash:     rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// PublicKey returns the authenticator's public key.
func (m *MockAuthenticator) PublicKey() crypto.PublicKey {
	return m.privateKey.Public()
}

// PublicKeyBytes returns the public key in COSE format.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),           // x coordinate
		-3: pubKey.Y.Bytes(),           // y coordinate
	}

	return webauthncbor.Marshal(coseKey)
}

// SetSignCount sets the sign count, for clone-detection tests.
func (m *MockAuthenticator) SetSignCount(count uint32) {
	m.SignCount = count
}

// Register produces a parsed attestation response ("none" format) for
// the given challenge bytes and origin.
func (m *MockAuthenticator) Register(challenge []byte, origin string) (*protocol.ParsedCredentialCreationData, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	format := "none"
	attStmt := map[string]interface{}{}
	if m.TamperAttestation {
		format = "packed"
		attStmt = map[string]interface{}{
			"alg": int64(webauthncose.AlgES256),
			"sig": []byte{0x30, 0x06, 0x02, 0x01, 0x00, 0x02, 0x01, 0x00},
		}
	}

	attestationObject := map[string]interface{}{
		"authData": authData,
		"fmt":      format,
		"attStmt":  attStmt,
	}
	attestationObjectBytes, err := webauthncbor.Marshal(attestationObject)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := m.PublicKeyBytes()
	if err != nil {
		return nil, err
	}

	parsedAttObj := protocol.AttestationObject{
		Format:       format,
		AttStatement: attStmt,
		RawAuthData:  authData,
		AuthData: protocol.AuthenticatorData{
			RPIDHash: m.rpIDHash,
			Flags:    m.buildFlags(true),
			Counter:  m.SignCount,
			AttData: protocol.AttestedCredentialData{
				AAGUID:              m.AAGUID,
				CredentialID:        m.CredentialID,
				CredentialPublicKey: pubKeyBytes,
			},
		},
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialCreationData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAttestationResponse{
			CollectedClientData: m.collectedClientData(challenge, origin, "webauthn.create"),
			AttestationObject:   parsedAttObj,
			Transports:          []protocol.AuthenticatorTransport{protocol.Internal},
		},
		Raw: protocol.CredentialCreationResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AttestationResponse: protocol.AuthenticatorAttestationResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AttestationObject: attestationObjectBytes,
				Transports:        []string{"internal"},
			},
		},
	}, nil
}

// Assert produces a parsed, signed assertion response. The sign counter
// is incremented first, matching real authenticator behavior; a counter
// pinned with SetSignCount(0) stays at zero.
func (m *MockAuthenticator) Assert(challenge, userHandle []byte, origin string) (*protocol.ParsedCredentialAssertionData, error) {
	if m.SignCount != 0 {
		m.SignCount++
	}

	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	signedData := append(authData, clientDataHash[:]...)
	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}
	if m.CorruptSignature && len(signature) > 0 {
		signature[len(signature)-1] ^= 0x01
	}

	parsedAuthData := protocol.AuthenticatorData{
		RPIDHash: m.rpIDHash,
		Flags:    m.buildFlags(false),
		Counter:  m.SignCount,
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialAssertionData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAssertionResponse{
			CollectedClientData: m.collectedClientData(challenge, origin, "webauthn.get"),
			AuthenticatorData:   parsedAuthData,
			Signature:           signature,
			UserHandle:          userHandle,
		},
		Raw: protocol.CredentialAssertionResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AssertionResponse: protocol.AuthenticatorAssertionResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AuthenticatorData: authData,
				Signature:         signature,
				UserHandle:        userHandle,
			},
		},
	}, nil
}

// collectedClientData builds the parsed client data, applying tamper
// hooks.
func (m *MockAuthenticator) collectedClientData(challenge []byte, origin, ceremonyType string) protocol.CollectedClientData {
	if m.TamperChallenge != nil {
		challenge = m.TamperChallenge
	}
	if m.TamperOrigin != "" {
		origin = m.TamperOrigin
	}
	if m.TamperCeremonyType != "" {
		ceremonyType = m.TamperCeremonyType
	}
	return protocol.CollectedClientData{
		Type:      protocol.CeremonyType(ceremonyType),
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}
}

// buildFlags builds the authenticator flags byte.
func (m *MockAuthenticator) buildFlags(includeCredential bool) protocol.AuthenticatorFlags {
	var flags byte
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if m.BackupEligible {
		flags |= 0x08 // BE
	}
	if m.BackupState {
		flags |= 0x10 // BS
	}
	if includeCredential {
		flags |= 0x40 // AT
	}
	return protocol.AuthenticatorFlags(flags)
}

// buildAuthenticatorData serializes the authenticator data, with
// attested credential data when includeCredential is set.
func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	// rpIdHash (32 bytes)
	buf.Write(m.rpIDHash)

	// flags (1 byte)
	buf.WriteByte(byte(m.buildFlags(includeCredential)))

	// signCount (4 bytes, big-endian)
	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if includeCredential {
		// AAGUID (16 bytes)
		buf.Write(m.AAGUID)

		// Credential ID length (2 bytes, big-endian)
		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)

		// Credential ID
		buf.Write(m.CredentialID)

		// Credential public key (COSE format)
		pubKeyBytes, err := m.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

// buildClientDataJSON serializes the client data, applying tamper hooks.
func (m *MockAuthenticator) buildClientDataJSON(challenge []byte, origin, ceremonyType string) []byte {
	cd := m.collectedClientData(challenge, origin, ceremonyType)

	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      string(cd.Type),
		Challenge: cd.Challenge,
		Origin:    cd.Origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

// sign creates an ASN.1 DER ECDSA signature over the data.
func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, m.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	return asn1MarshalSignature(r, s)
}

// asn1MarshalSignature encodes r and s as an ASN.1 DER signature.
func asn1MarshalSignature(r, s *big.Int) ([]byte, error) {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	// Leading zero keeps high-bit values positive
	if len(rBytes) > 0 && rBytes[0] >= 0x80 {
		rBytes = append([]byte{0x00}, rBytes...)
	}
	if len(sBytes) > 0 && sBytes[0] >= 0x80 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	rLen := len(rBytes)
	sLen := len(sBytes)
	seqLen := 2 + rLen + 2 + sLen

	sig := make([]byte, 0, 2+seqLen)
	sig = append(sig, 0x30)         // SEQUENCE tag
	sig = append(sig, byte(seqLen)) // SEQUENCE length
	sig = append(sig, 0x02)         // INTEGER tag (r)
	sig = append(sig, byte(rLen))   // r length
	sig = append(sig, rBytes...)    // r value
	sig = append(sig, 0x02)         // INTEGER tag (s)
	sig = append(sig, byte(sLen))   // s length
	sig = append(sig, sBytes...)    // s value

	return sig, nil
}
