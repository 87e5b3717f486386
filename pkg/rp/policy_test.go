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
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(t *testing.T, mutate func(*Policy)) *Policy {
	t.Helper()
	p := Policy{
		RPID:   "example.com",
		RPName: "Example",
		Origin: "https://example.com",
	}
	if mutate != nil {
		mutate(&p)
	}
	policy, err := NewPolicy(p)
	require.NoError(t, err)
	return policy
}

func TestNewPolicy_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"missing rp id", Policy{RPName: "Example", Origin: "https://example.com"}},
		{"missing rp name", Policy{RPID: "example.com", Origin: "https://example.com"}},
		{"missing origin", Policy{RPID: "example.com", RPName: "Example"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.policy)
			require.Error(t, err)
		})
	}
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := testPolicy(t, nil)

	assert.Equal(t, 2*time.Minute, p.ChallengeTTL)
	assert.Equal(t, 32, p.ChallengeSize)
	assert.Equal(t, "required", p.UserVerification)
	assert.Equal(t, 5*time.Minute, p.RateLimitWindow)
	assert.Equal(t, 5, p.LockoutThreshold)
	assert.Equal(t, 15*time.Minute, p.LockoutDuration)
	assert.Equal(t, 60*time.Second, p.CeremonyTimeout)
	assert.Equal(t, []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256}, p.AllowedAlgorithms())
}

func TestNewPolicy_UnrecognizedUserVerificationFallsBack(t *testing.T) {
	p := testPolicy(t, func(p *Policy) {
		p.UserVerification = "mandatory"
	})
	assert.Equal(t, "required", p.UserVerification)
	assert.True(t, p.RequiresUserVerification())
}

func TestPolicy_ParseAlgorithms(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		want     []webauthncose.COSEAlgorithmIdentifier
	}{
		{
			name:     "single",
			declared: "ES256",
			want:     []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256},
		},
		{
			name:     "ordered list with whitespace",
			declared: " es256 , RS256 ",
			want:     []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256, webauthncose.AlgRS256},
		},
		{
			name:     "unknown names skipped",
			declared: "ES256, HS256, EdDSA",
			want:     []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256, webauthncose.AlgEdDSA},
		},
		{
			name:     "all unknown falls back to ES256",
			declared: "HS256",
			want:     []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256},
		},
		{
			name:     "empty falls back to ES256",
			declared: "",
			want:     []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPolicy(t, func(p *Policy) { p.Algorithms = tt.declared })
			assert.Equal(t, tt.want, p.AllowedAlgorithms())
		})
	}
}

func TestPolicy_AlgorithmAllowed(t *testing.T) {
	p := testPolicy(t, func(p *Policy) { p.Algorithms = "ES256, RS256" })

	assert.True(t, p.AlgorithmAllowed(int64(webauthncose.AlgES256)))
	assert.True(t, p.AlgorithmAllowed(int64(webauthncose.AlgRS256)))
	assert.False(t, p.AlgorithmAllowed(int64(webauthncose.AlgEdDSA)))
}

func TestPolicy_UserVerificationRequirement(t *testing.T) {
	tests := []struct {
		declared string
		want     protocol.UserVerificationRequirement
		required bool
	}{
		{"required", protocol.VerificationRequired, true},
		{"preferred", protocol.VerificationPreferred, false},
		{"discouraged", protocol.VerificationDiscouraged, false},
	}
	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			p := testPolicy(t, func(p *Policy) { p.UserVerification = tt.declared })
			assert.Equal(t, tt.want, p.UserVerificationRequirement())
			assert.Equal(t, tt.required, p.RequiresUserVerification())
		})
	}
}

func TestPolicy_CredentialParameters(t *testing.T) {
	p := testPolicy(t, func(p *Policy) { p.Algorithms = "ES256, RS256" })

	params := p.CredentialParameters()
	require.Len(t, params, 2)
	assert.Equal(t, protocol.PublicKeyCredentialType, params[0].Type)
	assert.Equal(t, webauthncose.AlgES256, params[0].Algorithm)
	assert.Equal(t, webauthncose.AlgRS256, params[1].Algorithm)
}
