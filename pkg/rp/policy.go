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
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Policy is the relying-party configuration consulted by every component.
// It is immutable after construction; build one with NewPolicy and inject
// it by reference.
type Policy struct {
	// RPID is the relying party identifier, typically the domain name.
	RPID string `yaml:"id" json:"id" mapstructure:"id"`

	// RPName is the human-readable relying party name.
	RPName string `yaml:"name" json:"name" mapstructure:"name"`

	// Origin is the exact web origin assertions must come from.
	// Example: "https://login.example.com"
	Origin string `yaml:"origin" json:"origin" mapstructure:"origin"`

	// ChallengeTTL bounds how long an issued challenge may be consumed.
	// Default: 2 minutes.
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl" mapstructure:"challenge_ttl"`

	// ChallengeSize is the number of random challenge bytes.
	// Minimum 16, default 32.
	ChallengeSize int `yaml:"challenge_size" json:"challenge_size" mapstructure:"challenge_size"`

	// UserVerification is one of "required", "preferred", "discouraged".
	// Any unrecognized value falls back to "required"; a misconfiguration
	// must never lock out all users with a hard failure.
	UserVerification string `yaml:"user_verification" json:"user_verification" mapstructure:"user_verification"`

	// DiscoverableLogin enables the usernameless assertion flow.
	DiscoverableLogin bool `yaml:"discoverable_login" json:"discoverable_login" mapstructure:"discoverable_login"`

	// DisablePasswordLogin blocks the host's password backend for users
	// with registered passkeys. Only the boundary is enforced here.
	DisablePasswordLogin bool `yaml:"disable_password_login" json:"disable_password_login" mapstructure:"disable_password_login"`

	// RateLimitWindow is the sliding window failures are counted in.
	// Default: 5 minutes.
	RateLimitWindow time.Duration `yaml:"ratelimit_window" json:"ratelimit_window" mapstructure:"ratelimit_window"`

	// LockoutThreshold is the failure count within the window that
	// triggers a lockout. Default: 5.
	LockoutThreshold int `yaml:"lockout_threshold" json:"lockout_threshold" mapstructure:"lockout_threshold"`

	// LockoutDuration is how long a triggered lockout lasts.
	// Default: 15 minutes.
	LockoutDuration time.Duration `yaml:"lockout_duration" json:"lockout_duration" mapstructure:"lockout_duration"`

	// Algorithms is the ordered comma-separated allowlist of signature
	// algorithms, e.g. "ES256, RS256". Default: "ES256".
	Algorithms string `yaml:"algorithms" json:"algorithms" mapstructure:"algorithms"`

	// CeremonyTimeout is advertised to clients in ceremony options.
	// Default: 60 seconds.
	CeremonyTimeout time.Duration `yaml:"ceremony_timeout" json:"ceremony_timeout" mapstructure:"ceremony_timeout"`

	allowed []webauthncose.COSEAlgorithmIdentifier
}

// Algorithm names accepted in the Policy.Algorithms declaration.
var algorithmNames = map[string]webauthncose.COSEAlgorithmIdentifier{
	"ES256": webauthncose.AlgES256,
	"ES384": webauthncose.AlgES384,
	"ES512": webauthncose.AlgES512,
	"RS256": webauthncose.AlgRS256,
	"RS384": webauthncose.AlgRS384,
	"RS512": webauthncose.AlgRS512,
	"PS256": webauthncose.AlgPS256,
	"EDDSA": webauthncose.AlgEdDSA,
}

// NewPolicy validates p, applies defaults and returns an immutable copy.
// The only hard failures are a missing RP ID, name or origin; everything
// else falls back to a safe default.
func NewPolicy(p Policy) (*Policy, error) {
	if p.RPID == "" {
		return nil, fmt.Errorf("relying party ID is required")
	}
	if p.RPName == "" {
		return nil, fmt.Errorf("relying party name is required")
	}
	if p.Origin == "" {
		return nil, fmt.Errorf("relying party origin is required")
	}

	switch p.UserVerification {
	case "required", "preferred", "discouraged":
	default:
		// Fail safe, not hard: an unrecognized setting must not take the
		// whole login surface down.
		p.UserVerification = "required"
	}

	if p.ChallengeTTL <= 0 {
		p.ChallengeTTL = 2 * time.Minute
	}
	if p.ChallengeSize < 16 {
		p.ChallengeSize = 32
	}
	if p.RateLimitWindow <= 0 {
		p.RateLimitWindow = 5 * time.Minute
	}
	if p.LockoutThreshold <= 0 {
		p.LockoutThreshold = 5
	}
	if p.LockoutDuration <= 0 {
		p.LockoutDuration = 15 * time.Minute
	}
	if p.CeremonyTimeout <= 0 {
		p.CeremonyTimeout = 60 * time.Second
	}

	p.allowed = parseAlgorithms(p.Algorithms)
	if len(p.allowed) == 0 {
		p.allowed = []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256}
	}

	return &p, nil
}

// parseAlgorithms parses an ordered comma-separated algorithm declaration,
// trimming whitespace around each entry. Unknown names are skipped.
func parseAlgorithms(s string) []webauthncose.COSEAlgorithmIdentifier {
	var out []webauthncose.COSEAlgorithmIdentifier
	for _, name := range strings.Split(s, ",") {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if alg, ok := algorithmNames[name]; ok {
			out = append(out, alg)
		}
	}
	return out
}

// AllowedAlgorithms returns the ordered allowlist of COSE algorithm
// identifiers.
func (p *Policy) AllowedAlgorithms() []webauthncose.COSEAlgorithmIdentifier {
	out := make([]webauthncose.COSEAlgorithmIdentifier, len(p.allowed))
	copy(out, p.allowed)
	return out
}

// AlgorithmAllowed reports whether alg is in the allowlist.
func (p *Policy) AlgorithmAllowed(alg int64) bool {
	for _, a := range p.allowed {
		if int64(a) == alg {
			return true
		}
	}
	return false
}

// UserVerificationRequirement returns the policy's requirement as the
// protocol enumeration.
func (p *Policy) UserVerificationRequirement() protocol.UserVerificationRequirement {
	switch p.UserVerification {
	case "preferred":
		return protocol.VerificationPreferred
	case "discouraged":
		return protocol.VerificationDiscouraged
	default:
		return protocol.VerificationRequired
	}
}

// RequiresUserVerification reports whether an authenticator must assert
// the UV flag for a ceremony to pass.
func (p *Policy) RequiresUserVerification() bool {
	return p.UserVerification == "required" || p.UserVerification == ""
}

// CredentialParameters returns the allowlist as creation-option
// credential parameters, preserving declaration order.
func (p *Policy) CredentialParameters() []protocol.CredentialParameter {
	params := make([]protocol.CredentialParameter, len(p.allowed))
	for i, alg := range p.allowed {
		params[i] = protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: alg,
		}
	}
	return params
}
