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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTGenerator issues signed JWTs for authenticated users.
type JWTGenerator struct {
	// privateKey is the key used to sign tokens
	privateKey crypto.PrivateKey
	// publicKey is the key used to verify tokens
	publicKey crypto.PublicKey
	// method is the signing method derived from the key type
	method jwt.SigningMethod
	// issuer is the JWT issuer claim
	issuer string
	// audience is the JWT audience claim
	audience []string
	// expiresIn is how long tokens are valid
	expiresIn time.Duration
	// keyID is the key identifier for the kid header
	keyID string
}

// JWTGeneratorConfig contains configuration for the JWT generator.
type JWTGeneratorConfig struct {
	// PrivateKey is the key used to sign tokens (required)
	PrivateKey crypto.PrivateKey
	// PublicKey is the key used to verify tokens (optional, derived from PrivateKey if not set)
	PublicKey crypto.PublicKey
	// Issuer is the JWT issuer claim (default: "go-passkey")
	Issuer string
	// Audience is the JWT audience claim (default: ["go-passkey"])
	Audience []string
	// ExpiresIn is how long tokens are valid (default: 1 hour)
	ExpiresIn time.Duration
	// KeyID is the key identifier for the kid header (optional)
	KeyID string
}

// NewJWTGenerator creates a new JWT generator with the given configuration.
func NewJWTGenerator(config *JWTGeneratorConfig) (*JWTGenerator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	method, err := signingMethodForKey(config.PrivateKey)
	if err != nil {
		return nil, err
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	publicKey := config.PublicKey
	if publicKey == nil {
		type publicKeyGetter interface {
			Public() crypto.PublicKey
		}
		if pk, ok := config.PrivateKey.(publicKeyGetter); ok {
			publicKey = pk.Public()
		}
	}

	return &JWTGenerator{
		privateKey: config.PrivateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
		keyID:      config.KeyID,
	}, nil
}

// signingMethodForKey maps the private key type to a JWT signing method.
func signingMethodForKey(key crypto.PrivateKey) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return jwt.SigningMethodES256, nil
		case 384:
			return jwt.SigningMethodES384, nil
		case 521:
			return jwt.SigningMethodES512, nil
		default:
			return nil, fmt.Errorf("unsupported ECDSA curve: %s", k.Curve.Params().Name)
		}
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("unsupported signing key type %T", key)
	}
}

// GenerateToken creates a JWT for the authenticated user and the
// credential that authenticated them.
func (g *JWTGenerator) GenerateToken(ctx context.Context, user *User, cred *Credential) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": g.issuer,
		"aud": g.audience,
		"sub": base64.RawURLEncoding.EncodeToString(user.Handle),
		"iat": now.Unix(),
		"exp": now.Add(g.expiresIn).Unix(),
		"nbf": now.Unix(),
		// Custom claims
		"name":     user.DisplayName,
		"username": user.Name,
	}
	if cred != nil {
		claims["cid"] = base64.RawURLEncoding.EncodeToString(cred.ID)
		claims["amr"] = []string{"webauthn"}
	}

	token := jwt.NewWithClaims(g.method, claims)
	if g.keyID != "" {
		token.Header["kid"] = g.keyID
	}
	return token.SignedString(g.privateKey)
}

// VerifyToken verifies a JWT and returns the claims.
func (g *JWTGenerator) VerifyToken(tokenString string) (jwt.MapClaims, error) {
	if g.publicKey == nil {
		return nil, fmt.Errorf("public key not available for verification")
	}

	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (any, error) {
			if token.Method.Alg() != g.method.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
			}
			return g.publicKey, nil
		},
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// PublicKey returns the public key for token verification.
func (g *JWTGenerator) PublicKey() crypto.PublicKey {
	return g.publicKey
}

// Issuer returns the configured issuer.
func (g *JWTGenerator) Issuer() string {
	return g.issuer
}

// ExpiresIn returns the token expiration duration.
func (g *JWTGenerator) ExpiresIn() time.Duration {
	return g.expiresIn
}
