package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSigning      = errors.New("jwtx: signing failed")
	ErrInvalidToken = errors.New("jwtx: invalid token")
	ErrExpired      = errors.New("jwtx: token expired")
)

// Pair is an access/refresh token pair signed with the same key.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Codec mints and verifies token pairs against per-session key material.
// It holds no keys itself; callers pass the key pair on every call.
type Codec struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// NewCodec returns a Codec with the default lifetimes.
func NewCodec(issuer string) *Codec {
	return &Codec{
		Issuer:     issuer,
		AccessTTL:  DefaultAccessTokenTTL,
		RefreshTTL: DefaultRefreshTokenTTL,
	}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Codec) accessTTL() time.Duration {
	if c.AccessTTL > 0 {
		return c.AccessTTL
	}
	return DefaultAccessTokenTTL
}

func (c *Codec) refreshTTL() time.Duration {
	if c.RefreshTTL > 0 {
		return c.RefreshTTL
	}
	return DefaultRefreshTokenTTL
}

// Issue signs a fresh access and refresh token for id with keys.PrivateKey.
// The algorithm follows the private key type.
func (c *Codec) Issue(id Identity, keys cryptox.KeyPair) (Pair, error) {
	priv, err := cryptox.ParsePrivateKey(keys.PrivateKey)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	method, err := methodFor(priv.Public())
	if err != nil {
		return Pair{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	now := c.now()
	access := newClaims(id, UseAccess, c.Issuer, c.accessTTL(), now)
	refresh := newClaims(id, UseRefresh, c.Issuer, c.refreshTTL(), now)

	accessToken, err := jwt.NewWithClaims(method, access).SignedString(priv)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: access token: %w", ErrSigning, err)
	}
	refreshToken, err := jwt.NewWithClaims(method, refresh).SignedString(priv)
	if err != nil {
		return Pair{}, fmt.Errorf("%w: refresh token: %w", ErrSigning, err)
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  access.ExpiresAt.Time,
		RefreshExpiresAt: refresh.ExpiresAt.Time,
	}, nil
}

// Verify checks the signature of token against publicKeyPEM and returns its
// claims. Expired tokens yield ErrExpired; every other failure yields
// ErrInvalidToken.
func (c *Codec) Verify(token, publicKeyPEM string) (Claims, error) {
	pub, err := cryptox.ParsePublicKey(publicKeyPEM)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	method, err := methodFor(pub)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}

	var claims Claims
	_, err = jwt.NewParser(opts...).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return pub, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: missing userId", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyAs is Verify plus a check that the token was minted for use.
func (c *Codec) VerifyAs(token, publicKeyPEM, use string) (Claims, error) {
	claims, err := c.Verify(token, publicKeyPEM)
	if err != nil {
		return Claims{}, err
	}
	if claims.Use != use {
		return Claims{}, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, use, claims.Use)
	}
	return claims, nil
}

func methodFor(pub crypto.PublicKey) (jwt.SigningMethod, error) {
	switch pub.(type) {
	case ed25519.PublicKey:
		return jwt.SigningMethodEdDSA, nil
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256, nil
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", pub)
	}
}
