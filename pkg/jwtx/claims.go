package jwtx

import (
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token uses, carried in the "use" claim so an access token can't be replayed
// as a refresh token or the other way round.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Identity is the principal a token pair is minted for.
type Identity struct {
	UserID string
	Email  string
}

// Claims are the payload of both access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"userId"`
	Email  string `json:"email"`
	Use    string `json:"use"`
}

// Identity returns the principal the claims were minted for.
func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email}
}

func newClaims(id Identity, use, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		UserID: id.UserID,
		Email:  id.Email,
		Use:    use,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	// crypto/rand does not fail for a positive size.
	jti, _ := cryptox.GenerateToken(cryptox.TokenSize128)
	return jti
}
