package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/cryptox"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const exampleIssuer = "https://auth.shop.example"

var shop = jwtx.Identity{UserID: "01JSHOP0000000000000000000", Email: "owner@shop.example"}

func TestCodec_IssueAndVerify(t *testing.T) {
	for _, alg := range []string{cryptox.AlgorithmEdDSA, cryptox.AlgorithmES256, cryptox.AlgorithmRS256} {
		t.Run(alg, func(t *testing.T) {
			keys := cryptox.KeyGenerator{Algorithm: alg}.Generate()
			codec := jwtx.NewCodec(exampleIssuer)

			pair, err := codec.Issue(shop, keys)
			require.NoError(t, err)
			require.NotEmpty(t, pair.AccessToken)
			require.NotEmpty(t, pair.RefreshToken)
			require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
			require.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

			access, err := codec.VerifyAs(pair.AccessToken, keys.PublicKey, jwtx.UseAccess)
			require.NoError(t, err)
			require.Equal(t, shop.UserID, access.UserID)
			require.Equal(t, shop.Email, access.Email)
			require.Equal(t, shop.UserID, access.Subject)
			require.Equal(t, exampleIssuer, access.Issuer)
			require.Equal(t, shop, access.Identity())

			refresh, err := codec.VerifyAs(pair.RefreshToken, keys.PublicKey, jwtx.UseRefresh)
			require.NoError(t, err)
			require.Equal(t, shop.UserID, refresh.UserID)
			require.NotEqual(t, access.ID, refresh.ID)
		})
	}
}

func TestCodec_DefaultLifetimes(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	codec := &jwtx.Codec{Issuer: exampleIssuer, Now: func() time.Time { return now }}

	pair, err := codec.Issue(shop, cryptox.KeyGenerator{}.Generate())
	require.NoError(t, err)
	require.Equal(t, now.Add(jwtx.DefaultAccessTokenTTL), pair.AccessExpiresAt)
	require.Equal(t, now.Add(jwtx.DefaultRefreshTokenTTL), pair.RefreshExpiresAt)
}

func TestCodec_PairsAreDistinctWithinOneSecond(t *testing.T) {
	now := time.Now()
	codec := &jwtx.Codec{Issuer: exampleIssuer, Now: func() time.Time { return now }}
	keys := cryptox.KeyGenerator{}.Generate()

	a, err := codec.Issue(shop, keys)
	require.NoError(t, err)
	b, err := codec.Issue(shop, keys)
	require.NoError(t, err)

	require.NotEqual(t, a.AccessToken, b.AccessToken)
	require.NotEqual(t, a.RefreshToken, b.RefreshToken)
}

func TestCodec_WrongKey(t *testing.T) {
	codec := jwtx.NewCodec(exampleIssuer)
	pair, err := codec.Issue(shop, cryptox.KeyGenerator{}.Generate())
	require.NoError(t, err)

	other := cryptox.KeyGenerator{}.Generate()
	_, err = codec.Verify(pair.AccessToken, other.PublicKey)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestCodec_AlgorithmConfusion(t *testing.T) {
	codec := jwtx.NewCodec(exampleIssuer)
	ec := cryptox.KeyGenerator{Algorithm: cryptox.AlgorithmES256}.Generate()
	ed := cryptox.KeyGenerator{}.Generate()

	pair, err := codec.Issue(shop, ec)
	require.NoError(t, err)

	_, err = codec.Verify(pair.AccessToken, ed.PublicKey)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestCodec_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	keys := cryptox.KeyGenerator{}.Generate()

	issuer := &jwtx.Codec{Issuer: exampleIssuer, AccessTTL: time.Minute, Now: func() time.Time { return issuedAt }}
	pair, err := issuer.Issue(shop, keys)
	require.NoError(t, err)

	verifier := jwtx.NewCodec(exampleIssuer)
	_, err = verifier.Verify(pair.AccessToken, keys.PublicKey)
	require.ErrorIs(t, err, jwtx.ErrExpired)

	// the refresh token is still inside its week
	_, err = verifier.VerifyAs(pair.RefreshToken, keys.PublicKey, jwtx.UseRefresh)
	require.NoError(t, err)
}

func TestCodec_WrongUse(t *testing.T) {
	codec := jwtx.NewCodec(exampleIssuer)
	keys := cryptox.KeyGenerator{}.Generate()
	pair, err := codec.Issue(shop, keys)
	require.NoError(t, err)

	_, err = codec.VerifyAs(pair.AccessToken, keys.PublicKey, jwtx.UseRefresh)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	_, err = codec.VerifyAs(pair.RefreshToken, keys.PublicKey, jwtx.UseAccess)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestCodec_IssuerMismatch(t *testing.T) {
	keys := cryptox.KeyGenerator{}.Generate()
	pair, err := jwtx.NewCodec("someone-else").Issue(shop, keys)
	require.NoError(t, err)

	_, err = jwtx.NewCodec(exampleIssuer).Verify(pair.AccessToken, keys.PublicKey)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestCodec_Malformed(t *testing.T) {
	codec := jwtx.NewCodec(exampleIssuer)
	keys := cryptox.KeyGenerator{}.Generate()

	for _, tok := range []string{"", "abc", "a.b.c", strings.Repeat("x", 200)} {
		_, err := codec.Verify(tok, keys.PublicKey)
		require.ErrorIs(t, err, jwtx.ErrInvalidToken)
	}

	_, err := codec.Verify("a.b.c", "not a key")
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestCodec_RejectsUnsignedToken(t *testing.T) {
	codec := jwtx.NewCodec(exampleIssuer)
	keys := cryptox.KeyGenerator{}.Generate()

	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    exampleIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: shop.UserID,
		Use:    jwtx.UseAccess,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(tok, keys.PublicKey)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestCodec_IssueBadKeyMaterial(t *testing.T) {
	codec := jwtx.NewCodec(exampleIssuer)

	_, err := codec.Issue(shop, cryptox.KeyPair{PrivateKey: "garbage"})
	require.ErrorIs(t, err, jwtx.ErrSigning)
}

func TestNewJTI(t *testing.T) {
	a, b := jwtx.NewJTI(), jwtx.NewJTI()
	require.Len(t, a, 22, "128-bit base64url")
	require.NotEqual(t, a, b)
}
