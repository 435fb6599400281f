package cryptox

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Supported signing algorithms for per-session key pairs. The names match the
// JWS "alg" values so they can be passed straight to the token codec.
const (
	AlgorithmEdDSA = "EdDSA"
	AlgorithmES256 = "ES256"
	AlgorithmRS256 = "RS256"

	// DefaultRSABits is used for RS256 when no size is configured.
	DefaultRSABits = 2048
)

// KeyPair is the signing material bound to a single session. Both halves are
// PEM encoded: the public key as PKIX "PUBLIC KEY", the private key as PKCS8
// "PRIVATE KEY".
type KeyPair struct {
	Algorithm  string
	PublicKey  string
	PrivateKey string
}

// KeyGenerator produces fresh key pairs for session-establishing events.
// The zero value generates Ed25519 keys.
type KeyGenerator struct {
	Algorithm string
	RSABits   int
}

// ValidateAlgorithm reports whether alg names a supported algorithm. An empty
// string is accepted and means EdDSA.
func ValidateAlgorithm(alg string) error {
	switch alg {
	case "", AlgorithmEdDSA, AlgorithmES256, AlgorithmRS256:
		return nil
	default:
		return fmt.Errorf("cryptox: unsupported key algorithm %q", alg)
	}
}

// Generate returns a new key pair. It never returns a partially filled pair:
// a failing entropy source leaves the process in a state we can't reason
// about, so it panics instead.
func (g KeyGenerator) Generate() KeyPair {
	alg := g.Algorithm
	if alg == "" {
		alg = AlgorithmEdDSA
	}

	var (
		priv crypto.Signer
		err  error
	)
	switch alg {
	case AlgorithmEdDSA:
		_, priv, err = ed25519.GenerateKey(rand.Reader)
	case AlgorithmES256:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgorithmRS256:
		bits := g.RSABits
		if bits < DefaultRSABits {
			bits = DefaultRSABits
		}
		priv, err = rsa.GenerateKey(rand.Reader, bits)
	default:
		panic(fmt.Sprintf("cryptox: unsupported key algorithm %q", alg))
	}
	if err != nil {
		panic(fmt.Sprintf("cryptox: failed to generate %s key: %v", alg, err))
	}

	pair, err := encodeKeyPair(alg, priv)
	if err != nil {
		panic(err.Error())
	}
	return pair
}

func encodeKeyPair(alg string, priv crypto.Signer) (KeyPair, error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("cryptox: marshal PKCS8 key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
	if err != nil {
		return KeyPair{}, fmt.Errorf("cryptox: marshal PKIX key: %w", err)
	}

	return KeyPair{
		Algorithm:  alg,
		PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})),
	}, nil
}

// ParsePrivateKey decodes a PKCS8 PEM private key.
func ParsePrivateKey(pemKey string) (crypto.Signer, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("cryptox: invalid PEM private key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("cryptox: expected PRIVATE KEY, got %q", block.Type)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse PKCS8: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("cryptox: unsupported private key type %T", key)
	}
	return signer, nil
}

// ParsePublicKey decodes a PKIX PEM public key.
func ParsePublicKey(pemKey string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("cryptox: invalid PEM public key")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("cryptox: expected PUBLIC KEY, got %q", block.Type)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse PKIX: %w", err)
	}
	return key, nil
}
