package jwt

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the asymmetric algorithm used for every token kind.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodRS256   SigningMethod = "rs256"
)

func (s SigningMethod) jwtMethod() (jwt.SigningMethod, error) {
	switch s {
	case MethodEd25519, "":
		return jwt.SigningMethodEdDSA, nil
	case MethodRS256:
		return jwt.SigningMethodRS256, nil
	default:
		return nil, errors.New("unsupported signing method")
	}
}

func parsePrivateKey(method SigningMethod, key []byte) (crypto.Signer, error) {
	if method == MethodRS256 {
		k, err := jwt.ParseRSAPrivateKeyFromPEM(key)
		if err != nil {
			return nil, errors.New("invalid rsa private key")
		}
		return k, nil
	}
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parsePublicKey(method SigningMethod, key []byte) (crypto.PublicKey, error) {
	if method == MethodRS256 {
		k, err := jwt.ParseRSAPublicKeyFromPEM(key)
		if err != nil {
			return nil, errors.New("invalid rsa public key")
		}
		return k, nil
	}
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

func publicOf(signer crypto.Signer) crypto.PublicKey {
	switch k := signer.(type) {
	case ed25519.PrivateKey:
		return k.Public().(ed25519.PublicKey)
	case *rsa.PrivateKey:
		return &k.PublicKey
	default:
		return signer.Public()
	}
}
