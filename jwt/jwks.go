package jwt

import (
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"sort"
)

// JWK is one published verification key.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSet is the document served at /.well-known/jwks.json.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns every key the manager accepts, sorted by kid, so that resource services can
// follow key rotation without sharing configuration.
func (m *Manager) JWKS() JWKSet {
	kids := make([]string, 0, len(m.keys))
	for kid := range m.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)

	set := JWKSet{Keys: make([]JWK, 0, len(kids))}
	for _, kid := range kids {
		k := JWK{Kid: kid, Use: "sig", Alg: m.method.Alg()}
		switch pub := m.keys[kid].(type) {
		case ed25519.PublicKey:
			k.Kty = "OKP"
			k.Crv = "Ed25519"
			k.X = base64.RawURLEncoding.EncodeToString(pub)
		case *rsa.PublicKey:
			k.Kty = "RSA"
			k.N = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
			k.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
		default:
			continue
		}
		set.Keys = append(set.Keys, k)
	}
	return set
}
