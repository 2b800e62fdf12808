package federation

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signIDToken(t *testing.T, method jwt.SigningMethod, key crypto.Signer, kid string, claims idTokenClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() idTokenClaims {
	return idTokenClaims{
		Email: "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://idp.example.com",
			Subject:   "idp-123",
			Audience:  jwt.ClaimStrings{"goRenew"},
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(5 * time.Minute)),
		},
	}
}

func newVerifier(t *testing.T, keys map[string]crypto.PublicKey) *Verifier {
	t.Helper()
	v, err := NewVerifier(30*time.Second, Provider{
		Name:     "idp",
		Issuer:   "https://idp.example.com",
		Audience: "goRenew",
		Keys:     keys,
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v.WithClock(func() time.Time { return testNow })
}

func TestVerifyAcceptsEachKeyFamily(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	edPub, edPriv, _ := ed25519.GenerateKey(rand.Reader)

	v := newVerifier(t, map[string]crypto.PublicKey{
		"rsa": &rsaKey.PublicKey,
		"ec":  &ecKey.PublicKey,
		"ed":  edPub,
	})

	cases := []struct {
		name   string
		method jwt.SigningMethod
		key    crypto.Signer
	}{
		{"rsa", jwt.SigningMethodRS256, rsaKey},
		{"ec", jwt.SigningMethodES256, ecKey},
		{"ed", jwt.SigningMethodEdDSA, edPriv},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := signIDToken(t, tc.method, tc.key, tc.name, validClaims())
			got, err := v.Verify(context.Background(), "idp", token)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got.Subject != "idp-123" || got.Provider != "idp" || got.Email != "user@example.com" {
				t.Fatalf("unexpected assertion %+v", got)
			}
			if got.EmailVerified {
				t.Fatal("email must not be verified without the claim")
			}
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	edPub, edPriv, _ := ed25519.GenerateKey(rand.Reader)
	_, otherPriv, _ := ed25519.GenerateKey(rand.Reader)
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	v := newVerifier(t, map[string]crypto.PublicKey{"k1": edPub})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Minute))
	wrongIss := validClaims()
	wrongIss.Issuer = "https://evil.example.com"
	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"someone-else"}
	noExp := validClaims()
	noExp.ExpiresAt = nil
	noSub := validClaims()
	noSub.Subject = ""

	cases := map[string]string{
		"expired":         signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k1", expired),
		"wrong issuer":    signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k1", wrongIss),
		"wrong audience":  signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k1", wrongAud),
		"missing exp":     signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k1", noExp),
		"missing subject": signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k1", noSub),
		"foreign key":     signIDToken(t, jwt.SigningMethodEdDSA, otherPriv, "k1", validClaims()),
		"unknown kid":     signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k2", validClaims()),
		"alg mismatch":    signIDToken(t, jwt.SigningMethodRS256, rsaKey, "k1", validClaims()),
		"garbage":         "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), "idp", token)
			if !errors.Is(err, ErrInvalidAssertion) {
				t.Fatalf("expected ErrInvalidAssertion, got %v", err)
			}
		})
	}

	if _, err := v.Verify(context.Background(), "nope", "x"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestVerifyWithoutKidNeedsSingleKey(t *testing.T) {
	edPub, edPriv, _ := ed25519.GenerateKey(rand.Reader)
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	token := signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "", validClaims())

	single := newVerifier(t, map[string]crypto.PublicKey{"only": edPub})
	if _, err := single.Verify(context.Background(), "idp", token); err != nil {
		t.Fatalf("single key: %v", err)
	}

	multi := newVerifier(t, map[string]crypto.PublicKey{"a": edPub, "b": otherPub})
	if _, err := multi.Verify(context.Background(), "idp", token); !errors.Is(err, ErrInvalidAssertion) {
		t.Fatalf("expected rejection without kid, got %v", err)
	}
}

func TestEmailVerifiedClaim(t *testing.T) {
	edPub, edPriv, _ := ed25519.GenerateKey(rand.Reader)
	v := newVerifier(t, map[string]crypto.PublicKey{"k1": edPub})

	claims := validClaims()
	claims.EmailVerified = true
	got, err := v.Verify(context.Background(), "idp", signIDToken(t, jwt.SigningMethodEdDSA, edPriv, "k1", claims))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !got.EmailVerified {
		t.Fatal("expected verified email")
	}
}

func TestNewVerifierValidation(t *testing.T) {
	edPub, _, _ := ed25519.GenerateKey(rand.Reader)
	good := Provider{Name: "a", Issuer: "i", Audience: "aud", Keys: map[string]crypto.PublicKey{"k": edPub}}

	if _, err := NewVerifier(3*time.Minute, good); err == nil {
		t.Fatal("expected leeway error")
	}
	if _, err := NewVerifier(0, good, good); err == nil {
		t.Fatal("expected duplicate error")
	}
	noKeys := good
	noKeys.Keys = nil
	if _, err := NewVerifier(0, noKeys); err == nil {
		t.Fatal("expected missing keys error")
	}
}

func TestParsePublicKeyPEM(t *testing.T) {
	edPub, _, _ := ed25519.GenerateKey(rand.Reader)
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)

	for name, pub := range map[string]any{"ed25519": edPub, "ecdsa": &ecKey.PublicKey} {
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			t.Fatalf("%s marshal: %v", name, err)
		}
		data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
		if _, err := ParsePublicKeyPEM(data); err != nil {
			t.Fatalf("%s parse: %v", name, err)
		}
	}
	if _, err := ParsePublicKeyPEM([]byte("junk")); err == nil {
		t.Fatal("expected error for junk input")
	}
}
