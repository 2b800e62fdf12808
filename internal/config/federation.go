package config

import (
	"crypto"
	"encoding/json"
	"fmt"
	"os"

	"github.com/MrEthical07/goRenew/federation"
)

type providerFile struct {
	Providers []providerJSON `json:"providers"`
}

type providerJSON struct {
	Name       string            `json:"name"`
	Issuer     string            `json:"issuer"`
	Audience   string            `json:"audience"`
	TrustEmail bool              `json:"trust_email"`
	Keys       map[string]string `json:"keys"` // kid -> PEM
}

// LoadProviders reads identity providers from the JSON file at path.
func LoadProviders(path string) ([]federation.Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProviders(raw)
}

// ParseProviders decodes a provider document.
func ParseProviders(raw []byte) ([]federation.Provider, error) {
	var doc providerFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("federation file: %w", err)
	}

	out := make([]federation.Provider, 0, len(doc.Providers))
	for _, p := range doc.Providers {
		keys := make(map[string]crypto.PublicKey, len(p.Keys))
		for kid, pem := range p.Keys {
			k, err := federation.ParsePublicKeyPEM([]byte(pem))
			if err != nil {
				return nil, fmt.Errorf("provider %q key %q: %w", p.Name, kid, err)
			}
			keys[kid] = k
		}
		out = append(out, federation.Provider{
			Name:       p.Name,
			Issuer:     p.Issuer,
			Audience:   p.Audience,
			Keys:       keys,
			TrustEmail: p.TrustEmail,
		})
	}
	return out, nil
}
