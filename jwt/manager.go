package jwt

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSigningKey is returned by Sign on a verify-only manager.
var ErrNoSigningKey = errors.New("jwt: manager has no signing key")

// Config configures a [Manager]. A manager without PrivateKey can only verify, which is how
// resource services that merely guard routes are expected to run.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	// VerifyKeys holds the public keys accepted during key rotation, by kid.
	VerifyKeys map[string][]byte

	Issuer   string
	Audience string
	Leeway   time.Duration

	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	AntiForgeryTTL time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager signs and verifies tokens. It is safe for concurrent use.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	signKey crypto.Signer
	keys    map[string]crypto.PublicKey
	now     func() time.Time
}

// NewManager validates cfg and parses all key material up front.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.AntiForgeryTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	method, err := cfg.SigningMethod.jwtMethod()
	if err != nil {
		return nil, err
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{
		config: cfg,
		method: method,
		keys:   make(map[string]crypto.PublicKey, len(cfg.VerifyKeys)+1),
		now:    cfg.Now,
	}
	if m.now == nil {
		m.now = time.Now
	}

	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		pub, err := parsePublicKey(cfg.SigningMethod, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
		}
		m.keys[kid] = pub
	}
	if len(cfg.PublicKey) > 0 {
		pub, err := parsePublicKey(cfg.SigningMethod, cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.keys[cfg.KeyID] = pub
	}
	if len(cfg.PrivateKey) > 0 {
		signer, err := parsePrivateKey(cfg.SigningMethod, cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.signKey = signer
		if _, ok := m.keys[cfg.KeyID]; !ok {
			if len(cfg.VerifyKeys) > 0 {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
			m.keys[cfg.KeyID] = publicOf(signer)
		}
	}
	if len(m.keys) == 0 {
		return nil, errors.New("public key or verify key set required")
	}

	return m, nil
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Sign stamps the purpose, issuer, audience, iat and exp onto claims and signs them.
func (m *Manager) Sign(claims Claims, expiry time.Time) (string, error) {
	if m.signKey == nil {
		return "", ErrNoSigningKey
	}
	reg := claims.stamp()
	reg.Issuer = m.config.Issuer
	if m.config.Audience != "" {
		reg.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	reg.IssuedAt = jwt.NewNumericDate(m.now())
	reg.ExpiresAt = jwt.NewNumericDate(expiry)

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.signKey)
}

// IssueAccess signs an access token for subject bound to sessionID.
func (m *Manager) IssueAccess(subject, sessionID string, roles []string) (string, time.Time, error) {
	exp := m.now().Add(m.config.AccessTTL)
	token, err := m.Sign(&AccessClaims{
		SessionID:        sessionID,
		Roles:            roles,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}, exp)
	return token, exp, err
}

// IssueRefresh signs a refresh token whose jti is tokenID.
func (m *Manager) IssueRefresh(subject, sessionID, tokenID string) (string, time.Time, error) {
	exp := m.now().Add(m.config.RefreshTTL)
	token, err := m.Sign(&RefreshClaims{
		SessionID:        sessionID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject, ID: tokenID},
	}, exp)
	return token, exp, err
}

// IssueAntiForgery signs an anti-forgery token. An empty sessionID yields an anonymous token.
func (m *Manager) IssueAntiForgery(sessionID string) (string, time.Time, error) {
	exp := m.now().Add(m.config.AntiForgeryTTL)
	token, err := m.Sign(&AntiForgeryClaims{
		SessionID:        sessionID,
		RegisteredClaims: jwt.RegisteredClaims{ID: uuid.NewString()},
	}, exp)
	return token, exp, err
}

// VerifyAccess verifies an access token.
func (m *Manager) VerifyAccess(token string) (*AccessClaims, error) {
	var c AccessClaims
	if err := m.Verify(token, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// VerifyRefresh verifies a refresh token.
func (m *Manager) VerifyRefresh(token string) (*RefreshClaims, error) {
	var c RefreshClaims
	if err := m.Verify(token, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// VerifyAntiForgery verifies an anti-forgery token.
func (m *Manager) VerifyAntiForgery(token string) (*AntiForgeryClaims, error) {
	var c AntiForgeryClaims
	if err := m.Verify(token, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// InspectRefresh verifies everything except expiry. Logout uses it so that a client holding an
// expired refresh token can still end its session.
func (m *Manager) InspectRefresh(token string) (*RefreshClaims, error) {
	var c RefreshClaims
	if err := m.verify(token, &c, true); err != nil {
		return nil, err
	}
	return &c, nil
}

// InspectAntiForgery verifies everything except expiry. Refresh and logout accept a
// session-bound anti-forgery token past its exp; the signature and sid still have to hold.
func (m *Manager) InspectAntiForgery(token string) (*AntiForgeryClaims, error) {
	var c AntiForgeryClaims
	if err := m.verify(token, &c, true); err != nil {
		return nil, err
	}
	return &c, nil
}

// Verify decodes token into dst after running every check in order.
func (m *Manager) Verify(token string, dst Claims) error {
	return m.verify(token, dst, false)
}

type header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

func (m *Manager) verify(token string, dst Claims, ignoreExpiry bool) error {
	// Structure is checked before any key material is touched; the payload is only
	// decoded once the signature holds.
	if strings.Count(token, ".") != 2 {
		return fail(ErrMalformed, jwt.ErrTokenMalformed)
	}
	first := strings.IndexByte(token, '.')
	last := strings.LastIndexByte(token, '.')
	if first == 0 || last == first+1 || last == len(token)-1 {
		return fail(ErrMalformed, jwt.ErrTokenMalformed)
	}

	parser := jwt.NewParser()
	raw, err := parser.DecodeSegment(token[:first])
	if err != nil {
		return fail(ErrMalformed, err)
	}
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return fail(ErrMalformed, err)
	}
	if h.Alg == "" {
		return fail(ErrMalformed, jwt.ErrTokenMalformed)
	}
	sig, err := parser.DecodeSegment(token[last+1:])
	if err != nil {
		return fail(ErrMalformed, err)
	}

	if h.Alg != m.method.Alg() {
		return fail(ErrBadSignature, jwt.ErrTokenUnverifiable)
	}
	key, ok := m.keyFor(h.Kid)
	if !ok {
		return fail(ErrBadSignature, jwt.ErrTokenUnverifiable)
	}
	if err := m.method.Verify(token[:last], sig, key); err != nil {
		return fail(ErrBadSignature, jwt.ErrTokenSignatureInvalid)
	}

	payload, err := parser.DecodeSegment(token[first+1 : last])
	if err != nil {
		return fail(ErrMalformed, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fail(ErrMalformed, err)
	}

	return m.validate(dst, ignoreExpiry)
}

func (m *Manager) keyFor(kid string) (crypto.PublicKey, bool) {
	if key, ok := m.keys[kid]; ok {
		return key, true
	}
	if kid == "" && len(m.keys) == 1 {
		for _, key := range m.keys {
			return key, true
		}
	}
	return nil, false
}

func (m *Manager) validate(c Claims, ignoreExpiry bool) error {
	now := m.now()
	leeway := m.config.Leeway

	if !ignoreExpiry {
		exp, _ := c.GetExpirationTime()
		if exp == nil {
			return fail(ErrMalformed, jwt.ErrTokenRequiredClaimMissing)
		}
		// exp == now is already expired.
		if !now.Before(exp.Add(leeway)) {
			return fail(ErrExpired, jwt.ErrTokenExpired)
		}
	}
	if nbf, _ := c.GetNotBefore(); nbf != nil && now.Add(leeway).Before(nbf.Time) {
		return fail(ErrNotYetValid, jwt.ErrTokenNotValidYet)
	}
	if m.config.Issuer != "" {
		if iss, _ := c.GetIssuer(); iss != m.config.Issuer {
			return fail(ErrWrongIssuer, jwt.ErrTokenInvalidIssuer)
		}
	}
	if m.config.Audience != "" {
		aud, _ := c.GetAudience()
		if !slices.Contains(aud, m.config.Audience) {
			return fail(ErrWrongAudience, jwt.ErrTokenInvalidAudience)
		}
	}
	if c.tag() != c.purpose() {
		return fail(ErrWrongPurpose, jwt.ErrTokenInvalidClaims)
	}
	return nil
}
