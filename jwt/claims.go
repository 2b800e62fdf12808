package jwt

import "github.com/golang-jwt/jwt/v5"

// Purpose tags a token with the single operation it may be presented to.
type Purpose string

const (
	PurposeAccess      Purpose = "access"
	PurposeRefresh     Purpose = "refresh"
	PurposeAntiForgery Purpose = "csrf"
)

// AntiForgeryScope distinguishes pre-login tokens from session-bound ones.
type AntiForgeryScope string

const (
	ScopeAnonymous     AntiForgeryScope = "anon"
	ScopeAuthenticated AntiForgeryScope = "authenticated"
)

// Claims is implemented only by the claim sets of this package.
type Claims interface {
	jwt.Claims
	purpose() Purpose
	tag() Purpose
	stamp() *jwt.RegisteredClaims
}

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	Purpose   Purpose  `json:"pur"`
	SessionID string   `json:"sid"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. ID (jti) is the lineage marker stored
// by the session store.
type RefreshClaims struct {
	Purpose   Purpose `json:"pur"`
	SessionID string  `json:"sid"`
	jwt.RegisteredClaims
}

// AntiForgeryClaims is the payload of an anti-forgery token. SessionID is empty for
// anonymous tokens.
type AntiForgeryClaims struct {
	Purpose   Purpose          `json:"pur"`
	Scope     AntiForgeryScope `json:"scp"`
	SessionID string           `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) purpose() Purpose { return PurposeAccess }

func (c *AccessClaims) tag() Purpose { return c.Purpose }

func (c *AccessClaims) stamp() *jwt.RegisteredClaims {
	c.Purpose = PurposeAccess
	return &c.RegisteredClaims
}

func (c *RefreshClaims) purpose() Purpose { return PurposeRefresh }

func (c *RefreshClaims) tag() Purpose { return c.Purpose }

func (c *RefreshClaims) stamp() *jwt.RegisteredClaims {
	c.Purpose = PurposeRefresh
	return &c.RegisteredClaims
}

func (c *AntiForgeryClaims) purpose() Purpose { return PurposeAntiForgery }

func (c *AntiForgeryClaims) tag() Purpose { return c.Purpose }

func (c *AntiForgeryClaims) stamp() *jwt.RegisteredClaims {
	c.Purpose = PurposeAntiForgery
	if c.Scope == "" {
		c.Scope = ScopeAnonymous
		if c.SessionID != "" {
			c.Scope = ScopeAuthenticated
		}
	}
	return &c.RegisteredClaims
}
