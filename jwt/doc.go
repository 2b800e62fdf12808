// Package jwt signs and verifies the three token kinds of the renewal protocol: access,
// refresh, and anti-forgery tokens.
//
// # Closed claim sets
//
// Each token kind has its own claim struct ([AccessClaims], [RefreshClaims],
// [AntiForgeryClaims]) carrying a purpose tag (`pur`). Verification always names the purpose it
// expects, so a token minted for one operation is rejected by every other one with
// [ErrWrongPurpose].
//
// # Verification order
//
// [Manager] checks, in order: structure, signature, expiry, not-before, issuer, audience,
// purpose. The first failing check decides the returned error. Structure means exactly three
// segments and a base64url JSON header naming an algorithm; anything else is [ErrMalformed]
// before a key is consulted. The signature is verified over the raw signing input before any
// claim is decoded. A token without exp is [ErrMalformed], not [ErrExpired].
//
// # Architecture boundaries
//
// This package is pure: it never touches a session store and never logs. Key rotation is
// configured through [Config.VerifyKeys]; [Manager.JWKS] publishes every verification key.
package jwt
