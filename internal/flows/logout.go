package flows

import (
	"context"

	"github.com/MrEthical07/goRenew/jwt"
)

type LogoutSessionStore interface {
	RevokeSession(ctx context.Context, sessionID string) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	InspectRefresh func(string) (*jwt.RefreshClaims, error)
	SessionStore   LogoutSessionStore
}

type LogoutResult struct {
	SessionID   string
	PrincipalID string
	TokenErr    error
	Err         error
}

// RunLogout revokes sessionID. Revoking an unknown or already revoked session succeeds.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	return deps.SessionStore.RevokeSession(ctx, sessionID)
}

// RunLogoutWithRefresh resolves the session from a refresh token and revokes it. The token
// may be expired; its signature must still verify.
func RunLogoutWithRefresh(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	claims, err := deps.InspectRefresh(refreshToken)
	if err != nil {
		return LogoutResult{TokenErr: err}
	}
	return LogoutResult{
		SessionID:   claims.SessionID,
		PrincipalID: claims.Subject,
		Err:         deps.SessionStore.RevokeSession(ctx, claims.SessionID),
	}
}
