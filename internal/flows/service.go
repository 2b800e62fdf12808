package flows

import (
	"context"

	"github.com/MrEthical07/goRenew/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.VerifyAccess != nil
}

func (s Service) Issue(ctx context.Context, principalID string, roles []string) IssueResult {
	return RunIssue(ctx, principalID, roles, s.deps.Issue)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Consume(ctx context.Context, refreshToken string) RefreshResult {
	return RunConsume(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, tokenStr string, mode int) ValidateResult {
	return RunValidate(ctx, tokenStr, mode, s.deps.Validate)
}

func (s Service) ValidateAntiForgery(ctx context.Context, tokenStr, sessionID string) AntiForgeryResult {
	return RunValidateAntiForgery(ctx, tokenStr, sessionID, s.deps.AntiForgery)
}

func (s Service) Logout(ctx context.Context, sessionID string) error {
	return RunLogout(ctx, sessionID, s.deps.Logout)
}

func (s Service) LogoutWithRefresh(ctx context.Context, refreshToken string) LogoutResult {
	return RunLogoutWithRefresh(ctx, refreshToken, s.deps.Logout)
}

func (s Service) ListSessions(ctx context.Context, principalID string) ([]session.Session, error) {
	return RunListSessions(ctx, principalID, s.deps.Introspection)
}

func (s Service) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	return RunGetSession(ctx, sessionID, s.deps.Introspection)
}

func (s Service) Lineage(ctx context.Context, sessionID string) ([]session.RefreshRecord, error) {
	return RunLineage(ctx, sessionID, s.deps.Introspection)
}
