package flows

import (
	"context"

	"github.com/MrEthical07/examcore/session"
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
	return s.deps.Validate.ParseToken != nil && s.deps.Validate.Store != nil
}

func (s Service) Login(ctx context.Context, accountID, role string) (*LoginResult, error) {
	return RunLogin(ctx, accountID, role, s.deps.Login)
}

func (s Service) Validate(ctx context.Context, tokenStr, accountID string) ValidateResult {
	return RunValidate(ctx, tokenStr, accountID, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, tokenStr string) LogoutResult {
	return RunLogout(ctx, tokenStr, s.deps.Logout)
}

func (s Service) ForceLogout(ctx context.Context, accountID string) (bool, error) {
	return RunForceLogout(ctx, accountID, s.deps.Logout)
}

// Lookup returns the account's current session entry.
func (s Service) Lookup(ctx context.Context, accountID string) (*session.Entry, error) {
	return s.deps.Logout.Store.Current(ctx, accountID)
}
