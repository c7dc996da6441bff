package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/examcore/session"
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Token      string
	TokenID    string
	ExpiresAt  time.Time
	Superseded string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady error
	InvalidAccount error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Common

	IssueToken func(accountID, role, tokenID string) (string, time.Time, error)
	NewTokenID func() string
	SessionTTL time.Duration

	// Throttle, when set, is charged once per attempt before a token is
	// issued. A non-nil error aborts the login.
	Throttle func(ctx context.Context, accountID string) error

	OnLogin      func(result string)
	OnSuperseded func()

	Errors LoginErrors
}

// RunLogin issues a fresh token for accountID and makes it the account's
// only valid session. Any earlier token stops validating as soon as the
// registry write returns.
func RunLogin(ctx context.Context, accountID, role string, deps LoginDeps) (*LoginResult, error) {
	deps.defaults()
	if deps.OnLogin == nil {
		deps.OnLogin = func(string) {}
	}
	if deps.OnSuperseded == nil {
		deps.OnSuperseded = func() {}
	}
	if deps.IssueToken == nil || deps.NewTokenID == nil || deps.Store == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if accountID == "" {
		deps.OnLogin("invalid")
		return nil, deps.Errors.InvalidAccount
	}

	if deps.Throttle != nil {
		if err := deps.Throttle(ctx, accountID); err != nil {
			deps.OnLogin("throttled")
			deps.EmitAudit(ctx, "login_throttled", false, accountID, "", err, nil)
			return nil, err
		}
	}

	tokenID := deps.NewTokenID()
	token, expiresAt, err := deps.IssueToken(accountID, role, tokenID)
	if err != nil {
		deps.OnLogin("error")
		deps.EmitAudit(ctx, "login_failure", false, accountID, "", err, nil)
		return nil, err
	}

	entry := &session.Entry{
		AccountID: accountID,
		TokenID:   tokenID,
		Role:      role,
		IssuedAt:  deps.Now().Unix(),
		ExpiresAt: expiresAt.Unix(),
	}

	prev, err := deps.Store.Supersede(ctx, entry, deps.SessionTTL)
	if err != nil {
		deps.OnLogin("store_error")
		deps.EmitAudit(ctx, "login_failure", false, accountID, tokenID, err, nil)
		return nil, err
	}

	deps.OnLogin("success")
	if prev != "" {
		deps.OnSuperseded()
		deps.EmitAudit(ctx, "session_superseded", true, accountID, prev, nil, func() map[string]string {
			return map[string]string{"replaced_by": tokenID}
		})
	}
	deps.EmitAudit(ctx, "login_success", true, accountID, tokenID, nil, nil)

	return &LoginResult{
		Token:      token,
		TokenID:    tokenID,
		ExpiresAt:  expiresAt,
		Superseded: prev,
	}, nil
}
