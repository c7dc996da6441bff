package examcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/examcore/internal/flows"
	"github.com/redis/go-redis/v9"
)

// Login describes the login operation and its observable behavior.
//
// Login issues a fresh token for an already-authenticated account and makes
// it the account's only valid session. Whatever token was current before stops
// validating once Login returns; its id is reported in LoginResult.Superseded.
// Login may return an error when input validation or the registry write fails.
func (e *Engine) Login(ctx context.Context, accountID, role string) (*LoginResult, error) {
	if e == nil || !e.flowService.Initialized() {
		return nil, ErrEngineNotReady
	}

	res, err := e.flowService.Login(ctx, accountID, role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:      res.Token,
		TokenID:    res.TokenID,
		ExpiresAt:  res.ExpiresAt,
		Superseded: res.Superseded,
	}, nil
}

func (e *Engine) throttleLogin(ctx context.Context, accountID string) error {
	return e.loginLimiter.Allow(ctx, accountID)
}

// Validate describes the validate operation and its observable behavior.
//
// Validate verifies the token signature and expiry locally, then requires the
// registry to name it as the account's current token. accountID may be empty
// to accept whichever account the token names. Every failure wraps
// ErrAuthentication; a store fault additionally wraps ErrStoreUnavailable.
// Validate never fails open.
func (e *Engine) Validate(ctx context.Context, token, accountID string) (*AuthResult, error) {
	if e == nil || !e.flowService.Initialized() {
		return nil, ErrEngineNotReady
	}

	res := e.flowService.Validate(ctx, token, accountID)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureStoreUnavailable:
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, res.Err)
	default:
		return nil, fmt.Errorf("%w: %s", ErrAuthentication, res.Failure)
	}

	out := &AuthResult{
		AccountID: res.Claims.AccountID,
		TokenID:   res.Claims.TokenID(),
		Role:      res.Claims.Role,
	}
	if res.Claims.ExpiresAt != nil {
		out.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return out, nil
}

// Logout ends the session named by token. A token that has already been
// superseded is a no-op for the registry: it never removes a newer session.
// The returned bool reports whether the account pointer was cleared.
func (e *Engine) Logout(ctx context.Context, token string) (bool, error) {
	if e == nil || !e.flowService.Initialized() {
		return false, ErrEngineNotReady
	}

	res := e.flowService.Logout(ctx, token)
	if res.Err != nil {
		if errors.Is(res.Err, ErrStoreUnavailable) {
			return false, res.Err
		}
		return false, fmt.Errorf("%w: %v", ErrAuthentication, res.Err)
	}
	return res.Cleared, nil
}

// ForceLogout removes the account's session whichever token is current. It
// reports whether a session existed.
func (e *Engine) ForceLogout(ctx context.Context, accountID string) (bool, error) {
	if e == nil || !e.flowService.Initialized() {
		return false, ErrEngineNotReady
	}
	if accountID == "" {
		return false, ErrInvalidAccount
	}
	return e.flowService.ForceLogout(ctx, accountID)
}

// LookupSession returns the account's current session, or nil when there is
// none.
func (e *Engine) LookupSession(ctx context.Context, accountID string) (*SessionInfo, error) {
	if e == nil || !e.flowService.Initialized() {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrInvalidAccount
	}

	entry, err := e.flowService.Lookup(ctx, accountID)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &SessionInfo{
		AccountID: entry.AccountID,
		TokenID:   entry.TokenID,
		Role:      entry.Role,
		IssuedAt:  time.Unix(entry.IssuedAt, 0),
		ExpiresAt: time.Unix(entry.ExpiresAt, 0),
	}, nil
}
