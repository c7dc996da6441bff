package examcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/examcore/quota"
)

// Account is the platform's view of a registered account. It is owned by the
// host application and read through AccountProvider.
type Account struct {
	ID              string
	Role            string
	MembershipLevel string
}

// AccountProvider resolves accounts. The engine never writes accounts.
type AccountProvider interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
}

// AccountProviderFunc adapts a function to AccountProvider.
type AccountProviderFunc func(ctx context.Context, accountID string) (*Account, error)

func (f AccountProviderFunc) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return f(ctx, accountID)
}

// levelSource exposes an AccountProvider as the membership lookup the quota
// ledger needs.
type levelSource struct {
	accounts AccountProvider
}

var _ quota.LevelSource = levelSource{}

func (s levelSource) MembershipLevel(ctx context.Context, accountID string) (string, error) {
	acct, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", errors.New("account not found")
	}
	return acct.MembershipLevel, nil
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	// Superseded is the token id that stopped being valid, if any.
	Superseded string
}

// AuthResult is returned by Engine.Validate.
type AuthResult struct {
	AccountID string
	TokenID   string
	Role      string
	ExpiresAt time.Time
}

// SessionInfo describes an account's current session for admin views.
type SessionInfo struct {
	AccountID string
	TokenID   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
