package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/examcore/jwt"
	"github.com/MrEthical07/examcore/session"
)

// SessionStore is the registry surface the flows need. *session.Store
// satisfies it.
type SessionStore interface {
	Supersede(ctx context.Context, e *session.Entry, ttl time.Duration) (string, error)
	Check(ctx context.Context, accountID, tokenID string) (session.Status, error)
	Revoke(ctx context.Context, accountID, tokenID string) (bool, error)
	RevokeAll(ctx context.Context, accountID string) (bool, error)
	Current(ctx context.Context, accountID string) (*session.Entry, error)
}

// AuditFunc records one session event. meta is evaluated lazily.
type AuditFunc func(ctx context.Context, event string, success bool, accountID, tokenID string, err error, meta func() map[string]string)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Validate ValidateDeps
	Logout   LogoutDeps
}

// Common holds dependencies shared by every flow.
type Common struct {
	ParseToken       func(string) (*jwt.AccountClaims, error)
	Store            SessionStore
	Now              func() time.Time
	EmitAudit        AuditFunc
	StoreUnavailable error
}

func (c *Common) defaults() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
