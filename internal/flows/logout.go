package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Common
}

// LogoutResult reports which session a token logout touched.
type LogoutResult struct {
	AccountID string
	TokenID   string
	Cleared   bool
	Err       error
}

// RunLogout ends the session named by tokenStr. The account pointer is only
// cleared when it still names this token.
func RunLogout(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutResult {
	deps.defaults()

	claims, err := deps.ParseToken(tokenStr)
	if err != nil {
		return LogoutResult{Err: err}
	}

	res := LogoutResult{AccountID: claims.AccountID, TokenID: claims.TokenID()}
	res.Cleared, res.Err = deps.Store.Revoke(ctx, claims.AccountID, claims.TokenID())

	deps.EmitAudit(ctx, "logout", res.Err == nil, res.AccountID, res.TokenID, res.Err, nil)
	return res
}

// RunForceLogout deletes the account's session regardless of which token
// is current. It reports whether one existed.
func RunForceLogout(ctx context.Context, accountID string, deps LogoutDeps) (bool, error) {
	deps.defaults()

	existed, err := deps.Store.RevokeAll(ctx, accountID)

	deps.EmitAudit(ctx, "force_logout", err == nil, accountID, "", err, func() map[string]string {
		if existed {
			return map[string]string{"existed": "true"}
		}
		return map[string]string{"existed": "false"}
	})
	return existed, err
}
