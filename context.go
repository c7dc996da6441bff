package examcore

import "context"

type accountIDContextKey struct{}
type roleContextKey struct{}

// WithAccountID attaches a validated account id to ctx. The HTTP guard sets
// it after Engine.Validate succeeds.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey{}, accountID)
}

// AccountIDFromContext returns the account id set by WithAccountID.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, _ := ctx.Value(accountIDContextKey{}).(string)
	return id, id != ""
}

// WithRole attaches the role carried by a validated token.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleContextKey{}, role)
}

// RoleFromContext returns the role set by WithRole.
func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	role, _ := ctx.Value(roleContextKey{}).(string)
	return role
}
