package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/examcore"
)

// Validator is the Engine surface the guards need.
type Validator interface {
	Validate(ctx context.Context, token, accountID string) (*examcore.AuthResult, error)
}

type authResultContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*examcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*examcore.AuthResult)
	return res, ok
}

// Guard rejects requests without a currently valid session token. A
// superseded token gets 401; a store fault gets 503. Neither reaches next.
func Guard(engine Validator) func(http.Handler) http.Handler {
	return guard(engine, nil)
}

// RequireAccount is Guard for routes scoped to one account. accountOf
// extracts that account from the request; the token must belong to it.
func RequireAccount(engine Validator, accountOf func(*http.Request) string) func(http.Handler) http.Handler {
	return guard(engine, accountOf)
}

func guard(engine Validator, accountOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			accountID := ""
			if accountOf != nil {
				accountID = accountOf(r)
				if accountID == "" {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}

			res, err := engine.Validate(r.Context(), token, accountID)
			if err != nil {
				if errors.Is(err, examcore.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			ctx = examcore.WithAccountID(ctx, res.AccountID)
			ctx = examcore.WithRole(ctx, res.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
