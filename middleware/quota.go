package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/examcore"
	"github.com/MrEthical07/examcore/quota"
)

const (
	HeaderQuotaRemainingDaily   = "X-Quota-Remaining-Daily"
	HeaderQuotaRemainingMonthly = "X-Quota-Remaining-Monthly"
)

// QuotaChecker is the Engine surface RequireQuota needs.
type QuotaChecker interface {
	Usage(ctx context.Context, accountID string) (quota.Record, error)
}

// RequireQuota must run inside Guard. It answers 429 when the account has
// no quota left in either window, or no quota record at all, and reports
// the remaining headroom of both windows in response headers. The check is
// advisory: the charge itself happens in Engine.Generate and can still be
// rejected.
func RequireQuota(engine QuotaChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := examcore.AccountIDFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			rec, err := engine.Usage(r.Context(), accountID)
			switch {
			case errors.Is(err, examcore.ErrQuotaNotInitialized):
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
				return
			case errors.Is(err, examcore.ErrStoreUnavailable):
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			case err != nil:
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			w.Header().Set(HeaderQuotaRemainingDaily, strconv.FormatInt(rec.RemainingDaily(), 10))
			w.Header().Set(HeaderQuotaRemainingMonthly, strconv.FormatInt(rec.RemainingMonthly(), 10))
			if !rec.HasQuota() {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
