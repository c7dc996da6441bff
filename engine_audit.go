package examcore

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/examcore/internal/audit"
	"github.com/google/uuid"
)

// AuditErrorCode is the coarse error class recorded on failed audit events.
// Raw error text never reaches the sink.
type AuditErrorCode string

const (
	auditErrAuthentication AuditErrorCode = "authentication"
	auditErrInvalidAccount AuditErrorCode = "invalid_account"
	auditErrUnavailable    AuditErrorCode = "store_unavailable"
	auditErrNotReady       AuditErrorCode = "not_ready"
	auditErrRateLimited    AuditErrorCode = "rate_limited"
	auditErrInternal       AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.Event{
		ID:        uuid.NewString(),
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		TokenID:   tokenID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrAuthentication):
		return auditErrAuthentication
	case errors.Is(err, ErrInvalidAccount):
		return auditErrInvalidAccount
	case errors.Is(err, ErrEngineNotReady):
		return auditErrNotReady
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	default:
		return auditErrInternal
	}
}
