package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/examcore/jwt"
	"github.com/MrEthical07/examcore/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureToken
	ValidateFailureAccountMismatch
	ValidateFailureNoSession
	ValidateFailureSuperseded
	ValidateFailureMetadataMissing
	ValidateFailureStoreUnavailable
)

func (k ValidateFailureKind) String() string {
	switch k {
	case ValidateFailureNone:
		return "success"
	case ValidateFailureToken:
		return "invalid_token"
	case ValidateFailureAccountMismatch:
		return "account_mismatch"
	case ValidateFailureNoSession:
		return "no_session"
	case ValidateFailureSuperseded:
		return "superseded"
	case ValidateFailureMetadataMissing:
		return "metadata_missing"
	case ValidateFailureStoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// ValidateResult returns either the claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccountClaims
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Common

	OnValidate func(result string)
}

// RunValidate checks the token locally, then requires the registry to name
// it as the account's current token with its metadata present. Any store
// error yields a failure: validation never fails open.
func RunValidate(ctx context.Context, tokenStr, accountID string, deps ValidateDeps) ValidateResult {
	deps.defaults()
	if deps.OnValidate == nil {
		deps.OnValidate = func(string) {}
	}

	res := runValidate(ctx, tokenStr, accountID, deps)
	deps.OnValidate(res.Failure.String())
	return res
}

func runValidate(ctx context.Context, tokenStr, accountID string, deps ValidateDeps) ValidateResult {
	if deps.ParseToken == nil || deps.Store == nil {
		return ValidateResult{Failure: ValidateFailureStoreUnavailable, Err: deps.StoreUnavailable}
	}

	claims, err := deps.ParseToken(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureToken, Err: err}
	}
	if accountID != "" && claims.AccountID != accountID {
		return ValidateResult{Failure: ValidateFailureAccountMismatch}
	}

	status, err := deps.Store.Check(ctx, claims.AccountID, claims.TokenID())
	if err != nil {
		if deps.StoreUnavailable != nil && !errors.Is(err, deps.StoreUnavailable) {
			err = errors.Join(deps.StoreUnavailable, err)
		}
		return ValidateResult{Failure: ValidateFailureStoreUnavailable, Err: err}
	}

	switch status {
	case session.StatusValid:
		return ValidateResult{Claims: claims}
	case session.StatusSuperseded:
		return ValidateResult{Failure: ValidateFailureSuperseded}
	case session.StatusMetadataMissing:
		return ValidateResult{Failure: ValidateFailureMetadataMissing}
	default:
		return ValidateResult{Failure: ValidateFailureNoSession}
	}
}
