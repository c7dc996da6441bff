package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/examcore/jwt"
	"github.com/MrEthical07/examcore/session"
	"github.com/google/uuid"
)

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu      sync.Mutex
	current map[string]string
	entries map[string]*session.Entry
	fail    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{current: map[string]string{}, entries: map[string]*session.Entry{}}
}

func (f *fakeStore) Supersede(_ context.Context, e *session.Entry, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errStoreDown
	}
	prev := f.current[e.AccountID]
	delete(f.entries, prev)
	f.current[e.AccountID] = e.TokenID
	cp := *e
	f.entries[e.TokenID] = &cp
	return prev, nil
}

func (f *fakeStore) Check(_ context.Context, accountID, tokenID string) (session.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errStoreDown
	}
	cur, ok := f.current[accountID]
	switch {
	case !ok:
		return session.StatusNoSession, nil
	case cur != tokenID:
		return session.StatusSuperseded, nil
	}
	if _, ok := f.entries[tokenID]; !ok {
		return session.StatusMetadataMissing, nil
	}
	return session.StatusValid, nil
}

func (f *fakeStore) Revoke(_ context.Context, accountID, tokenID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, tokenID)
	if f.current[accountID] == tokenID {
		delete(f.current, accountID)
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) RevokeAll(_ context.Context, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.current[accountID]
	if !ok {
		return false, nil
	}
	delete(f.current, accountID)
	delete(f.entries, cur)
	return true, nil
}

func (f *fakeStore) Current(_ context.Context, accountID string) (*session.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[f.current[accountID]]
	if !ok {
		return nil, errors.New("not found")
	}
	return e, nil
}

func newTestService(t *testing.T, store *fakeStore) Service {
	t.Helper()

	mgr, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	common := Common{
		ParseToken:       mgr.Parse,
		Store:            store,
		StoreUnavailable: errStoreDown,
	}
	return New(Deps{
		Login: LoginDeps{
			Common:     common,
			IssueToken: mgr.Issue,
			NewTokenID: uuid.NewString,
			SessionTTL: time.Hour,
			Errors: LoginErrors{
				EngineNotReady: errors.New("not ready"),
				InvalidAccount: errors.New("invalid account"),
			},
		},
		Validate: ValidateDeps{Common: common},
		Logout:   LogoutDeps{Common: common},
	})
}

func TestLoginSupersedesPreviousToken(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	ctx := context.Background()

	first, err := svc.Login(ctx, "acct-1", "student")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.Login(ctx, "acct-1", "student")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.Superseded != first.TokenID {
		t.Fatalf("expected %q superseded, got %q", first.TokenID, second.Superseded)
	}

	if res := svc.Validate(ctx, first.Token, "acct-1"); res.Failure != ValidateFailureSuperseded {
		t.Fatalf("first token must be superseded, got %s", res.Failure)
	}
	res := svc.Validate(ctx, second.Token, "acct-1")
	if res.Failure != ValidateFailureNone {
		t.Fatalf("second token must validate, got %s (%v)", res.Failure, res.Err)
	}
	if res.Claims.Role != "student" {
		t.Fatalf("unexpected role %q", res.Claims.Role)
	}
}

func TestLoginRejectsEmptyAccount(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	if _, err := svc.Login(context.Background(), "", "student"); err == nil {
		t.Fatal("expected error for empty account")
	}
}

func TestValidateRejectsAccountMismatch(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	ctx := context.Background()

	out, err := svc.Login(ctx, "acct-1", "student")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res := svc.Validate(ctx, out.Token, "acct-2"); res.Failure != ValidateFailureAccountMismatch {
		t.Fatalf("expected account mismatch, got %s", res.Failure)
	}
}

func TestValidateFailsClosedOnStoreError(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	out, err := svc.Login(ctx, "acct-1", "student")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	store.fail = true
	res := svc.Validate(ctx, out.Token, "acct-1")
	if res.Failure != ValidateFailureStoreUnavailable {
		t.Fatalf("expected store failure, got %s", res.Failure)
	}
	if !errors.Is(res.Err, errStoreDown) {
		t.Fatalf("expected store error, got %v", res.Err)
	}
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	if res := svc.Validate(context.Background(), "not-a-token", ""); res.Failure != ValidateFailureToken {
		t.Fatalf("expected token failure, got %s", res.Failure)
	}
}

func TestStaleLogoutKeepsNewerSession(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	ctx := context.Background()

	first, _ := svc.Login(ctx, "acct-1", "student")
	second, _ := svc.Login(ctx, "acct-1", "student")

	res := svc.Logout(ctx, first.Token)
	if res.Err != nil {
		t.Fatalf("logout: %v", res.Err)
	}
	if res.Cleared {
		t.Fatal("stale logout must not clear the newer session")
	}
	if v := svc.Validate(ctx, second.Token, "acct-1"); v.Failure != ValidateFailureNone {
		t.Fatalf("second token must still validate, got %s", v.Failure)
	}

	res = svc.Logout(ctx, second.Token)
	if !res.Cleared {
		t.Fatal("current logout must clear the session")
	}
	if v := svc.Validate(ctx, second.Token, "acct-1"); v.Failure != ValidateFailureNoSession {
		t.Fatalf("expected no session, got %s", v.Failure)
	}
}

func TestForceLogoutInvalidatesToken(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	ctx := context.Background()

	out, _ := svc.Login(ctx, "acct-1", "teacher")
	existed, err := svc.ForceLogout(ctx, "acct-1")
	if err != nil || !existed {
		t.Fatalf("force logout: existed=%v err=%v", existed, err)
	}
	if v := svc.Validate(ctx, out.Token, "acct-1"); v.Failure == ValidateFailureNone {
		t.Fatal("token must not validate after force logout")
	}

	existed, err = svc.ForceLogout(ctx, "acct-1")
	if err != nil || existed {
		t.Fatalf("repeat force logout: existed=%v err=%v", existed, err)
	}
}

func TestLookupReturnsCurrentEntry(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	ctx := context.Background()

	out, _ := svc.Login(ctx, "acct-1", "admin")
	e, err := svc.Lookup(ctx, "acct-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if e.TokenID != out.TokenID || e.Role != "admin" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.ExpiresAt != out.ExpiresAt.Unix() {
		t.Fatalf("expiry mismatch: %d vs %d", e.ExpiresAt, out.ExpiresAt.Unix())
	}
}

func TestUninitializedServiceReportsNotReady(t *testing.T) {
	svc := New(Deps{})
	if svc.Initialized() {
		t.Fatal("zero service must not report initialized")
	}
	if res := svc.Validate(context.Background(), "x", "a"); res.Failure == ValidateFailureNone {
		t.Fatal("uninitialized validate must fail")
	}
}

func TestLoginThrottleRejectsBeforeIssuing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	errLimited := errors.New("limited")
	calls := 0
	deps := svc.deps.Login
	deps.Throttle = func(_ context.Context, accountID string) error {
		calls++
		if calls > 1 {
			return errLimited
		}
		return nil
	}

	first, err := RunLogin(ctx, "acct-1", "student", deps)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := RunLogin(ctx, "acct-1", "student", deps); !errors.Is(err, errLimited) {
		t.Fatalf("expected throttle error, got %v", err)
	}
	if store.current["acct-1"] != first.TokenID {
		t.Fatal("throttled login must not touch the registry")
	}
}
