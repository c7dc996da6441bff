package examcore

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

func collectEvents(ch <-chan AuditEvent, want int) []AuditEvent {
	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	engine, _, _ := buildTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })

	if _, err := engine.Login(context.Background(), "alice", "student"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditSupersessionEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16
	cfg.Audit.DropIfFull = false

	sink := NewChannelSink(16)
	engine, _, _ := buildTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	first, err := engine.Login(ctx, "alice", "student")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	second, err := engine.Login(ctx, "alice", "student")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.ForceLogout(ctx, "alice"); err != nil {
		t.Fatalf("force logout failed: %v", err)
	}

	events := collectEvents(sink.Events(), 4)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	want := []string{"login_success", "session_superseded", "login_success", "force_logout"}
	for i, ev := range events {
		if ev.EventType != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], ev.EventType)
		}
		if ev.ID == "" || ev.AccountID != "alice" {
			t.Fatalf("event %d missing id or account: %+v", i, ev)
		}
		if !ev.Timestamp.Equal(testEpoch) {
			t.Fatalf("event %d: expected engine clock timestamp, got %v", i, ev.Timestamp)
		}
	}

	superseded := events[1]
	if superseded.TokenID != first.TokenID || superseded.Metadata["replaced_by"] != second.TokenID {
		t.Fatalf("unexpected supersession event %+v", superseded)
	}
}

func TestAuditNoTokensInEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(16)
	engine, mr, _ := buildTestEngine(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	res, err := engine.Login(ctx, "alice", "student")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	mr.Close()
	if _, err := engine.Logout(ctx, res.Token); err == nil {
		t.Fatal("expected logout to fail with the store down")
	}

	events := collectEvents(sink.Events(), 2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	failed := events[1]
	if failed.Success || failed.Error != string(auditErrUnavailable) {
		t.Fatalf("expected store_unavailable failure event, got %+v", failed)
	}
	for _, ev := range events {
		if strings.Contains(ev.Error, res.Token) {
			t.Fatal("signed token leaked into audit error")
		}
		for _, v := range ev.Metadata {
			if strings.Contains(v, res.Token) {
				t.Fatal("signed token leaked into audit metadata")
			}
		}
	}
}
