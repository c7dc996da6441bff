package audit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/examcore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "e"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestBlockUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "e2"})

	select {
	case ev := <-sink.Events():
		if ev.EventType != "e1" {
			t.Fatalf("expected e1 drained on close, got %s", ev.EventType)
		}
	default:
		t.Fatal("expected pending event to be drained on close")
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		ID:        "ev-1",
		Timestamp: time.Now().UTC(),
		EventType: "login_success",
		AccountID: "acct-1",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{EventType: "logout", AccountID: "acct-1"})

	out := buf.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected two lines, got %q", out)
	}
	if !strings.Contains(out, `"account_id":"acct-1"`) || !strings.Contains(out, "login_success") {
		t.Fatalf("unexpected JSON output %q", out)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{ID: "a", EventType: "login_success", AccountID: "acct", Success: true})
	sink.Emit(context.Background(), Event{
		ID:        "b",
		EventType: "logout",
		AccountID: "acct",
		TokenID:   "tok",
		Error:     "store_unavailable",
		Metadata:  map[string]string{"existed": "false"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two records, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "level=INFO") || !strings.Contains(lines[0], "event_type=login_success") {
		t.Fatalf("unexpected success record %q", lines[0])
	}
	for _, want := range []string{"level=WARN", "token_id=tok", "error=store_unavailable", "existed=false"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("failure record %q missing %q", lines[1], want)
		}
	}
}

func TestDropsAreLabelledAndLogged(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := metrics.New(nil)
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: logger, Metrics: m}, sink)

	d.Emit(context.Background(), Event{ID: "ev-1", EventType: "login_success", AccountID: "acct"})
	d.Emit(context.Background(), Event{ID: "ev-2", EventType: "login_success", AccountID: "acct"})
	d.Emit(context.Background(), Event{ID: "ev-3", EventType: "session_superseded", AccountID: "acct"})

	close(sink.gate)
	d.Close()
	d.Emit(context.Background(), Event{ID: "ev-4", EventType: "logout", AccountID: "acct"})

	full := testutil.ToFloat64(m.AuditDrops.WithLabelValues("login_success", DropBufferFull)) +
		testutil.ToFloat64(m.AuditDrops.WithLabelValues("session_superseded", DropBufferFull))
	if full < 1 {
		t.Fatalf("expected buffer_full drops, got %v", full)
	}
	if got := testutil.ToFloat64(m.AuditDrops.WithLabelValues("logout", DropClosed)); got != 1 {
		t.Fatalf("expected one closed drop for logout, got %v", got)
	}
	if d.Dropped() != uint64(full)+1 {
		t.Fatalf("Dropped()=%d does not match labelled drops %v+1", d.Dropped(), full)
	}

	out := buf.String()
	for _, want := range []string{"audit event dropped", "reason=closed", "event_id=ev-4", "event_type=logout", "account_id=acct"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestBlockingEmitCountsCanceledEvent(t *testing.T) {
	m := metrics.New(nil)
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, Metrics: m}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{EventType: "e1"})
	d.Emit(context.Background(), Event{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "e3"})

	if got := testutil.ToFloat64(m.AuditDrops.WithLabelValues("e3", DropCanceled)); got != 1 {
		t.Fatalf("expected canceled drop, got %v", got)
	}
}
