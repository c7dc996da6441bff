package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/examcore/internal/metrics"
)

// Drop reasons recorded on the dropped-events counter.
const (
	DropBufferFull = "buffer_full"
	DropCanceled   = "canceled"
	DropClosed     = "closed"
)

// Config controls dispatcher buffering and where drops are reported.
// Logger and Metrics may be nil.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Dispatcher forwards audit events to a sink from a single worker so that
// login and logout paths never wait on sink I/O. Events that cannot be
// queued are counted per event type and logged with their id and account.
type Dispatcher struct {
	sink       Sink
	queue      chan Event
	stop       chan struct{}
	dropIfFull bool
	logger     *slog.Logger
	metrics    *metrics.Metrics

	worker   sync.WaitGroup
	dropped  atomic.Uint64
	shutdown atomic.Bool
	once     sync.Once
}

// NewDispatcher starts the worker. It returns nil when auditing is disabled;
// a nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	d.worker.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.worker.Done()
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			d.drain(ctx)
			return
		}
	}
}

// drain flushes whatever was queued before Close.
func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		default:
			return
		}
	}
}

// Emit queues event. With DropIfFull a full queue drops the event at once;
// otherwise Emit waits for space until ctx ends, and counts the event as
// dropped if it does.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.shutdown.Load() {
		d.drop(event, DropClosed)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
			d.drop(event, DropClosed)
		default:
			d.drop(event, DropBufferFull)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event, DropCanceled)
	case <-d.stop:
		d.drop(event, DropClosed)
	}
}

func (d *Dispatcher) drop(event Event, reason string) {
	d.dropped.Add(1)
	d.metrics.AuditDropped(event.EventType, reason)
	d.logger.Warn("audit event dropped",
		"reason", reason,
		"event_id", event.ID,
		"event_type", event.EventType,
		"account_id", event.AccountID,
	)
}

// Close stops accepting events, flushes the queue and waits for the worker.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.shutdown.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped is the total number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
