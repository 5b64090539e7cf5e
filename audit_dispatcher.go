package authcore

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples the engine's hot paths from the audit sink. A
// single worker goroutine forwards buffered events, so a slow sink can only
// delay (or, with DropIfFull, drop) audit delivery, never a login or
// refresh.
type auditDispatcher struct {
	sink       AuditSink
	events     chan AuditEvent
	stop       chan struct{}
	dropIfFull bool

	worker   sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool
	dropped  atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 1
	}

	d := &auditDispatcher{
		sink:       sink,
		events:     make(chan AuditEvent, buffer),
		stop:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}

	d.worker.Add(1)
	go d.forward()

	return d
}

func (d *auditDispatcher) forward() {
	defer d.worker.Done()

	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still buffered at shutdown.
func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.sink.Emit(context.Background(), event)
		default:
			return
		}
	}
}

// Emit enqueues an event for asynchronous delivery. With DropIfFull the
// call never blocks and a full buffer increments the drop counter;
// otherwise it blocks until there is room, the context is done, or the
// dispatcher is closed. Emitting on a nil or closed dispatcher is a no-op.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.events <- event:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.events <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops the worker after draining buffered events. Safe to call more
// than once and on a nil dispatcher.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer was
// full while DropIfFull was set.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
