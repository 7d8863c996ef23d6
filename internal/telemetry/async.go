package telemetry

import (
	"context"
	"log"
	"sync"
	"time"
)

// emitTimeout bounds a single background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the budget for Async.Drain at shutdown: long enough for any emit
// started before GracefulStop to finish.
const ShutdownDrainDuration = emitTimeout

// Async is an EventEmitter for request paths: Emit hands the event to a goroutine and returns.
// The request context is not used, so a cancelled request still gets its event out.
// Once Drain has started, further events are dropped.
type Async struct {
	next     EventEmitter
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// NewAsync wraps next. A nil next yields an emitter that drops everything.
func NewAsync(next EventEmitter) *Async {
	return &Async{next: next}
}

// Emit schedules event and always returns nil; delivery errors are logged.
func (a *Async) Emit(_ context.Context, event *AuthEvent) error {
	if a == nil || a.next == nil || event == nil {
		return nil
	}
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		log.Printf("telemetry: dropping %s event emitted after drain", event.Type)
		return nil
	}
	a.inflight.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.inflight.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.next.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit %s failed: %v", event.Type, err)
		}
	}()
	return nil
}

// Drain stops accepting events and waits for in-flight emits or until ctx ends.
func (a *Async) Drain(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	a.draining = true
	a.mu.Unlock()
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
