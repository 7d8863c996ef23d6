// Package cleanup deletes sessions whose refresh lifetime has passed.
package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"identity-service/internal/autherr"
	"identity-service/internal/telemetry"
)

// ExpiredDeleter is implemented by the session repository.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Purger periodically removes expired sessions and reports each pass as a session_purge event.
type Purger struct {
	sessions ExpiredDeleter
	events   telemetry.EventEmitter
	interval time.Duration
	now      func() time.Time
}

// NewPurger returns a Purger. events may be nil; now defaults to time.Now.
func NewPurger(sessions ExpiredDeleter, events telemetry.EventEmitter, interval time.Duration, now func() time.Time) *Purger {
	if interval <= 0 {
		interval = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Purger{sessions: sessions, events: events, interval: interval, now: now}
}

// RunOnce deletes every session expired at the current time and returns how many went.
func (p *Purger) RunOnce(ctx context.Context) (int64, error) {
	now := p.now()
	n, err := p.sessions.DeleteExpired(ctx, now)
	if err != nil {
		err = fmt.Errorf("cleanup: %w", err)
	}
	if p.events != nil {
		ev := &telemetry.AuthEvent{
			Type:    telemetry.EventSessionPurge,
			Outcome: telemetry.Outcome(err),
			Kind:    autherr.Kind(err),
			Detail:  fmt.Sprintf("%d sessions", n),
			At:      now.UTC(),
		}
		if emitErr := p.events.Emit(ctx, ev); emitErr != nil {
			log.Printf("cleanup: emit event: %v", emitErr)
		}
	}
	return n, err
}

// Run purges immediately and then every interval until ctx ends.
func (p *Purger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if n, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("cleanup: purge failed: %v", err)
		} else if n > 0 {
			log.Printf("cleanup: removed %d expired sessions", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
