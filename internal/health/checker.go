// Package health keeps the gRPC health service in line with the reachability of the
// database and the revocation registry.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// DefaultInterval is how often Run re-checks dependencies.
	DefaultInterval = 5 * time.Second
	checkTimeout    = 2 * time.Second
)

// Check is one named dependency probe, e.g. a *sql.DB PingContext or a Redis ping.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Checker flips the overall ("") serving status between SERVING and NOT_SERVING.
type Checker struct {
	server   *health.Server
	checks   []Check
	interval time.Duration
	healthy  *bool
}

// NewChecker returns a Checker over srv. A non-positive interval selects DefaultInterval.
func NewChecker(srv *health.Server, interval time.Duration, checks ...Check) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Checker{server: srv, checks: checks, interval: interval}
}

// CheckOnce runs every probe, updates the serving status and returns the joined failures.
func (c *Checker) CheckOnce(ctx context.Context) error {
	var errs []error
	for _, chk := range c.checks {
		pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := chk.Ping(pingCtx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", chk.Name, err))
		}
	}
	err := errors.Join(errs...)
	healthy := err == nil
	if c.healthy == nil || *c.healthy != healthy {
		if healthy {
			log.Printf("health: dependencies reachable, serving")
		} else {
			log.Printf("health: not serving: %v", err)
		}
		c.healthy = &healthy
	}
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	return err
}

// Run checks immediately and then on every interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	_ = c.CheckOnce(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.CheckOnce(ctx)
		}
	}
}
